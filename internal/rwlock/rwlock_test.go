package rwlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentReaders(t *testing.T) {
	l := New()
	var active, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AcquireRead()
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			l.ReleaseRead()
		}()
	}
	wg.Wait()
	if peak.Load() < 2 {
		t.Errorf("readers never overlapped, peak=%d", peak.Load())
	}
}

func TestWriterExcludesReaders(t *testing.T) {
	l := New()
	var inWrite atomic.Bool
	l.AcquireWrite()
	inWrite.Store(true)

	done := make(chan struct{})
	go func() {
		l.AcquireRead()
		if inWrite.Load() {
			t.Error("reader admitted while writer active")
		}
		l.ReleaseRead()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	inWrite.Store(false)
	l.ReleaseWrite()
	<-done
}

func TestWriterWaitsForReaders(t *testing.T) {
	l := New()
	var readers atomic.Int32

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		l.AcquireRead()
		readers.Add(1)
		close(started)
		<-release
		readers.Add(-1)
		l.ReleaseRead()
	}()
	<-started

	wrote := make(chan struct{})
	go func() {
		l.AcquireWrite()
		if readers.Load() != 0 {
			t.Error("writer admitted while another goroutine reads")
		}
		l.ReleaseWrite()
		close(wrote)
	}()

	time.Sleep(10 * time.Millisecond)
	close(release)
	<-wrote
}

func TestWriteReentrancy(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.AcquireWrite()
		l.AcquireWrite() // no-op, must not self-deadlock
		l.AcquireRead()  // no-op while writing
		l.ReleaseRead()
		l.ReleaseWrite()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("self-deadlock on reentrant acquire")
	}

	// After the full release another goroutine can write.
	acquired := make(chan struct{})
	go func() {
		l.AcquireWrite()
		l.ReleaseWrite()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("write side not fully released")
	}
}

func TestReadReentrancyIsCounted(t *testing.T) {
	l := New()
	l.AcquireRead()
	l.AcquireRead()
	l.ReleaseRead()

	// One hold remains; a writer must still wait.
	wrote := make(chan struct{})
	go func() {
		l.AcquireWrite()
		l.ReleaseWrite()
		close(wrote)
	}()
	select {
	case <-wrote:
		t.Fatal("writer admitted while a read hold remains")
	case <-time.After(30 * time.Millisecond):
	}

	l.ReleaseRead()
	select {
	case <-wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("writer never admitted after final read release")
	}
}

func TestUpgradeFromRead(t *testing.T) {
	l := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.AcquireRead()
		l.AcquireWrite() // own read hold must not block the upgrade
		l.ReleaseWrite()
		l.ReleaseRead()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade blocked on own read hold")
	}
}

func TestUpgradeWaitsForOtherReaders(t *testing.T) {
	l := New()
	otherReading := make(chan struct{})
	releaseOther := make(chan struct{})
	go func() {
		l.AcquireRead()
		close(otherReading)
		<-releaseOther
		l.ReleaseRead()
	}()
	<-otherReading

	upgraded := make(chan struct{})
	go func() {
		l.AcquireRead()
		l.AcquireWrite()
		l.ReleaseWrite()
		l.ReleaseRead()
		close(upgraded)
	}()

	select {
	case <-upgraded:
		t.Fatal("upgrade admitted while another goroutine reads")
	case <-time.After(30 * time.Millisecond):
	}
	close(releaseOther)
	select {
	case <-upgraded:
	case <-time.After(2 * time.Second):
		t.Fatal("upgrade never admitted")
	}
}

func TestWithWriteReleasesOnPanic(t *testing.T) {
	l := New()
	func() {
		defer func() { recover() }()
		l.WithWrite(func() { panic("boom") })
	}()

	acquired := make(chan struct{})
	go func() {
		l.AcquireWrite()
		l.ReleaseWrite()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("write lock leaked after panic inside WithWrite")
	}
}

func TestWithReadReleasesOnPanic(t *testing.T) {
	l := New()
	func() {
		defer func() { recover() }()
		l.WithRead(func() { panic("boom") })
	}()

	acquired := make(chan struct{})
	go func() {
		l.AcquireWrite()
		l.ReleaseWrite()
		close(acquired)
	}()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("read lock leaked after panic inside WithRead")
	}
}

func TestGoroutineIDsDiffer(t *testing.T) {
	a := gid()
	var b int64
	done := make(chan struct{})
	go func() {
		b = gid()
		close(done)
	}()
	<-done
	if a == 0 || b == 0 || a == b {
		t.Errorf("gid() not goroutine-unique: %d vs %d", a, b)
	}
	if a != gid() {
		t.Error("gid() not stable within a goroutine")
	}
}

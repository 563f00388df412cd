// Package rwlock provides a reader-preferring readers/writer lock that is
// aware of the goroutine holding it: a goroutine holding the write side may
// re-acquire either side as a no-op, read holds are reference-counted per
// goroutine, and a goroutine may upgrade from read to write without its own
// read hold blocking the upgrade.
package rwlock

import "sync"

// Lock admits many concurrent readers or one writer.
//
// Fairness is reader-preferring: newly arriving readers never wait behind a
// queued writer, only behind an active one. A writer is admitted once no
// other goroutine holds a read lock; the writer's own read holds (if any)
// are excluded from that count, which is what makes upgrades possible.
type Lock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	readers map[int64]int // goroutine id → read hold count
	writer  int64         // goroutine id of the active writer, 0 when free
}

func New() *Lock {
	l := &Lock{readers: make(map[int64]int)}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// AcquireRead takes a read hold. It blocks only while another goroutine
// holds the write side. Re-acquiring while already reading increments the
// hold count; acquiring while this goroutine is the writer is a no-op.
func (l *Lock) AcquireRead() {
	id := gid()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == id {
		return
	}
	if l.readers[id] > 0 {
		l.readers[id]++
		return
	}
	for l.writer != 0 {
		l.cond.Wait()
	}
	l.readers[id] = 1
}

// ReleaseRead drops one read hold. It is a no-op if this goroutine is the
// writer or holds no read lock.
func (l *Lock) ReleaseRead() {
	id := gid()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == id {
		return
	}
	n := l.readers[id]
	if n == 0 {
		return
	}
	if n == 1 {
		delete(l.readers, id)
		l.cond.Broadcast()
		return
	}
	l.readers[id] = n - 1
}

// AcquireWrite takes the write side. It blocks until no other writer is
// active and no goroutine other than the caller holds a read lock; the
// caller's own read holds do not block the upgrade. Re-acquiring while
// already the writer is a no-op that adds no extra hold: write holds are
// not counted, and the next ReleaseWrite fully releases. Take the write
// side once per critical section.
func (l *Lock) AcquireWrite() {
	id := gid()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer == id {
		return
	}
	for {
		others := len(l.readers)
		if l.readers[id] > 0 {
			others--
		}
		if l.writer == 0 && others == 0 {
			break
		}
		l.cond.Wait()
	}
	l.writer = id
}

// ReleaseWrite fully releases the write side. Read holds taken before an
// upgrade survive and must still be released. No-op unless this goroutine
// is the writer.
func (l *Lock) ReleaseWrite() {
	id := gid()
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != id {
		return
	}
	l.writer = 0
	l.cond.Broadcast()
}

// WithRead runs fn with a read hold, releasing it on every exit path
// including panics.
func (l *Lock) WithRead(fn func()) {
	l.AcquireRead()
	defer l.ReleaseRead()
	fn()
}

// WithWrite runs fn with the write side held, releasing it on every exit
// path including panics.
func (l *Lock) WithWrite(fn func()) {
	l.AcquireWrite()
	defer l.ReleaseWrite()
	fn()
}

package fanout

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(4)
	p.Start()

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		p.Submit(func() {
			ran.Add(1)
			wg.Done()
		})
	}
	wg.Wait()
	p.Stop()
	if ran.Load() != 200 {
		t.Errorf("ran %d of 200 tasks", ran.Load())
	}
}

func TestSubmitNeverBlocks(t *testing.T) {
	p := New(1)
	p.Start()
	defer p.Stop()

	block := make(chan struct{})
	p.Submit(func() { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			p.Submit(func() {})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit blocked with a busy worker")
	}
	close(block)
}

func TestStopDrainsQueue(t *testing.T) {
	p := New(2)
	p.Start()

	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		p.Submit(func() { ran.Add(1) })
	}
	p.Stop()
	if ran.Load() != 50 {
		t.Errorf("Stop dropped queued tasks: ran %d of 50", ran.Load())
	}
	// After Stop, submissions are dropped rather than queued.
	p.Submit(func() { ran.Add(1) })
	if ran.Load() != 50 {
		t.Error("task ran after Stop")
	}
}

func TestWorkerSurvivesPanic(t *testing.T) {
	p := New(1)
	p.Start()
	defer p.Stop()

	p.Submit(func() { panic("send failed hard") })

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker died after panic")
	}
}

func TestFIFOOrderSingleWorker(t *testing.T) {
	p := New(1)
	p.Start()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		p.Submit(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
		})
	}
	wg.Wait()
	p.Stop()
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, queue is not FIFO", i, v)
		}
	}
}

// Package fanout runs outbound send tasks on a fixed pool of workers so one
// slow or dead receiver cannot stall the goroutine that produced a message.
package fanout

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// Pool executes submitted tasks on a bounded set of worker goroutines fed
// from an unbounded FIFO queue: Submit never blocks the caller. Workers
// dequeue in FIFO order but run independently, so two queued tasks may
// complete out of submission order; callers needing strict ordering must
// serialize it themselves.
type Pool struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	workers int
	closed  bool
	wg      sync.WaitGroup
}

// New creates a pool with the given number of workers. Start must be called
// before tasks run.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{workers: workers}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the worker goroutines. Call once.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Submit enqueues a task. It never blocks; the queue grows as needed.
// Tasks submitted after Stop are dropped.
func (p *Pool) Submit(task func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, task)
	p.mu.Unlock()
	p.cond.Signal()
}

// Stop drains the queue and waits for all workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// QueueDepth returns the number of tasks waiting to run.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		task := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		runTask(task)
	}
}

// runTask executes one task, recovering panics so a bad send never kills a
// worker.
func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("fanout task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}

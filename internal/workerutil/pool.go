package workerutil

import (
	"log/slog"
	"runtime/debug"
	"sync"
)

// SafeCall runs fn and recovers any panic it raises. It reports whether fn
// returned normally.
func SafeCall(name string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("[DEBUG-PANIC] task recovered from panic",
				"task", name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	fn()
	return true
}

// Pool runs submitted tasks on a fixed number of worker goroutines.
//
// Submit never blocks: tasks are appended to an unbounded queue and picked up
// by the next idle worker. A pool with one worker runs tasks strictly in
// submission order. Panicking tasks are logged and do not stop the worker.
type Pool struct {
	name string

	mu     sync.Mutex
	queue  []func()
	closed bool
	signal chan struct{}

	wg sync.WaitGroup
}

// NewPool starts a pool with the given number of workers (minimum 1).
func NewPool(name string, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		name:   name,
		signal: make(chan struct{}, workers),
	}
	for range workers {
		p.wg.Go(p.worker)
	}
	return p
}

// Submit enqueues fn. It returns false when the pool is closed or fn is nil.
func (p *Pool) Submit(fn func()) bool {
	if fn == nil {
		return false
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.queue = append(p.queue, fn)
	select {
	case p.signal <- struct{}{}:
	default:
		// Every worker already has a pending wake-up.
	}
	p.mu.Unlock()
	return true
}

// pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Close stops accepting tasks, lets the workers drain the queue and waits for
// them to exit. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.closed = true
	close(p.signal)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	for {
		task, ok := p.next()
		if ok {
			SafeCall(p.name, task)
			continue
		}
		if _, open := <-p.signal; !open {
			// Drain whatever was queued before Close.
			for {
				task, ok := p.next()
				if !ok {
					return
				}
				SafeCall(p.name, task)
			}
		}
	}
}

func (p *Pool) next() (func(), bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil, false
	}
	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return task, true
}

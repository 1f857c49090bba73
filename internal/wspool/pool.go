package wspool

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStopped is returned by Submit once Shutdown has been called.
var ErrStopped = errors.New("wspool: pool is shut down")

// Pool is a fixed-size set of worker goroutines, one work-stealing Queue
// per worker, a round-robin submit counter, and a shared pending-task
// count that doubles as the wakeup predicate and the shutdown quiescence
// signal.
type Pool struct {
	queues  []*Queue
	stop    atomic.Bool
	next    atomic.Uint64
	pending atomic.Int64

	cvMu sync.Mutex
	cv   *sync.Cond

	wg sync.WaitGroup
}

// New starts a pool of n workers (coerced to at least 1). Workers run
// until Shutdown is called.
func New(n int) *Pool {
	if n < 1 {
		n = 1
	}

	p := &Pool{queues: make([]*Queue, n)}
	p.cv = sync.NewCond(&p.cvMu)
	for i := range p.queues {
		p.queues[i] = NewQueue()
	}

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.workerLoop(i)
	}
	return p
}

// Submit enqueues task on queue (next mod N) and wakes one waiting worker.
// Returns ErrStopped if Shutdown has already been called.
func (p *Pool) Submit(task Task) error {
	if p.stop.Load() {
		return ErrStopped
	}

	idx := int(p.next.Add(1)-1) % len(p.queues)
	p.queues[idx].Push(task)
	p.pending.Add(1)

	p.cvMu.Lock()
	p.cv.Signal()
	p.cvMu.Unlock()
	return nil
}

// Shutdown stops accepting new tasks, wakes every worker, and waits for
// all of them to join. It does not cancel tasks already queued; it drains
// the pending queue before returning.
func (p *Pool) Shutdown() {
	if !p.stop.CompareAndSwap(false, true) {
		return
	}

	p.cvMu.Lock()
	p.cv.Broadcast()
	p.cvMu.Unlock()

	p.wg.Wait()
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()

	for {
		if task, ok := p.tryGetTask(id); ok {
			runTask(task)
			continue
		}

		p.cvMu.Lock()
		for !p.stop.Load() && p.pending.Load() == 0 {
			p.cv.Wait()
		}
		done := p.stop.Load() && p.pending.Load() == 0
		p.cvMu.Unlock()

		if done {
			return
		}
	}
}

// tryGetTask pops from this worker's own queue first (LIFO, cache-hot),
// then steals from peers in index order (FIFO). The pending counter is
// decremented exactly once per successful dequeue, regardless of where the
// task came from.
func (p *Pool) tryGetTask(id int) (Task, bool) {
	if task, ok := p.queues[id].Pop(); ok {
		p.pending.Add(-1)
		return task, true
	}

	for i := range p.queues {
		if i == id {
			continue
		}
		if task, ok := p.queues[i].Steal(); ok {
			p.pending.Add(-1)
			return task, true
		}
	}
	return nil, false
}

// runTask executes task, swallowing any panic so the worker survives and
// keeps processing subsequent tasks.
func runTask(task Task) {
	defer func() {
		_ = recover()
	}()
	task()
}

// Package threadpool implements the submit-with-ticket,
// dequeue-in-ticket-order worker pool of spec.md §4.K / §5. There is no
// pack repo that implements a ticket-ordered pipeline like this one; the
// mutex-plus-two-condvar design is carried over directly from §5's own
// description of the C original's concurrency model rather than
// translated from any single example file, following the same
// errors/fmt.Errorf idiom the rest of this module uses.
package threadpool

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Submit/Dequeue once the pool has been closed.
// After a worker error, Submit/Dequeue return that latched error instead.
var ErrClosed = errors.New("threadpool: pool closed")

// Job is the unit of work submitted to a Pool. Do returns the result
// payload that will later be handed back by Dequeue, in ticket order.
type Job func(workerID int) (any, error)

type item struct {
	ticket int
	job    Job
	done   bool
	result any
	err    error
}

// Pool runs jobs across a bounded number of worker goroutines, but hands
// completed results back to the caller strictly in submission order
// (spec.md §5, "Ordering").
type Pool struct {
	mu         sync.Mutex
	workCond   *sync.Cond
	doneCond   *sync.Cond
	queue      []*item
	pending    map[int]*item // tickets submitted, not yet dequeued
	nextTicket int
	nextDeq    int
	inFlight   int
	maxBacklog int
	status     error
	closing    bool
	wg         sync.WaitGroup
}

// New starts n worker goroutines. maxBacklog bounds how many submitted
// jobs may be in flight (submitted and not yet dequeued, whether queued,
// executing or finished) before Submit blocks.
func New(n, maxBacklog int) *Pool {
	if n < 1 {
		n = 1
	}
	if maxBacklog < 1 {
		maxBacklog = n
	}
	p := &Pool{pending: make(map[int]*item), maxBacklog: maxBacklog}
	p.workCond = sync.NewCond(&p.mu)
	p.doneCond = sync.NewCond(&p.mu)

	p.wg.Add(n)
	for w := 0; w < n; w++ {
		go p.worker(w)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closing {
			p.workCond.Wait()
		}
		if len(p.queue) == 0 && p.closing {
			p.mu.Unlock()
			return
		}
		it := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		result, err := it.job(id)

		p.mu.Lock()
		it.done = true
		it.result = result
		it.err = err
		if err != nil && p.status == nil {
			p.status = fmt.Errorf("threadpool: worker %d: %w", id, err)
		}
		p.doneCond.Broadcast()
		p.mu.Unlock()
	}
}

// Submit assigns the next monotonically increasing ticket to job and
// enqueues it for a worker. It blocks while in_flight > maxBacklog.
func (p *Pool) Submit(job Job) (ticket int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for p.inFlight > p.maxBacklog && p.status == nil {
		p.doneCond.Wait()
	}
	if p.status != nil {
		return 0, p.status
	}

	ticket = p.nextTicket
	p.nextTicket++
	it := &item{ticket: ticket, job: job}
	p.pending[ticket] = it
	p.queue = append(p.queue, it)
	p.inFlight++
	p.workCond.Signal()
	return ticket, nil
}

// Dequeue blocks until the next ticket in order has completed, then
// returns its result. Tickets must be dequeued in the order Submit
// returned them.
func (p *Pool) Dequeue() (result any, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	it, ok := p.pending[p.nextDeq]
	for (!ok || !it.done) && p.status == nil {
		p.doneCond.Wait()
		it, ok = p.pending[p.nextDeq]
	}
	if !ok || !it.done {
		return nil, p.status
	}

	delete(p.pending, p.nextDeq)
	p.nextDeq++
	p.inFlight--
	p.doneCond.Broadcast()
	if it.err != nil && p.status == nil {
		p.status = it.err
	}
	return it.result, it.err
}

// Status returns the first latched worker error, or nil.
func (p *Pool) Status() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Close latches ErrClosed (if no error already latched), wakes all
// blocked goroutines, and waits for every worker to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closing = true
	if p.status == nil {
		p.status = ErrClosed
	}
	p.workCond.Broadcast()
	p.doneCond.Broadcast()
	p.mu.Unlock()
	p.wg.Wait()
}

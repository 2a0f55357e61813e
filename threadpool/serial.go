package threadpool

// SerialPool runs every job synchronously on the calling goroutine at
// Dequeue time, so it is indistinguishable from Pool to callers except
// that it never blocks and never reorders (spec.md §4.K). Used by
// deterministic tests and by a single-worker configuration.
type SerialPool struct {
	jobs       []Job
	nextTicket int
	status     error
}

func NewSerial() *SerialPool { return &SerialPool{} }

func (p *SerialPool) Submit(job Job) (ticket int, err error) {
	if p.status != nil {
		return 0, p.status
	}
	ticket = p.nextTicket
	p.nextTicket++
	p.jobs = append(p.jobs, job)
	return ticket, nil
}

func (p *SerialPool) Dequeue() (result any, err error) {
	if p.status != nil {
		return nil, p.status
	}
	if len(p.jobs) == 0 {
		return nil, ErrClosed
	}
	job := p.jobs[0]
	p.jobs = p.jobs[1:]
	result, err = job(0)
	if err != nil {
		p.status = err
	}
	return result, err
}

func (p *SerialPool) Status() error { return p.status }

func (p *SerialPool) Close() { p.status = ErrClosed }

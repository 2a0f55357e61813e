package threadpool

// Interface is satisfied by both Pool and SerialPool, letting callers
// (blockproc.Processor) swap concurrency for determinism in tests
// without changing call sites.
type Interface interface {
	Submit(job Job) (ticket int, err error)
	Dequeue() (result any, err error)
	Status() error
	Close()
}

var (
	_ Interface = (*Pool)(nil)
	_ Interface = (*SerialPool)(nil)
)

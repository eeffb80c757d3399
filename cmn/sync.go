package cmn

import "sync"

// StopCh is a specialized channel for stopping things, safe to Close from
// more than one goroutine at once (adapted from the teacher's cmn/sync.go).
// The worker's fasthttp handler runs each request on its own goroutine, so
// two concurrent shutdown requests closing the same bare channel would
// otherwise panic.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

func (sc *StopCh) Listen() <-chan struct{} { return sc.ch }

func (sc *StopCh) Close() { sc.once.Do(func() { close(sc.ch) }) }

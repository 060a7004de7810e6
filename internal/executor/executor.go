// Package executor provides the single cooperative goroutine that the
// remote store runs all of its state transitions on. User calls and
// stream callbacks are both funneled through Do, so that from the
// perspective of any caller a dispatched function executes atomically
// with respect to every other dispatched function.
package executor

import (
	"gopkg.in/tomb.v2"
)

type job struct {
	fn   func()
	done chan struct{}
}

// Executor serializes work onto a single background goroutine. It is
// the concrete shape of the "single cooperative executor owned by the
// host" that the remote store is specified against.
type Executor struct {
	tomb    tomb.Tomb
	request chan job
}

// New starts an Executor. The returned value owns a goroutine until
// Stop is called.
func New() *Executor {
	e := &Executor{
		request: make(chan job),
	}
	e.tomb.Go(e.loop)
	return e
}

func (e *Executor) loop() error {
	for {
		select {
		case j := <-e.request:
			j.fn()
			close(j.done)
		case <-e.tomb.Dying():
			return tomb.ErrDying
		}
	}
}

// Do runs fn on the executor goroutine and blocks until it has
// completed. It panics if called after Stop, matching the spec's
// "no further callbacks after a synchronous stop" guarantee: once the
// executor is dying, nothing further is allowed to observe state.
func (e *Executor) Do(fn func()) {
	j := job{fn: fn, done: make(chan struct{})}
	select {
	case e.request <- j:
		<-j.done
	case <-e.tomb.Dying():
		panic("executor: Do called after Stop")
	}
}

// Stop terminates the executor's goroutine. It is synchronous: once
// Stop returns, no previously-submitted Do call can still be pending
// and no future Do call will run its function.
func (e *Executor) Stop() {
	e.tomb.Kill(nil)
	_ = e.tomb.Wait()
}

package engine

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// coroutine runs a handler on its own goroutine, driven in lock-step by
// the scheduling loop.
//
// CRITICAL: exactly one side runs at any time. The loop blocks on stepCh
// while the handler runs; the handler blocks on resumeCh (or abortCh)
// while the loop runs. Bus state therefore never needs locking even
// though handlers execute on another goroutine.
//
// Protocol:
//
//	loop                       handler goroutine
//	start(fn) ──────────────▶  fn() runs
//	          ◀── step{yield}  ctx.Suspend(v)
//	resume(r) ──────────────▶  Suspend returns r
//	          ◀── step{done}   fn returns
//
// abort() unblocks a suspended handler by panicking out of Suspend with
// abortSignal; the goroutine recovers it and exits, so no goroutine is
// left behind when a run fails.
type coroutine struct {
	resumeCh chan any
	stepCh   chan step
	abortCh  chan struct{}
	started  bool
	finished bool
}

// step is one transfer of control back to the loop.
type step struct {
	yielded bool
	value   any // yielded value, or data returned by the handler
	err     error
}

// abortSignal is the panic value used to unwind an aborted handler.
type abortSignal struct{}

var errCoroutineAborted = errors.New("handler aborted")

// PanicError is a recovered handler or hook panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func newCoroutine() *coroutine {
	return &coroutine{
		resumeCh: make(chan any),
		stepCh:   make(chan step),
		abortCh:  make(chan struct{}),
	}
}

// start launches fn and blocks until it yields or returns.
func (c *coroutine) start(fn func() (any, error)) step {
	c.started = true
	go c.run(fn)
	return c.wait()
}

// resume delivers value to the pending Suspend and blocks until the
// handler yields again or returns.
func (c *coroutine) resume(value any) step {
	c.resumeCh <- value
	return c.wait()
}

func (c *coroutine) wait() step {
	st := <-c.stepCh
	if !st.yielded {
		c.finished = true
	}
	return st
}

func (c *coroutine) run(fn func() (any, error)) {
	var final step
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(abortSignal); ok {
				final = step{err: errCoroutineAborted}
			} else {
				final = step{err: &PanicError{Value: r, Stack: debug.Stack()}}
			}
		}
		c.stepCh <- final
	}()

	data, err := fn()
	final = step{value: data, err: err}
}

// yield is called on the handler goroutine.
func (c *coroutine) yield(value any) any {
	c.stepCh <- step{yielded: true, value: value}
	select {
	case v := <-c.resumeCh:
		return v
	case <-c.abortCh:
		panic(abortSignal{})
	}
}

// abort unwinds a suspended handler and waits for its goroutine to exit.
// No-op when the coroutine never started or already finished.
func (c *coroutine) abort() {
	if !c.started || c.finished {
		return
	}
	close(c.abortCh)
	for {
		// A handler that swallows the abort panic and suspends again is
		// aborted again on the next yield.
		if st := <-c.stepCh; !st.yielded {
			c.finished = true
			return
		}
	}
}

// suspended reports whether the handler is parked inside Suspend.
func (c *coroutine) suspended() bool {
	return c.started && !c.finished
}

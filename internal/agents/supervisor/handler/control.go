package handler

import (
	"sync"
	"sync/atomic"
	"time"
)

// Control is the cooperative stop switch of one run. The loop checks it between
// iterations, so a tool call that is already running always finishes first.
type Control struct {
	runID   string
	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewControl(runID string) *Control {
	return &Control{runID: runID, done: make(chan struct{})}
}

func (c *Control) RunID() string {
	return c.runID
}

func (c *Control) Stop() {
	c.stopped.Store(true)
}

func (c *Control) Stopped() bool {
	return c.stopped.Load()
}

// Done is closed once the run has reached a terminal state.
func (c *Control) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run is over or the timeout passes. It reports whether the run ended.
func (c *Control) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true
	case <-t.C:
		return false
	}
}

func (c *Control) finish() {
	c.once.Do(func() { close(c.done) })
}

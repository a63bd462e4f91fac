package search

import (
	"sync"
	"time"
)

// Timer is a restartable one-shot timer.
type Timer interface {
	// Start schedules fn after d, replacing any pending schedule.
	Start(d time.Duration, fn func())
	// Cancel drops the pending schedule, if any.
	Cancel()
}

type clockTimer struct {
	mu sync.Mutex
	t  *time.Timer
}

// NewTimer returns a Timer backed by time.AfterFunc.
func NewTimer() Timer { return &clockTimer{} }

func (c *clockTimer) Start(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t != nil {
		c.t.Stop()
	}
	c.t = time.AfterFunc(d, fn)
}

func (c *clockTimer) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t != nil {
		c.t.Stop()
		c.t = nil
	}
}

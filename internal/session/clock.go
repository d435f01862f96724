package session

import (
	"sync"
	"time"
)

// Handle identifies a scheduled tick so it can be cancelled.
type Handle uint64

// Clock is the time source of a session. Tests swap in a virtual clock.
type Clock interface {
	Now() time.Time
	// ScheduleTick calls fn every interval until the handle is cancelled.
	ScheduleTick(interval time.Duration, fn func()) Handle
	Cancel(h Handle)
}

// RealClock runs ticks on time.Ticker goroutines.
type RealClock struct {
	mu    sync.Mutex
	next  Handle
	stops map[Handle]chan struct{}
}

func NewRealClock() *RealClock {
	return &RealClock{stops: make(map[Handle]chan struct{})}
}

func (c *RealClock) Now() time.Time { return time.Now() }

func (c *RealClock) ScheduleTick(interval time.Duration, fn func()) Handle {
	c.mu.Lock()
	c.next++
	h := c.next
	stopCh := make(chan struct{})
	c.stops[h] = stopCh
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				select {
				case <-stopCh:
					return
				default:
				}
				fn()
			}
		}
	}()
	return h
}

func (c *RealClock) Cancel(h Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stopCh, ok := c.stops[h]; ok {
		close(stopCh)
		delete(c.stops, h)
	}
}

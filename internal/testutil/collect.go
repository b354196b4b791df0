package testutil

import (
	"sync"
	"time"
)

// DefaultWait bounds how long collectors block for an expected emission.
// Generous enough for loaded CI machines, short enough to fail fast.
const DefaultWait = 5 * time.Second

// Collector accumulates values received from a channel on a background
// goroutine, so tests can assert on emission order without racing the
// producer.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Collector[T any] struct {
	mu   sync.Mutex
	got  []T
	cond *sync.Cond
	done bool
}

// Collect starts draining ch until it closes and returns the collector.
func Collect[T any](ch <-chan T) *Collector[T] {
	c := &Collector[T]{}
	c.cond = sync.NewCond(&c.mu)
	go func() {
		for v := range ch {
			c.mu.Lock()
			c.got = append(c.got, v)
			c.cond.Broadcast()
			c.mu.Unlock()
		}
		c.mu.Lock()
		c.done = true
		c.cond.Broadcast()
		c.mu.Unlock()
	}()
	return c
}

// Values returns a snapshot of everything received so far.
func (c *Collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]T, len(c.got))
	copy(out, c.got)
	return out
}

// WaitLen blocks until at least n values have been received or DefaultWait
// elapses, then returns the snapshot. A short result signals a timeout;
// callers assert on the length.
func (c *Collector[T]) WaitLen(n int) []T {
	deadline := time.Now().Add(DefaultWait)
	timer := time.AfterFunc(DefaultWait, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.got) < n && !c.done && time.Now().Before(deadline) {
		c.cond.Wait()
	}
	out := make([]T, len(c.got))
	copy(out, c.got)
	return out
}

// WaitClosed blocks until the source channel closes or DefaultWait
// elapses, then returns everything received.
func (c *Collector[T]) WaitClosed() []T {
	deadline := time.Now().Add(DefaultWait)
	timer := time.AfterFunc(DefaultWait, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.done && time.Now().Before(deadline) {
		c.cond.Wait()
	}
	out := make([]T, len(c.got))
	copy(out, c.got)
	return out
}

// Eventually polls cond every millisecond until it holds or DefaultWait
// elapses. Returns whether the condition held.
func Eventually(cond func() bool) bool {
	deadline := time.Now().Add(DefaultWait)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

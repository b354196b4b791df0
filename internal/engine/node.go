package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/BoonLang/boon-go/internal/value"
)

// NodeID identifies one node within its engine instance.
type NodeID uint64

// Node is the atomic reactive unit: a driving task producing a sequence of
// Values, a cache of the latest one for late subscribers, and a fan-out
// registry.
//
// INVARIANTS:
//   - The cached value is replaced only by the node's own driving task
//     (single-writer). The mutex guards the subscriber registry and cache
//     reads, never concurrent writers.
//   - Lifetime follows the owning scope, not the subscriber count.
//     Dropping the scope cancels the task at its next suspension point and
//     closes all subscription channels.
type Node struct {
	id    NodeID
	site  Site
	eng   *Engine
	scope *Scope

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	last   value.Value
	has    bool
	subs   []*Subscription
	closed bool

	driven   bool
	taskDone chan struct{}
}

// ID returns the node's identity.
func (n *Node) ID() NodeID { return n.id }

// Site returns the node's construction-site metadata.
func (n *Node) Site() Site { return n.site }

// Current returns the cached latest value, if any. Snapshot reads by
// frozen constructs and external observers go through here.
func (n *Node) Current() (value.Value, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, n.has
}

// Subscribe registers a new receiver. If the node has a cached value the
// subscription's channel already holds it; live values follow in send
// order. The caller owns the receive side only and must Cancel it (or
// register it with an owning scope) when done.
func (n *Node) Subscribe() *Subscription {
	sub := &Subscription{
		producer: n,
		ch:       make(chan value.Value, n.eng.chanCap),
		gone:     make(chan struct{}),
	}
	n.mu.Lock()
	if n.has {
		sub.ch <- n.last // fresh buffered channel, never blocks
	}
	if n.closed {
		close(sub.ch)
	} else {
		n.subs = append(n.subs, sub)
	}
	n.mu.Unlock()
	return sub
}

// drive starts the node's driving task. Called exactly once, at
// construction. fn must do all its value production through emit/setSilent
// and return when ctx is done or its upstream is exhausted.
func (n *Node) drive(fn func(ctx context.Context)) {
	n.driven = true
	go func() {
		defer func() {
			n.eng.diag.emit(LifecycleTaskEnded, n.id, n.site)
			close(n.taskDone)
		}()
		fn(n.ctx)
	}()
}

// emit caches v and fans it out to every current subscriber, in
// registration order, honoring backpressure. Returns false once the node
// is cancelled; a send toward a cancelled subscriber is dropped silently.
// Called only from the driving task.
func (n *Node) emit(v value.Value) bool {
	n.mu.Lock()
	n.last, n.has = v, true
	subs := slices.Clone(n.subs)
	n.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- v:
		case <-sub.gone:
			// Receiver is gone; expected under teardown races.
		case <-n.ctx.Done():
			return false
		}
	}
	return n.ctx.Err() == nil
}

// setSilent replaces the cached value without fanning out. Used for the
// lagged feedback binding of stateful merge-latest: late reads observe the
// new state, but nothing is triggered by it. Called only from the driving
// task of the node feeding the cache.
func (n *Node) setSilent(v value.Value) {
	n.mu.Lock()
	n.last, n.has = v, true
	n.mu.Unlock()
}

// streamExhausted reports that the node's driving stream ended while the
// node is still owned, then parks until the scope tears the node down.
// The cached value stays observable for the node's remaining lifetime.
func (n *Node) streamExhausted(ctx context.Context) {
	n.eng.diag.emit(LifecycleStreamExhausted, n.id, n.site)
	<-ctx.Done()
}

// close tears the node down: cancel the task, wait for it to exit, then
// close every subscription channel so consumers observe exhaustion.
// Called only by the owning scope's Drop.
func (n *Node) close() {
	n.cancel()
	if n.driven {
		<-n.taskDone
	}
	n.mu.Lock()
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()
	for _, sub := range subs {
		close(sub.ch)
	}
	n.eng.diag.nodeDropped(n.id)
}

// removeSub detaches one subscription from the registry.
func (n *Node) removeSub(target *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.subs {
		if sub == target {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			return
		}
	}
}

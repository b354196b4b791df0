package engine

import (
	"context"
	"sync"
)

// Scope is one node of the explicit ownership tree. Every node belongs to
// exactly one scope; every scope hangs below its parent. Dropping a scope
// drops its children, cancels its owned subscriptions and keepalives, and
// tears down its nodes in reverse construction order.
//
// Ownership strictly follows the program's static scope nesting: detaching
// a parent construct drops every descendant node and cancels its task.
// Subscriptions never own; the sole non-owning reference between nodes is
// the event-binding link.
type Scope struct {
	eng    *Engine
	parent *Scope
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	children  []*Scope
	nodes     []*Node
	subs      []*Subscription
	keepalive map[string]*Subscription
	dropped   bool
}

func newScope(eng *Engine, parent *Scope, ctx context.Context) *Scope {
	sctx, cancel := context.WithCancel(ctx)
	return &Scope{
		eng:       eng,
		parent:    parent,
		ctx:       sctx,
		cancel:    cancel,
		keepalive: make(map[string]*Subscription),
	}
}

// Child creates a nested scope.
func (s *Scope) Child() *Scope {
	child := newScope(s.eng, s, s.ctx)
	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()
	return child
}

// Context returns the scope's context; it is cancelled when the scope or
// any ancestor is dropped.
func (s *Scope) Context() context.Context { return s.ctx }

// newNode constructs a node owned by this scope and registers it with
// diagnostics.
func (s *Scope) newNode(st Site) *Node {
	nctx, cancel := context.WithCancel(s.ctx)
	n := &Node{
		id:       NodeID(s.eng.nextNode.Add(1)),
		site:     st,
		eng:      s.eng,
		scope:    s,
		ctx:      nctx,
		cancel:   cancel,
		taskDone: make(chan struct{}),
	}
	s.mu.Lock()
	s.nodes = append(s.nodes, n)
	s.mu.Unlock()
	s.eng.diag.nodeCreated(n.id, st)
	return n
}

// ownSub ties a subscription's receive side to this scope: it is cancelled
// when the scope is dropped.
func (s *Scope) ownSub(sub *Subscription) {
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
}

// Keepalive registers a named subscription that must outlive the
// expression that created it but not this scope. Named registrations are
// inspectable via KeepaliveNames; an earlier registration under the same
// name is cancelled.
func (s *Scope) Keepalive(name string, sub *Subscription) {
	s.mu.Lock()
	prev := s.keepalive[name]
	s.keepalive[name] = sub
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}
}

// KeepaliveNames lists the scope's named keepalive registrations.
func (s *Scope) KeepaliveNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.keepalive))
	for name := range s.keepalive {
		names = append(names, name)
	}
	return names
}

// Drop tears the scope down: children first, then owned subscriptions and
// keepalives, then this scope's nodes in reverse construction order.
// Idempotent; safe to call while descendant tasks are blocked, since
// cancellation wakes every suspension point.
func (s *Scope) Drop() {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return
	}
	s.dropped = true
	children := s.children
	nodes := s.nodes
	subs := s.subs
	keepalive := s.keepalive
	s.children, s.nodes, s.subs = nil, nil, nil
	s.keepalive = make(map[string]*Subscription)
	s.mu.Unlock()

	// Cancel the whole subtree up front so no task is left blocked on a
	// send into something this drop is about to remove.
	s.cancel()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Drop()
	}
	for _, sub := range subs {
		sub.Cancel()
	}
	for _, sub := range keepalive {
		sub.Cancel()
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].close()
	}
}

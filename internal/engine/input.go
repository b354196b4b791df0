package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/value"
)

// InputNode is a node driven from outside the graph: external event
// sources (timers, UI input), link connections, and the rebindable
// pattern-arm inputs of WHILE all feed through one. From the engine's
// perspective its emissions are indistinguishable from any other
// upstream.
type InputNode struct {
	n  *Node
	ch chan value.Value
}

// newInputNode builds an externally-driven node owned by s.
func (s *Scope) newInputNode(st Site) *InputNode {
	n := s.newNode(st)
	in := &InputNode{
		n:  n,
		ch: make(chan value.Value, s.eng.chanCap),
	}
	n.drive(func(ctx context.Context) {
		for {
			select {
			case v := <-in.ch:
				if !n.emit(v) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
	return in
}

// Node returns the underlying node for subscription and wiring.
func (in *InputNode) Node() *Node { return in.n }

// Push delivers one external value. Blocks while the node's inbound
// channel is full (backpressure); a push into an already-cancelled node is
// dropped silently - producer liveness over strict delivery.
func (in *InputNode) Push(v value.Value) {
	select {
	case in.ch <- v:
	case <-in.n.ctx.Done():
	}
}

package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/value"
)

// constNode emits v once and then idles for its scope's lifetime. The
// driving task parks instead of returning so the node never looks
// prematurely exhausted to its subscribers.
func constNode(scope *Scope, st Site, v value.Value) *Node {
	n := scope.newNode(st)
	n.drive(func(ctx context.Context) {
		if n.emit(v) {
			<-ctx.Done()
		}
	})
	return n
}

// computeNode is the continuous scalar combinator backbone: it subscribes
// to every argument, keeps each argument's latest value, and recomputes
// once per propagation turn as soon as all arguments have produced at
// least one value. fn returning ok=false suppresses the emission for that
// turn.
func computeNode(scope *Scope, st Site, args []*Node, fn func(vals []value.Value) (value.Value, bool)) *Node {
	n := scope.newNode(st)
	fi := newFanIn(scope, n, args)
	n.drive(func(ctx context.Context) {
		vals := make([]value.Value, len(args))
		have := make([]bool, len(args))
		seen := 0
		for {
			batch, status := fi.collect(ctx)
			switch status {
			case fanCancelled:
				return
			case fanExhausted:
				n.streamExhausted(ctx)
				return
			}
			for _, m := range batch {
				if !have[m.idx] {
					have[m.idx] = true
					seen++
				}
				vals[m.idx] = m.v
			}
			if seen < len(args) {
				continue
			}
			out, ok := fn(vals)
			if !ok {
				continue
			}
			if !n.emit(out) {
				return
			}
		}
	})
	return n
}

package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// buildThen compiles `upstream |> THEN { body }`: each upstream tick
// evaluates the body exactly once against a snapshot of its dependencies'
// current values, and the result holds until the next tick. Dependency
// changes between ticks are invisible downstream because the per-tick body
// subgraph is torn down the moment its first value is taken.
func (e *Engine) buildThen(b *buildCtx, x tree.Then) (nodeRes, error) {
	piped, err := b.pipedNode("THEN")
	if err != nil {
		return nodeRes{}, err
	}

	n := b.scope.newNode(site("THEN", b.label))
	sub := piped.n.Subscribe()
	b.scope.ownSub(sub)

	body := x.Body
	bc := b.clone()
	n.drive(func(ctx context.Context) {
		for {
			tick, st := sub.recv(ctx)
			if st != recvOK {
				if st == recvClosed {
					n.streamExhausted(ctx)
				}
				return
			}
			out, ok := e.evalOnce(bc, n, tick, body, nil)
			if !ok {
				continue
			}
			if value.IsSkip(out) {
				continue
			}
			if !n.emit(out) {
				return
			}
		}
	})
	return nodeRes{n: n}, nil
}

package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/tree"
)

// buildLatest compiles `LATEST { e1, ..., en }`: every upstream event is
// forwarded downstream; events landing in the same propagation turn go out
// in declaration order. No upstream is ever cancelled because another won
// a turn, and there is no value until some branch first emits.
func (e *Engine) buildLatest(b *buildCtx, x tree.Latest) (nodeRes, error) {
	inputs := make([]*Node, len(x.Inputs))
	for i, in := range x.Inputs {
		res, err := e.eval(b, in)
		if err != nil {
			return nodeRes{}, err
		}
		inputs[i] = res.n
	}

	n := b.scope.newNode(site("LATEST", b.label))
	fi := newFanIn(b.scope, n, inputs)
	n.drive(func(ctx context.Context) {
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
				if !n.emit(m.v) {
					return
				}
			}
		}
	})
	return nodeRes{n: n}, nil
}

package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// buildWhen compiles `upstream |> WHEN { pattern => body, ... }`: the
// pattern-gated freeze. Each tick takes the first matching arm in
// declaration order and evaluates its body once, like THEN; pattern
// aliases are bound to the matched fragments for that evaluation. An arm
// resolving to the skip sentinel emits nothing - downstream sees no event
// at all, not a repeated old value.
func (e *Engine) buildWhen(b *buildCtx, x tree.When) (nodeRes, error) {
	piped, err := b.pipedNode("WHEN")
	if err != nil {
		return nodeRes{}, err
	}
	if err := checkArmCoverage("WHEN", b.label, x.Arms); err != nil {
		return nodeRes{}, err
	}

	n := b.scope.newNode(site("WHEN", b.label))
	sub := piped.n.Subscribe()
	b.scope.ownSub(sub)

	arms := x.Arms
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
			idx, bounds, ok := matchArms(arms, tick)
			if !ok {
				// Unreachable: arm coverage is checked at construction.
				continue
			}
			out, ok := e.evalOnce(bc, n, tick, arms[idx].Body, bounds)
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

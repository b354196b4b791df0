package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// buildWhile compiles `upstream |> WHILE { pattern => body, ... }`: the
// pattern-gated continuous flow. The selected arm's body subgraph stays
// live - its internal dependencies keep updating the output between
// upstream ticks. A tick re-matching the same arm only refreshes the arm's
// pattern bindings; a tick selecting a different arm tears the previous
// arm's subgraph down and wires the new one up.
func (e *Engine) buildWhile(b *buildCtx, x tree.While) (nodeRes, error) {
	piped, err := b.pipedNode("WHILE")
	if err != nil {
		return nodeRes{}, err
	}
	if err := checkArmCoverage("WHILE", b.label, x.Arms); err != nil {
		return nodeRes{}, err
	}

	n := b.scope.newNode(site("WHILE", b.label))
	sub := piped.n.Subscribe()
	b.scope.ownSub(sub)

	arms := x.Arms
	bc := b.clone()
	n.drive(func(ctx context.Context) {
		cur := -1
		var armScope *Scope
		var bindInputs map[tree.BindingID]*InputNode
		var passedIn *InputNode
		var bodyCh <-chan value.Value
		upCh := sub.ch

		// rewire tears down the previous arm (if any) and builds the
		// newly selected one, seeding its binding inputs from the match.
		rewire := func(idx int, tick value.Value, bounds []binding) {
			if armScope != nil {
				armScope.Drop()
				armScope, bodyCh, bindInputs, passedIn = nil, nil, nil, nil
			}
			cur = -1

			as := b.scope.Child()
			bb := bc.in(as)
			// The WHILE consumed the pipe; arm bodies reach the tick only
			// through the passed value and the pattern bindings.
			bb.piped = nil
			bindInputs = make(map[tree.BindingID]*InputNode, len(bounds))
			for _, bd := range bounds {
				in := as.newInputNode(site("pattern binding", ""))
				in.Push(bd.v)
				bindInputs[bd.id] = in
				bb = bb.bind(bd.id, nodeRes{n: in.n})
			}
			passedIn = as.newInputNode(site("passed value", ""))
			passedIn.Push(tick)
			bb.passed = passedIn.n

			res, err := e.eval(bb, arms[idx].Body)
			if err != nil {
				e.logger.Warn("arm construction failed",
					"site", n.site.String(), "err", err)
				as.Drop()
				return
			}
			bodySub := res.n.Subscribe()
			as.ownSub(bodySub)
			armScope, bodyCh, cur = as, bodySub.ch, idx
		}

		// refresh pushes new binding values into the live arm, draining
		// arm output in the meantime so a full body channel cannot wedge
		// the loop.
		refresh := func(in *InputNode, v value.Value) bool {
			for {
				select {
				case in.ch <- v:
					return true
				case bv, ok := <-bodyCh:
					if !ok {
						bodyCh = nil
						return true
					}
					if value.IsSkip(bv) {
						continue
					}
					if !n.emit(bv) {
						return false
					}
				case <-ctx.Done():
					return false
				}
			}
		}

		for {
			select {
			case tick, ok := <-upCh:
				if !ok {
					n.eng.diag.emit(LifecycleStreamExhausted, n.id, n.site)
					upCh = nil
					continue
				}
				idx, bounds, ok := matchArms(arms, tick)
				if !ok {
					// Unreachable: arm coverage is checked at construction.
					continue
				}
				if idx == cur {
					for _, bd := range bounds {
						if in := bindInputs[bd.id]; in != nil {
							if !refresh(in, bd.v) {
								return
							}
						}
					}
					if passedIn != nil && !refresh(passedIn, tick) {
						return
					}
					continue
				}
				rewire(idx, tick, bounds)

			case bv, ok := <-bodyCh:
				if !ok {
					bodyCh = nil
					continue
				}
				if value.IsSkip(bv) {
					continue
				}
				if !n.emit(bv) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: n}, nil
}

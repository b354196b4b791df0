package engine

import (
	"context"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// buildHold compiles the stateful merge-latest:
//
//	initial |> LATEST name { body }
//
// The piped expression's first value is the tick-zero state - unless prior
// state exists under the construct's persistence ID, in which case the
// persisted value wins and the literal initial is ignored. Body references
// to `name` read the node's own most recently emitted value through a
// silent feedback cache: reads always observe the lagged state, but a
// state change by itself never triggers anything, so the feedback cannot
// loop.
func (e *Engine) buildHold(b *buildCtx, x tree.Hold) (nodeRes, error) {
	piped, err := b.pipedNode("LATEST (stateful)")
	if err != nil {
		return nodeRes{}, err
	}

	scope := b.scope.Child()
	n := scope.newNode(site("LATEST", x.StateName))

	// The feedback cache. It has no driving production of its own: the
	// hold task refreshes it silently before each downstream emission.
	state := scope.newNode(site("state", x.StateName))
	state.drive(func(ctx context.Context) { park(ctx) })

	// Persistence is loaded before any tick runs; a load failure falls
	// back to the piped initial value.
	var persisted value.Value
	havePersisted := false
	if e.bridge != nil && !x.Persist.IsZero() {
		v, found, err := e.bridge.Load(scope.ctx, x.Persist)
		if err != nil {
			e.logger.Warn("state load failed, using initial value",
				"id", x.Persist.String(), "err", err)
		} else if found {
			persisted, havePersisted = v, true
		}
	}
	if havePersisted {
		// Seed the cache before the body is built so frozen reads during
		// early ticks already see the restored state.
		state.setSilent(persisted)
	}

	// The stateful LATEST consumed the pipe; the body sees only the state
	// binding, not the initial-value upstream.
	bb := b.in(scope).bind(x.State, nodeRes{n: state})
	bb.piped = nil
	body, err := e.eval(bb, x.Body)
	if err != nil {
		return nodeRes{}, err
	}

	initSub := piped.n.Subscribe()
	scope.ownSub(initSub)
	bodySub := body.n.Subscribe()
	scope.ownSub(bodySub)

	pid := x.Persist
	n.drive(func(ctx context.Context) {
		// Tick zero: persisted state, or the first piped value.
		var cur value.Value
		if havePersisted {
			cur = persisted
		} else {
			v, st := initSub.recv(ctx)
			if st != recvOK {
				if st == recvClosed {
					n.streamExhausted(ctx)
				}
				return
			}
			cur = v
		}
		state.setSilent(cur)
		if !n.emit(cur) {
			return
		}
		if e.bridge != nil && !pid.IsZero() {
			e.bridge.Schedule(pid, cur)
		}

		// Every body output is the next state. The cache is refreshed
		// before the downstream emission so anything the emission triggers
		// reads the new state.
		for {
			v, st := bodySub.recv(ctx)
			if st != recvOK {
				if st == recvClosed {
					n.streamExhausted(ctx)
				}
				return
			}
			cur = v
			state.setSilent(cur)
			if !n.emit(cur) {
				return
			}
			if e.bridge != nil && !pid.IsZero() {
				e.bridge.Schedule(pid, cur)
			}
		}
	})
	return nodeRes{n: n}, nil
}

package engine

import (
	"context"
	"strings"
	"time"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// Builtin constructs the node subgraph for one builtin call. Builtins
// receive the raw call so operations like List/map can take function
// arguments without functions ever becoming runtime values.
type Builtin func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error)

// evalCall dispatches a call to a user function instantiation or a
// registered builtin.
func (e *Engine) evalCall(b *buildCtx, x tree.Call) (nodeRes, error) {
	if x.Target != nil {
		return e.instantiate(b, x)
	}
	fn, ok := e.builtins[x.Path]
	if !ok {
		return nodeRes{}, buildErrorf(ErrCodeUnknownBuiltin, site("call", x.Path),
			"no builtin registered under %q", x.Path)
	}
	return fn(e, b, x)
}

// instantiate builds a user function body with parameters bound to
// argument nodes. Every call site gets its own body subgraph; the piped
// value, when present, is reachable inside as the passed value.
func (e *Engine) instantiate(b *buildCtx, x tree.Call) (nodeRes, error) {
	fn := x.Target
	st := site("call", fn.Name)

	byName := make(map[string]tree.Expr, len(x.Args))
	for _, a := range x.Args {
		byName[a.Name] = a.Expr
	}

	scope := b.scope.Child()
	bb := b.in(scope).withLabel(fn.Name)
	// The call consumes the pipe; inside the body and the argument
	// expressions the upstream is only the passed value.
	bb.piped = nil
	for _, p := range fn.Params {
		argExpr, ok := byName[p.Name]
		if !ok {
			return nodeRes{}, buildErrorf(ErrCodeBadArgument, st,
				"call to %q is missing argument %q", fn.Name, p.Name)
		}
		delete(byName, p.Name)
		res, err := e.eval(bb.withLabel(p.Name), argExpr)
		if err != nil {
			return nodeRes{}, err
		}
		bb = bb.bind(p.Binding, res)
	}
	for name := range byName {
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, st,
			"call to %q has no parameter %q", fn.Name, name)
	}
	if b.piped != nil {
		bb.passed = b.piped.n
	}
	return e.eval(bb, fn.Body)
}

// operandNodes evaluates a call's arguments in declaration order, with the
// piped upstream (when present) as the leading operand - the language's
// `a |> Math/sum(b)` convention.
func operandNodes(e *Engine, b *buildCtx, call tree.Call) ([]*Node, error) {
	var nodes []*Node
	ab := b
	if b.piped != nil {
		nodes = append(nodes, b.piped.n)
		// Arguments are not piped into; only this call receives the
		// upstream as its leading operand.
		ab = b.clone()
		ab.piped = nil
	}
	for _, a := range call.Args {
		res, err := e.eval(ab, a.Expr)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, res.n)
	}
	return nodes, nil
}

func standardBuiltins() map[string]Builtin {
	return map[string]Builtin{
		"Math/sum":       mathFold("Math/sum", func(acc, x float64) float64 { return acc + x }),
		"Math/product":   mathFold("Math/product", func(acc, x float64) float64 { return acc * x }),
		"Math/negate":    mathUnary("Math/negate", func(x float64) float64 { return -x }),
		"Math/greater":   mathCompare("Math/greater", func(a, b float64) bool { return a > b }),
		"Math/less":      mathCompare("Math/less", func(a, b float64) bool { return a < b }),
		"Math/equal":     builtinEqual,
		"Text/join":      builtinTextJoin,
		"Timer/interval": builtinTimerInterval,

		"List/count":  builtinListCount,
		"List/retain": builtinListRetain,
		"List/map":    builtinListMap,
		"List/sortBy": builtinListSortBy,
		"List/any":    builtinListAny,
		"List/all":    builtinListAll,
	}
}

// numbers extracts float operands; a non-numeric operand suppresses the
// turn's emission, which lets mixed transient states settle instead of
// crashing.
func numbers(vals []value.Value) ([]float64, bool) {
	out := make([]float64, len(vals))
	for i, v := range vals {
		n, ok := v.(value.Number)
		if !ok {
			return nil, false
		}
		out[i] = float64(n)
	}
	return out, true
}

func mathFold(path string, fold func(acc, x float64) float64) Builtin {
	return func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
		args, err := operandNodes(e, b, call)
		if err != nil {
			return nodeRes{}, err
		}
		if len(args) == 0 {
			return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", path),
				"%s needs at least one operand", path)
		}
		n := computeNode(b.scope, site("call", path), args, func(vals []value.Value) (value.Value, bool) {
			nums, ok := numbers(vals)
			if !ok {
				return nil, false
			}
			acc := nums[0]
			for _, x := range nums[1:] {
				acc = fold(acc, x)
			}
			return value.Number(acc), true
		})
		return nodeRes{n: n}, nil
	}
}

func mathUnary(path string, fn func(x float64) float64) Builtin {
	return func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
		args, err := operandNodes(e, b, call)
		if err != nil {
			return nodeRes{}, err
		}
		if len(args) != 1 {
			return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", path),
				"%s takes exactly one operand, got %d", path, len(args))
		}
		n := computeNode(b.scope, site("call", path), args, func(vals []value.Value) (value.Value, bool) {
			nums, ok := numbers(vals)
			if !ok {
				return nil, false
			}
			return value.Number(fn(nums[0])), true
		})
		return nodeRes{n: n}, nil
	}
}

func mathCompare(path string, cmp func(a, b float64) bool) Builtin {
	return func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
		args, err := operandNodes(e, b, call)
		if err != nil {
			return nodeRes{}, err
		}
		if len(args) != 2 {
			return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", path),
				"%s takes exactly two operands, got %d", path, len(args))
		}
		n := computeNode(b.scope, site("call", path), args, func(vals []value.Value) (value.Value, bool) {
			nums, ok := numbers(vals)
			if !ok {
				return nil, false
			}
			return value.Bool(cmp(nums[0], nums[1])), true
		})
		return nodeRes{n: n}, nil
	}
}

func builtinEqual(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	args, err := operandNodes(e, b, call)
	if err != nil {
		return nodeRes{}, err
	}
	if len(args) != 2 {
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", "Math/equal"),
			"Math/equal takes exactly two operands, got %d", len(args))
	}
	n := computeNode(b.scope, site("call", "Math/equal"), args, func(vals []value.Value) (value.Value, bool) {
		return value.Bool(value.Equal(vals[0], vals[1])), true
	})
	return nodeRes{n: n}, nil
}

func builtinTextJoin(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	args, err := operandNodes(e, b, call)
	if err != nil {
		return nodeRes{}, err
	}
	if len(args) == 0 {
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", "Text/join"),
			"Text/join needs at least one operand")
	}
	n := computeNode(b.scope, site("call", "Text/join"), args, func(vals []value.Value) (value.Value, bool) {
		var sb strings.Builder
		for _, v := range vals {
			sb.WriteString(interpolate(v))
		}
		return value.Text(sb.String()), true
	})
	return nodeRes{n: n}, nil
}

// builtinTimerInterval emits a Tick tag on a fixed cadence. The interval
// comes from the `ms` argument's first value; later values re-arm the
// timer. Timers are ordinary nodes - their emissions are indistinguishable
// from any other upstream.
func builtinTimerInterval(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	var msExpr tree.Expr
	for _, a := range call.Args {
		if a.Name == "ms" {
			msExpr = a.Expr
		} else {
			return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", "Timer/interval"),
				"Timer/interval has no parameter %q", a.Name)
		}
	}
	if msExpr == nil {
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", "Timer/interval"),
			"Timer/interval requires the ms argument")
	}
	msRes, err := e.eval(b, msExpr)
	if err != nil {
		return nodeRes{}, err
	}

	n := b.scope.newNode(site("call", "Timer/interval"))
	sub := msRes.n.Subscribe()
	b.scope.ownSub(sub)
	n.drive(func(ctx context.Context) {
		var ticker *time.Ticker
		var tick <-chan time.Time
		msCh := sub.ch
		defer func() {
			if ticker != nil {
				ticker.Stop()
			}
		}()
		for {
			select {
			case v, ok := <-msCh:
				if !ok {
					msCh = nil
					if tick == nil {
						n.streamExhausted(ctx)
						return
					}
					continue
				}
				ms, isNum := v.(value.Number)
				if !isNum || ms <= 0 {
					continue
				}
				if ticker != nil {
					ticker.Stop()
				}
				ticker = time.NewTicker(time.Duration(float64(ms)) * time.Millisecond)
				tick = ticker.C
			case <-tick:
				if !n.emit(value.Tag("Tick")) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: n}, nil
}

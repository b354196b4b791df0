package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// nodeRes is the result of evaluating one expression: its node, plus the
// live list behind it when the expression is a list.
type nodeRes struct {
	n    *Node
	list *ListNode
}

// env is the binding environment, a persistent chain so that concurrent
// instantiations of the same function body never observe each other's
// bindings.
type env struct {
	prev *env
	id   tree.BindingID
	res  nodeRes
}

func (e *env) lookup(id tree.BindingID) (nodeRes, bool) {
	for cur := e; cur != nil; cur = cur.prev {
		if cur.id == id {
			return cur.res, true
		}
	}
	return nodeRes{}, false
}

// buildCtx carries the evaluator's position: the owning scope, the binding
// environment, the piped upstream (if inside a pipe), and the passed value
// (if inside a freeze/arm body evaluation). Link tables are shared across
// the whole build.
type buildCtx struct {
	scope  *Scope
	env    *env
	piped  *nodeRes
	passed *Node
	label  string

	links      map[string]*InputNode
	linkStates map[tree.BindingID]*linkState
}

func (b *buildCtx) clone() *buildCtx {
	cp := *b
	return &cp
}

func (b *buildCtx) in(scope *Scope) *buildCtx {
	cp := b.clone()
	cp.scope = scope
	return cp
}

func (b *buildCtx) bind(id tree.BindingID, res nodeRes) *buildCtx {
	cp := b.clone()
	cp.env = &env{prev: b.env, id: id, res: res}
	return cp
}

// linkState tracks the single-connection invariant of an event-binding
// stub.
type linkState struct {
	in        *InputNode
	name      string
	mu        sync.Mutex
	connected bool
}

// connect wires src into the link. The forwarding subscription is owned
// by the connecting scope: links never own or extend their target's
// lifetime.
func (ls *linkState) connect(scope *Scope, src *Node) error {
	ls.mu.Lock()
	if ls.connected {
		ls.mu.Unlock()
		return buildErrorf(ErrCodeLinkConnected, ls.in.n.site,
			"link %q is already connected", ls.name)
	}
	ls.connected = true
	ls.mu.Unlock()

	sub := src.Subscribe()
	scope.ownSub(sub)
	go func() {
		for {
			v, st := sub.recv(scope.ctx)
			if st != recvOK {
				return
			}
			ls.in.Push(v)
		}
	}()
	return nil
}

// eval compiles one expression to a running node. The switch is
// exhaustive over the tree's closed expression sum.
func (e *Engine) eval(b *buildCtx, ex tree.Expr) (nodeRes, error) {
	switch x := ex.(type) {
	case tree.Ref:
		if x.Binding == tree.NoBinding {
			return nodeRes{}, buildErrorf(ErrCodeUnresolvedRef, site("reference", x.Name),
				"reference %q carries no resolved binding", x.Name)
		}
		res, ok := b.env.lookup(x.Binding)
		if !ok {
			return nodeRes{}, buildErrorf(ErrCodeUnresolvedRef, site("reference", x.Name),
				"reference %q resolves to a binding that is not in scope; a self-reference must go through a state-carrying combinator", x.Name)
		}
		return res, nil

	case tree.Lit:
		return nodeRes{n: constNode(b.scope, site("literal", ""), x.Value)}, nil

	case tree.TextExpr:
		return e.evalText(b, x)

	case tree.ListLit:
		return e.buildListLit(b, x)

	case tree.ObjectLit:
		return e.evalRecord(b, site("record", b.label), "", x.Fields)

	case tree.TaggedLit:
		return e.evalRecord(b, site("tagged record", x.Tag), x.Tag, x.Fields)

	case tree.Func:
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("function", x.Name),
			"function %q is not a value; functions appear in calls and operation arguments", x.Name)

	case tree.Call:
		return e.evalCall(b, x)

	case tree.Latest:
		return e.buildLatest(b, x)

	case tree.Hold:
		return e.buildHold(b, x)

	case tree.Then:
		return e.buildThen(b, x)

	case tree.When:
		return e.buildWhen(b, x)

	case tree.While:
		return e.buildWhile(b, x)

	case tree.Pipe:
		from, err := e.eval(b, x.From)
		if err != nil {
			return nodeRes{}, err
		}
		bp := b.clone()
		bp.piped = &from
		return e.eval(bp, x.To)

	case tree.Block:
		return e.evalBlock(b, x)

	case tree.Link:
		in := b.scope.newInputNode(site("link", x.Name))
		b.linkStates[x.Binding] = &linkState{in: in, name: x.Name}
		if b.links != nil {
			b.links[x.Name] = in
		}
		return nodeRes{n: in.n}, nil

	case tree.LinkSetter:
		return e.evalLinkSetter(b, x)

	case tree.Passed:
		if b.passed == nil {
			return nodeRes{}, buildErrorf(ErrCodeUnresolvedRef, site("passed value", ""),
				"no piped value is in scope here")
		}
		return nodeRes{n: b.passed}, nil

	case tree.Skip:
		return nodeRes{n: constNode(b.scope, site("skip", ""), value.Skip())}, nil

	default:
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, Site{},
			"unknown expression kind %T", ex)
	}
}

// pipedNode returns the piped upstream or a construction error naming the
// construct that required it.
func (b *buildCtx) pipedNode(construct string) (*nodeRes, error) {
	if b.piped == nil {
		return nil, buildErrorf(ErrCodePipeRequired, site(construct, b.label),
			"%s requires a piped upstream", construct)
	}
	return b.piped, nil
}

func (e *Engine) evalLinkSetter(b *buildCtx, x tree.LinkSetter) (nodeRes, error) {
	piped, err := b.pipedNode("link setter")
	if err != nil {
		return nodeRes{}, err
	}
	ls, ok := b.linkStates[x.Binding]
	if !ok {
		if _, bound := b.env.lookup(x.Binding); !bound {
			return nodeRes{}, buildErrorf(ErrCodeUnresolvedRef, site("link setter", x.Name),
				"link %q is not in scope", x.Name)
		}
		return nodeRes{}, buildErrorf(ErrCodeNotALink, site("link setter", x.Name),
			"%q is not an event binding", x.Name)
	}
	if err := ls.connect(b.scope, piped.n); err != nil {
		return nodeRes{}, err
	}
	// The setter's own result is the link node, so a setter can terminate
	// a pipeline while the link stays referenceable.
	return nodeRes{n: ls.in.n}, nil
}

func (e *Engine) evalBlock(b *buildCtx, x tree.Block) (nodeRes, error) {
	scope := b.scope.Child()
	bb := b.in(scope)
	for _, bv := range x.Vars {
		res, err := e.eval(bb.withLabel(bv.Name), bv.Expr)
		if err != nil {
			return nodeRes{}, err
		}
		bb = bb.bind(bv.Binding, res)
	}
	return e.eval(bb, x.Output)
}

func (b *buildCtx) withLabel(label string) *buildCtx {
	cp := b.clone()
	cp.label = label
	return cp
}

// evalRecord builds an object or tagged-record node that re-emits a fresh
// snapshot whenever any field changes.
func (e *Engine) evalRecord(b *buildCtx, st Site, tag string, defs []tree.FieldDef) (nodeRes, error) {
	if len(defs) == 0 {
		// No fields means no inputs to wait on, so the record is a constant.
		var v value.Value = value.NewObject()
		if tag != "" {
			v = value.NewTagged(tag)
		}
		return nodeRes{n: constNode(b.scope, st, v)}, nil
	}
	names := make([]string, len(defs))
	args := make([]*Node, len(defs))
	for i, fd := range defs {
		res, err := e.eval(b.withLabel(fd.Name), fd.Expr)
		if err != nil {
			return nodeRes{}, err
		}
		names[i] = fd.Name
		args[i] = res.n
	}
	n := computeNode(b.scope, st, args, func(vals []value.Value) (value.Value, bool) {
		fields := make([]value.Field, len(vals))
		for i, v := range vals {
			fields[i] = value.Field{Name: names[i], Value: v}
		}
		if tag != "" {
			return value.NewTagged(tag, fields...), true
		}
		return value.NewObject(fields...), true
	})
	return nodeRes{n: n}, nil
}

// evalText builds a text-with-interpolation node.
func (e *Engine) evalText(b *buildCtx, x tree.TextExpr) (nodeRes, error) {
	var embeds []*Node
	for _, p := range x.Parts {
		if p.Embed != nil {
			res, err := e.eval(b, p.Embed)
			if err != nil {
				return nodeRes{}, err
			}
			embeds = append(embeds, res.n)
		}
	}
	if len(embeds) == 0 {
		var sb strings.Builder
		for _, p := range x.Parts {
			sb.WriteString(p.Fixed)
		}
		return nodeRes{n: constNode(b.scope, site("text", ""), value.Text(sb.String()))}, nil
	}
	parts := x.Parts
	n := computeNode(b.scope, site("text", ""), embeds, func(vals []value.Value) (value.Value, bool) {
		var sb strings.Builder
		vi := 0
		for _, p := range parts {
			if p.Embed != nil {
				sb.WriteString(interpolate(vals[vi]))
				vi++
			} else {
				sb.WriteString(p.Fixed)
			}
		}
		return value.Text(sb.String()), true
	})
	return nodeRes{n: n}, nil
}

// interpolate renders a value inside text: Text embeds render raw, other
// kinds use their literal notation.
func interpolate(v value.Value) string {
	if t, ok := v.(value.Text); ok {
		return string(t)
	}
	return value.String(v)
}

// evalOnce performs one frozen body evaluation: build the body subgraph in
// a transient child scope with the tick's value as the passed node, take
// the subgraph's first output, and tear everything down again. References
// to outer nodes resolve to the outer nodes themselves, so the first value
// reflects their cached values at the instant of the tick.
func (e *Engine) evalOnce(b *buildCtx, owner *Node, tick value.Value, body tree.Expr, binds []binding) (value.Value, bool) {
	ts := b.scope.Child()
	defer ts.Drop()

	bb := b.in(ts)
	// The tick consumed the pipe: inside the body it is reachable only as
	// the passed value, never as an implicit call operand.
	bb.piped = nil
	bb.passed = constNode(ts, site("passed value", ""), tick)
	for _, bd := range binds {
		bb = bb.bind(bd.id, nodeRes{n: constNode(ts, site("pattern binding", ""), bd.v)})
	}
	res, err := e.eval(bb, body)
	if err != nil {
		// A per-tick construction failure drops the tick. This is the
		// data-level error path: the graph itself stays up.
		e.logger.Warn("frozen body construction failed",
			"site", owner.site.String(), "err", err)
		return nil, false
	}

	sub := res.n.Subscribe()
	defer sub.Cancel()
	v, st := sub.recv(owner.ctx)
	if st != recvOK {
		return nil, false
	}
	return v, true
}

// park blocks until ctx ends. Used by driving tasks whose upstream is
// exhausted but whose cached value must stay observable.
func park(ctx context.Context) {
	<-ctx.Done()
}

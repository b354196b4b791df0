package engine

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// pipedList resolves a call's piped upstream to its live list. List
// operations are pipe-consuming: `items |> List/retain(item: ...)`.
func pipedList(e *Engine, b *buildCtx, path string) (*ListNode, error) {
	if b.piped == nil {
		return nil, buildErrorf(ErrCodePipeRequired, site("call", path),
			"%s consumes a piped upstream", path)
	}
	if b.piped.list != nil {
		return b.piped.list, nil
	}
	if l, ok := e.ListOf(b.piped.n); ok {
		return l, nil
	}
	return nil, buildErrorf(ErrCodeListRequired, site("call", path),
		"%s requires a list upstream", path)
}

// funcArg extracts the single-parameter function argument of a list
// operation. Functions stay construction-time entities; they never flow as
// runtime values.
func funcArg(call tree.Call, path, name string) (*tree.Func, error) {
	for _, a := range call.Args {
		if a.Name != name {
			return nil, buildErrorf(ErrCodeBadArgument, site("call", path),
				"%s has no parameter %q", path, a.Name)
		}
		fn, ok := a.Expr.(tree.Func)
		if !ok {
			return nil, buildErrorf(ErrCodeBadArgument, site("call", path),
				"argument %q of %s must be a function", name, path)
		}
		if len(fn.Params) != 1 {
			return nil, buildErrorf(ErrCodeBadArgument, site("call", path),
				"the %s function takes exactly one parameter, got %d", path, len(fn.Params))
		}
		return &fn, nil
	}
	return nil, buildErrorf(ErrCodeBadArgument, site("call", path),
		"%s requires the %s argument", path, name)
}

// itemAux is the per-element derived subgraph of a list operation: an
// input node carrying the element's current value, the operation's
// function body built over it, and a forwarder tagging the body's results
// with the element identity. Dropping the scope tears the whole thing
// down.
type itemAux struct {
	scope *Scope
	in    *InputNode
}

func (a *itemAux) push(v value.Value) { a.in.Push(v) }
func (a *itemAux) drop()              { a.scope.Drop() }

// newItemAux builds the derived subgraph for one element. Build failures
// are runtime events here (the element arrived after construction), so
// they degrade to a logged skip rather than abort the running graph.
func newItemAux(e *Engine, b *buildCtx, parent *Scope, fn *tree.Func, id value.ItemID, v value.Value, mux chan auxMsg, ctx context.Context) *itemAux {
	is := parent.Child()
	in := is.newInputNode(site("list item", fn.Params[0].Name))
	in.Push(v)

	bb := b.in(is).bind(fn.Params[0].Binding, nodeRes{n: in.Node()})
	bb.piped = nil
	bb.passed = nil
	res, err := e.eval(bb, fn.Body)
	if err != nil {
		e.logger.Warn("list item subgraph build failed, element skipped",
			"item", uint64(id), "err", err)
		is.Drop()
		return nil
	}
	sub := res.n.Subscribe()
	is.ownSub(sub)
	go func() {
		for {
			out, st := sub.recv(ctx)
			if st != recvOK {
				return
			}
			select {
			case mux <- auxMsg{id: id, v: out}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &itemAux{scope: is, in: in}
}

// orderIndex returns the downstream position of id: the number of
// downstream-visible entries that precede it in upstream order.
func orderIndex(order []value.ItemID, visible func(value.ItemID) bool, id value.ItemID) int {
	idx := 0
	for _, o := range order {
		if o == id {
			return idx
		}
		if visible(o) {
			idx++
		}
	}
	return idx
}

// builtinListRetain keeps the upstream elements whose predicate holds.
// One element's predicate flipping produces exactly one Insert or Remove;
// only when a single turn flips more than the engine's replace threshold
// share of the list does the result collapse to a Replace.
func builtinListRetain(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	up, err := pipedList(e, b, "List/retain")
	if err != nil {
		return nodeRes{}, err
	}
	fn, err := funcArg(call, "List/retain", "fn")
	if err != nil {
		return nodeRes{}, err
	}

	scope := b.scope.Child()
	l := newListNode(e, scope, site("call", "List/retain"))
	upSub := up.Subscribe()

	type retEntry struct {
		aux   *itemAux
		val   value.Value
		keep  bool
		known bool
	}

	l.n.drive(func(ctx context.Context) {
		defer l.closeSubs()
		defer upSub.Cancel()

		ents := make(map[value.ItemID]*retEntry)
		var order []value.ItemID
		visible := func(id value.ItemID) bool {
			en := ents[id]
			return en != nil && en.known && en.keep
		}
		elems := func() []value.Element {
			out := make([]value.Element, 0, len(order))
			for _, id := range order {
				if visible(id) {
					out = append(out, value.Element{ID: id, Value: ents[id].val})
				}
			}
			return out
		}
		add := func(id value.ItemID, at int, v value.Value) {
			en := &retEntry{val: v}
			en.aux = newItemAux(e, b, l.items, fn, id, v, l.mux, ctx)
			ents[id] = en
			order = slices.Insert(order, at, id)
		}
		reset := func() {
			for _, en := range ents {
				if en.aux != nil {
					en.aux.drop()
				}
			}
			ents = make(map[value.ItemID]*retEntry)
			order = order[:0]
		}
		liveCount := func() int {
			n := 0
			for _, id := range order {
				if visible(id) {
					n++
				}
			}
			return n
		}

		if !l.publish(nil, ListChange{Kind: ListReplace}) {
			return
		}
		for {
			select {
			case c, ok := <-upSub.Changes():
				if !ok {
					l.n.streamExhausted(ctx)
					return
				}
				switch c.Kind {
				case ListReplace:
					reset()
					for i, el := range c.Elements {
						add(el.ID, i, el.Value)
					}
					if !l.publish(nil, ListChange{Kind: ListReplace}) {
						return
					}
				case ListInsert:
					add(c.ID, c.Index, c.Value)
				case ListUpdate:
					en := ents[c.ID]
					if en == nil {
						continue
					}
					en.val = c.Value
					if en.aux != nil {
						en.aux.push(c.Value)
					}
					if visible(c.ID) {
						if !l.publish(elems(), ListChange{Kind: ListUpdate, ID: c.ID, Value: c.Value}) {
							return
						}
					}
				case ListRemove:
					en := ents[c.ID]
					if en == nil {
						continue
					}
					wasVisible := visible(c.ID)
					if en.aux != nil {
						en.aux.drop()
					}
					delete(ents, c.ID)
					if i := slices.Index(order, c.ID); i >= 0 {
						order = slices.Delete(order, i, i+1)
					}
					if wasVisible {
						if !l.publish(elems(), ListChange{Kind: ListRemove, ID: c.ID}) {
							return
						}
					}
				}

			case m := <-l.mux:
				// One predicate result starts a turn; drain whatever else
				// already arrived so a bulk flip is seen as one batch.
				batch := []auxMsg{m}
			drain:
				for {
					select {
					case more := <-l.mux:
						batch = append(batch, more)
					default:
						break drain
					}
				}

				type flip struct {
					id     value.ItemID
					insert bool
				}
				var flips []flip
				for _, bm := range batch {
					en := ents[bm.id]
					if en == nil {
						continue
					}
					keep, isBool := bm.v.(value.Bool)
					if !isBool {
						continue
					}
					switch {
					case !en.known:
						if bool(keep) {
							flips = append(flips, flip{id: bm.id, insert: true})
						} else {
							en.known = true
						}
					case en.keep != bool(keep):
						flips = append(flips, flip{id: bm.id, insert: bool(keep)})
					}
				}
				if len(flips) == 0 {
					continue
				}
				if float64(len(flips)) > e.replaceThreshold*float64(max(liveCount(), 1)) {
					for _, f := range flips {
						en := ents[f.id]
						en.known, en.keep = true, f.insert
					}
					if !l.publish(elems(), ListChange{Kind: ListReplace, Elements: elems()}) {
						return
					}
					continue
				}
				// Each flip is applied and published in sequence so the
				// indices subscribers see always match the state they
				// have already applied.
				for _, f := range flips {
					en := ents[f.id]
					en.known, en.keep = true, f.insert
					if f.insert {
						if !l.publish(elems(), ListChange{
							Kind: ListInsert, ID: f.id, Index: orderIndex(order, visible, f.id), Value: en.val,
						}) {
							return
						}
					} else {
						if !l.publish(elems(), ListChange{Kind: ListRemove, ID: f.id}) {
							return
						}
					}
				}

			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: l.n, list: l}, nil
}

// builtinListMap transforms each element through the function while
// preserving identity and order: an upstream Update becomes a downstream
// Update of the same ID, never a rebuild, and untouched elements keep
// their derived subgraphs untouched.
func builtinListMap(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	up, err := pipedList(e, b, "List/map")
	if err != nil {
		return nodeRes{}, err
	}
	fn, err := funcArg(call, "List/map", "fn")
	if err != nil {
		return nodeRes{}, err
	}

	scope := b.scope.Child()
	l := newListNode(e, scope, site("call", "List/map"))
	upSub := up.Subscribe()

	type mapEntry struct {
		aux  *itemAux
		out  value.Value
		live bool
	}

	l.n.drive(func(ctx context.Context) {
		defer l.closeSubs()
		defer upSub.Cancel()

		ents := make(map[value.ItemID]*mapEntry)
		var order []value.ItemID
		visible := func(id value.ItemID) bool {
			en := ents[id]
			return en != nil && en.live
		}
		elems := func() []value.Element {
			out := make([]value.Element, 0, len(order))
			for _, id := range order {
				if visible(id) {
					out = append(out, value.Element{ID: id, Value: ents[id].out})
				}
			}
			return out
		}
		add := func(id value.ItemID, at int, v value.Value) {
			en := &mapEntry{}
			en.aux = newItemAux(e, b, l.items, fn, id, v, l.mux, ctx)
			ents[id] = en
			order = slices.Insert(order, at, id)
		}

		if !l.publish(nil, ListChange{Kind: ListReplace}) {
			return
		}
		for {
			select {
			case c, ok := <-upSub.Changes():
				if !ok {
					l.n.streamExhausted(ctx)
					return
				}
				switch c.Kind {
				case ListReplace:
					for _, en := range ents {
						if en.aux != nil {
							en.aux.drop()
						}
					}
					ents = make(map[value.ItemID]*mapEntry)
					order = order[:0]
					for i, el := range c.Elements {
						add(el.ID, i, el.Value)
					}
					if !l.publish(nil, ListChange{Kind: ListReplace}) {
						return
					}
				case ListInsert:
					add(c.ID, c.Index, c.Value)
				case ListUpdate:
					if en := ents[c.ID]; en != nil && en.aux != nil {
						en.aux.push(c.Value)
					}
				case ListRemove:
					en := ents[c.ID]
					if en == nil {
						continue
					}
					wasLive := en.live
					if en.aux != nil {
						en.aux.drop()
					}
					delete(ents, c.ID)
					if i := slices.Index(order, c.ID); i >= 0 {
						order = slices.Delete(order, i, i+1)
					}
					if wasLive {
						if !l.publish(elems(), ListChange{Kind: ListRemove, ID: c.ID}) {
							return
						}
					}
				}

			case m := <-l.mux:
				en := ents[m.id]
				if en == nil {
					continue
				}
				if !en.live {
					en.live = true
					en.out = m.v
					if !l.publish(elems(), ListChange{
						Kind: ListInsert, ID: m.id, Index: orderIndex(order, visible, m.id), Value: m.v,
					}) {
						return
					}
					continue
				}
				if value.Equal(en.out, m.v) {
					continue
				}
				en.out = m.v
				if !l.publish(elems(), ListChange{Kind: ListUpdate, ID: m.id, Value: m.v}) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: l.n, list: l}, nil
}

// keyCompare orders sort keys. Mixed kinds sort numbers before text
// before bools before tags; text compares under Unicode collation.
func keyCompare(coll *collate.Collator, a, b value.Value) int {
	rank := func(v value.Value) int {
		switch v.(type) {
		case value.Number:
			return 0
		case value.Text:
			return 1
		case value.Bool:
			return 2
		case value.Tag:
			return 3
		default:
			return 4
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case value.Number:
		return cmp.Compare(float64(av), float64(b.(value.Number)))
	case value.Text:
		return coll.CompareString(string(av), string(b.(value.Text)))
	case value.Bool:
		bv := b.(value.Bool)
		switch {
		case bool(av) == bool(bv):
			return 0
		case !bool(av):
			return -1
		default:
			return 1
		}
	case value.Tag:
		return cmp.Compare(string(av), string(b.(value.Tag)))
	default:
		return cmp.Compare(value.String(a), value.String(b))
	}
}

// builtinListSortBy keeps the elements ordered by a derived key. A key
// change that moves an element is a Remove plus an Insert of the same ID
// at the new position inside one turn; a key change that does not move it
// produces nothing.
func builtinListSortBy(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	up, err := pipedList(e, b, "List/sortBy")
	if err != nil {
		return nodeRes{}, err
	}
	fn, err := funcArg(call, "List/sortBy", "key")
	if err != nil {
		return nodeRes{}, err
	}

	scope := b.scope.Child()
	l := newListNode(e, scope, site("call", "List/sortBy"))
	upSub := up.Subscribe()
	coll := collate.New(language.Und)

	type sortEntry struct {
		aux    *itemAux
		val    value.Value
		key    value.Value
		seq    uint64
		hasKey bool
	}

	l.n.drive(func(ctx context.Context) {
		defer l.closeSubs()
		defer upSub.Cancel()

		ents := make(map[value.ItemID]*sortEntry)
		var order []value.ItemID // sorted downstream order, keyed entries only
		var seq uint64

		less := func(a, b value.ItemID) bool {
			ea, eb := ents[a], ents[b]
			if c := keyCompare(coll, ea.key, eb.key); c != 0 {
				return c < 0
			}
			return ea.seq < eb.seq
		}
		insertPos := func(id value.ItemID) int {
			pos, _ := slices.BinarySearchFunc(order, id, func(o, target value.ItemID) int {
				if less(o, target) {
					return -1
				}
				return 1
			})
			return pos
		}
		elems := func() []value.Element {
			out := make([]value.Element, 0, len(order))
			for _, id := range order {
				out = append(out, value.Element{ID: id, Value: ents[id].val})
			}
			return out
		}

		if !l.publish(nil, ListChange{Kind: ListReplace}) {
			return
		}
		for {
			select {
			case c, ok := <-upSub.Changes():
				if !ok {
					l.n.streamExhausted(ctx)
					return
				}
				switch c.Kind {
				case ListReplace:
					for _, en := range ents {
						if en.aux != nil {
							en.aux.drop()
						}
					}
					ents = make(map[value.ItemID]*sortEntry)
					order = order[:0]
					for _, el := range c.Elements {
						seq++
						en := &sortEntry{val: el.Value, seq: seq}
						en.aux = newItemAux(e, b, l.items, fn, el.ID, el.Value, l.mux, ctx)
						ents[el.ID] = en
					}
					if !l.publish(nil, ListChange{Kind: ListReplace}) {
						return
					}
				case ListInsert:
					seq++
					en := &sortEntry{val: c.Value, seq: seq}
					en.aux = newItemAux(e, b, l.items, fn, c.ID, c.Value, l.mux, ctx)
					ents[c.ID] = en
				case ListUpdate:
					en := ents[c.ID]
					if en == nil {
						continue
					}
					en.val = c.Value
					if en.aux != nil {
						en.aux.push(c.Value)
					}
					if en.hasKey {
						if !l.publish(elems(), ListChange{Kind: ListUpdate, ID: c.ID, Value: c.Value}) {
							return
						}
					}
				case ListRemove:
					en := ents[c.ID]
					if en == nil {
						continue
					}
					if en.aux != nil {
						en.aux.drop()
					}
					delete(ents, c.ID)
					if i := slices.Index(order, c.ID); i >= 0 {
						order = slices.Delete(order, i, i+1)
						if !l.publish(elems(), ListChange{Kind: ListRemove, ID: c.ID}) {
							return
						}
					}
				}

			case m := <-l.mux:
				en := ents[m.id]
				if en == nil {
					continue
				}
				if !en.hasKey {
					en.hasKey = true
					en.key = m.v
					pos := insertPos(m.id)
					order = slices.Insert(order, pos, m.id)
					if !l.publish(elems(), ListChange{
						Kind: ListInsert, ID: m.id, Index: pos, Value: en.val,
					}) {
						return
					}
					continue
				}
				if value.Equal(en.key, m.v) {
					continue
				}
				old := slices.Index(order, m.id)
				order = slices.Delete(order, old, old+1)
				en.key = m.v
				pos := insertPos(m.id)
				if pos == old {
					order = slices.Insert(order, pos, m.id)
					continue
				}
				if !l.publish(elems(), ListChange{Kind: ListRemove, ID: m.id}) {
					return
				}
				order = slices.Insert(order, pos, m.id)
				if !l.publish(elems(), ListChange{
					Kind: ListInsert, ID: m.id, Index: pos, Value: en.val,
				}) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: l.n, list: l}, nil
}

// builtinListCount emits the element count as a number, re-emitting only
// when it changes.
func builtinListCount(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
	up, err := pipedList(e, b, "List/count")
	if err != nil {
		return nodeRes{}, err
	}
	if len(call.Args) != 0 {
		return nodeRes{}, buildErrorf(ErrCodeBadArgument, site("call", "List/count"),
			"List/count takes no arguments")
	}

	n := b.scope.newNode(site("call", "List/count"))
	upSub := up.Subscribe()
	n.drive(func(ctx context.Context) {
		defer upSub.Cancel()
		count := 0
		emitted := false
		for {
			select {
			case c, ok := <-upSub.Changes():
				if !ok {
					n.streamExhausted(ctx)
					return
				}
				next := count
				switch c.Kind {
				case ListReplace:
					next = len(c.Elements)
				case ListInsert:
					next = count + 1
				case ListRemove:
					next = count - 1
				case ListUpdate:
					continue
				}
				if emitted && next == count {
					continue
				}
				count = next
				emitted = true
				if !n.emit(value.Number(count)) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
	return nodeRes{n: n}, nil
}

// listPredAgg is the shared machinery of List/any and List/all: a
// predicate subgraph per element, a running count of satisfied elements,
// and a boolean that re-emits only when the aggregate changes.
func listPredAgg(path string, agg func(trueCount, total int) bool) Builtin {
	return func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
		up, err := pipedList(e, b, path)
		if err != nil {
			return nodeRes{}, err
		}
		fn, err := funcArg(call, path, "fn")
		if err != nil {
			return nodeRes{}, err
		}

		scope := b.scope.Child()
		n := scope.newNode(site("call", path))
		auxRoot := scope.Child()
		mux := make(chan auxMsg, e.chanCap)
		upSub := up.Subscribe()

		type predEntry struct {
			aux   *itemAux
			hold  bool
			known bool
		}

		n.drive(func(ctx context.Context) {
			defer upSub.Cancel()
			ents := make(map[value.ItemID]*predEntry)
			trueCount, knownCount := 0, 0
			emitted := false
			var last bool

			settle := func() bool {
				// The aggregate is meaningful once every element's
				// predicate has produced a value.
				if knownCount < len(ents) {
					return true
				}
				out := agg(trueCount, len(ents))
				if emitted && out == last {
					return true
				}
				emitted, last = true, out
				return n.emit(value.Bool(out))
			}
			forget := func(id value.ItemID) {
				en := ents[id]
				if en == nil {
					return
				}
				if en.aux != nil {
					en.aux.drop()
				}
				if en.known {
					knownCount--
					if en.hold {
						trueCount--
					}
				}
				delete(ents, id)
			}

			for {
				select {
				case c, ok := <-upSub.Changes():
					if !ok {
						n.streamExhausted(ctx)
						return
					}
					switch c.Kind {
					case ListReplace:
						for id := range ents {
							forget(id)
						}
						for _, el := range c.Elements {
							en := &predEntry{}
							en.aux = newItemAux(e, b, auxRoot, fn, el.ID, el.Value, mux, ctx)
							ents[el.ID] = en
						}
					case ListInsert:
						en := &predEntry{}
						en.aux = newItemAux(e, b, auxRoot, fn, c.ID, c.Value, mux, ctx)
						ents[c.ID] = en
					case ListUpdate:
						if en := ents[c.ID]; en != nil && en.aux != nil {
							en.aux.push(c.Value)
						}
						continue
					case ListRemove:
						forget(c.ID)
					}
					if !settle() {
						return
					}

				case m := <-mux:
					en := ents[m.id]
					if en == nil {
						continue
					}
					hold, isBool := m.v.(value.Bool)
					if !isBool {
						continue
					}
					if !en.known {
						en.known = true
						knownCount++
						en.hold = bool(hold)
						if en.hold {
							trueCount++
						}
					} else if en.hold != bool(hold) {
						en.hold = bool(hold)
						if en.hold {
							trueCount++
						} else {
							trueCount--
						}
					}
					if !settle() {
						return
					}

				case <-ctx.Done():
					return
				}
			}
		})
		return nodeRes{n: n}, nil
	}
}

var (
	builtinListAny = listPredAgg("List/any", func(trueCount, total int) bool {
		return trueCount > 0
	})
	builtinListAll = listPredAgg("List/all", func(trueCount, total int) bool {
		return trueCount == total
	})
)

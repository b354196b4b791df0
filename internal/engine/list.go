package engine

import (
	"context"
	"slices"
	"sync"

	"github.com/BoonLang/boon-go/internal/persist"
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// ListChangeKind identifies one incremental list transition.
type ListChangeKind int

const (
	// ListReplace resets the whole ordered contents. Every subscriber's
	// first event is a synthetic Replace of the current state.
	ListReplace ListChangeKind = iota + 1
	// ListInsert adds one identified element at Index.
	ListInsert
	// ListUpdate changes the value behind an existing identity.
	ListUpdate
	// ListRemove removes one identity.
	ListRemove
)

// String returns the change kind name used in traces.
func (k ListChangeKind) String() string {
	switch k {
	case ListReplace:
		return "replace"
	case ListInsert:
		return "insert"
	case ListUpdate:
		return "update"
	case ListRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ListChange describes one incremental transition of an ordered,
// identity-stable collection.
//
// INVARIANT: every non-Replace change references an ID previously
// Inserted (or carried by a Replace) and not yet Removed. Insert carries
// the position because the collection is ordered; Update and Remove are
// by identity alone.
type ListChange struct {
	Kind     ListChangeKind
	ID       value.ItemID
	Index    int
	Value    value.Value
	Elements []value.Element
}

// ListSub is one registered receiver of a list's change stream.
type ListSub struct {
	producer *ListNode
	ch       chan ListChange
	gone     chan struct{}
	once     sync.Once
}

// Changes exposes the receive channel. The first delivery is always a
// synthetic Replace reflecting current state, so late joiners converge
// without special-casing; live diffs follow. The channel closes when the
// list is torn down.
func (s *ListSub) Changes() <-chan ListChange { return s.ch }

// Cancel withdraws the receiver; in-flight sends toward it are dropped.
func (s *ListSub) Cancel() {
	s.once.Do(func() {
		close(s.gone)
		s.producer.removeSub(s)
	})
}

// listEntry is the list task's record of one element.
type listEntry struct {
	id    value.ItemID
	node  *Node
	scope *Scope
	val   value.Value
	live  bool // announced to subscribers
}

type listEdit struct {
	remove bool
	id     value.ItemID
	node   *Node
	scope  *Scope
}

// ListNode maintains a live, ordered, identity-stable collection and
// emits structured change events rather than full snapshots. It fronts a
// regular Node whose cached value is the current snapshot, so scalar
// consumers (records, persistence, the CLI printer) can observe the list
// like any other upstream.
//
// All entry state is owned by the single driving task; the mutex guards
// only the subscriber registry and the snapshot cache.
type ListNode struct {
	n     *Node
	eng   *Engine
	items *Scope

	edits chan listEdit
	mux   chan auxMsg

	mu     sync.Mutex
	subs   []*ListSub
	snap   value.List
	closed bool
}

// auxMsg is one per-item auxiliary event (an item value, a predicate
// result, a sort key) tagged with the item's identity.
type auxMsg struct {
	id value.ItemID
	v  value.Value
}

// Node returns the list's facade node.
func (l *ListNode) Node() *Node { return l.n }

// Snapshot returns the current ordered contents.
func (l *ListNode) Snapshot() value.List {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Subscribe registers a change receiver. The returned subscription's
// channel already holds the synthetic Replace for the current state.
func (l *ListNode) Subscribe() *ListSub {
	sub := &ListSub{
		producer: l,
		ch:       make(chan ListChange, l.eng.chanCap),
		gone:     make(chan struct{}),
	}
	l.mu.Lock()
	sub.ch <- ListChange{Kind: ListReplace, Elements: l.snap.Elements()}
	if l.closed {
		// The list task is gone: deliver the final state, then close so
		// the subscriber's range terminates.
		close(sub.ch)
	} else {
		l.subs = append(l.subs, sub)
	}
	l.mu.Unlock()
	return sub
}

func (l *ListNode) removeSub(target *ListSub) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, sub := range l.subs {
		if sub == target {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

// Append builds one item subgraph inside a scope owned by the list and
// schedules its insertion at the tail. O(1): exactly one Insert reaches
// subscribers once the item produces its first value. Returns the new
// element's identity.
func (l *ListNode) Append(build func(itemScope *Scope) *Node) value.ItemID {
	id := value.ItemID(l.eng.newItemID())
	is := l.items.Child()
	n := build(is)
	select {
	case l.edits <- listEdit{id: id, node: n, scope: is}:
	case <-l.n.ctx.Done():
		is.Drop()
	}
	return id
}

// AppendValue appends a constant element. O(1).
func (l *ListNode) AppendValue(v value.Value) value.ItemID {
	return l.Append(func(is *Scope) *Node {
		return constNode(is, site("list item", ""), v)
	})
}

// Remove schedules removal of the identified element and the teardown of
// every node it owns. O(1): subscribers see exactly one Remove.
func (l *ListNode) Remove(id value.ItemID) {
	select {
	case l.edits <- listEdit{remove: true, id: id}:
	case <-l.n.ctx.Done():
	}
}

// newListNode allocates the shell shared by base and derived lists.
func newListNode(e *Engine, scope *Scope, st Site) *ListNode {
	l := &ListNode{
		n:     scope.newNode(st),
		eng:   e,
		items: scope.Child(),
		edits: make(chan listEdit, e.chanCap),
		mux:   make(chan auxMsg, e.chanCap),
	}
	e.registerList(l)
	return l
}

// publish updates the snapshot cache and fans one change out to every
// subscriber in registration order. Called only from the driving task.
func (l *ListNode) publish(elems []value.Element, c ListChange) bool {
	snap := value.NewList(elems...)

	l.mu.Lock()
	l.snap = snap
	subs := slices.Clone(l.subs)
	l.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- c:
		case <-sub.gone:
		case <-l.n.ctx.Done():
			return false
		}
	}
	// The facade mirrors every change as a fresh snapshot value.
	return l.n.emit(snap)
}

func (l *ListNode) closeSubs() {
	l.eng.unregisterList(l)
	l.mu.Lock()
	subs := l.subs
	l.subs = nil
	l.closed = true
	l.mu.Unlock()
	for _, sub := range subs {
		close(sub.ch)
	}
}

// watchItem subscribes the list task to one item node, tagging its values
// with the item identity. The subscription is owned by the item's scope,
// so removal cancels it.
func (l *ListNode) watchItem(id value.ItemID, en *Node, is *Scope) {
	sub := en.Subscribe()
	is.ownSub(sub)
	go func() {
		for {
			v, st := sub.recv(l.n.ctx)
			if st != recvOK {
				return
			}
			select {
			case l.mux <- auxMsg{id: id, v: v}:
			case <-l.n.ctx.Done():
				return
			}
		}
	}()
}

// buildListLit compiles `LIST { e1, ..., en }` into a base list node.
// When the construct carries a persistence ID and prior state exists, the
// persisted contents replace the literal items entirely - that is the
// point of list persistence.
func (e *Engine) buildListLit(b *buildCtx, x tree.ListLit) (nodeRes, error) {
	scope := b.scope.Child()
	l := newListNode(e, scope, site("LIST", b.label))

	var restored []value.Element
	restoredOK := false
	if e.bridge != nil && !x.Persist.IsZero() {
		v, found, err := e.bridge.Load(scope.ctx, x.Persist)
		if err != nil {
			e.logger.Warn("list state load failed, using literal items",
				"id", x.Persist.String(), "err", err)
		} else if found {
			if snap, ok := v.(value.List); ok {
				restored = snap.Elements()
				restoredOK = true
			}
		}
	}

	var entries []listEntry
	if restoredOK {
		for _, el := range restored {
			e.bumpItemID(uint64(el.ID))
			is := l.items.Child()
			n := constNode(is, site("list item", ""), el.Value)
			entries = append(entries, listEntry{
				id: el.ID, node: n, scope: is, val: el.Value, live: true,
			})
			l.watchItem(el.ID, n, is)
		}
	} else {
		for _, itemExpr := range x.Items {
			is := l.items.Child()
			res, err := e.eval(b.in(is), itemExpr)
			if err != nil {
				return nodeRes{}, err
			}
			id := value.ItemID(e.newItemID())
			en := listEntry{id: id, node: res.n, scope: is}
			if v, ok := res.n.Current(); ok {
				en.val, en.live = v, true
			}
			entries = append(entries, en)
			l.watchItem(id, res.n, is)
		}
	}

	pid := x.Persist
	l.n.drive(func(ctx context.Context) {
		l.runBase(ctx, entries, pid)
	})
	return nodeRes{n: l.n, list: l}, nil
}

func liveElems(entries []listEntry) []value.Element {
	elems := make([]value.Element, 0, len(entries))
	for _, en := range entries {
		if en.live {
			elems = append(elems, value.Element{ID: en.id, Value: en.val})
		}
	}
	return elems
}

// runBase is the driving loop of a base list: it owns the entry slice and
// serializes edits, item updates and fan-out.
func (l *ListNode) runBase(ctx context.Context, entries []listEntry, pid persist.ID) {
	e := l.eng
	defer l.closeSubs()

	persistNow := func() {
		if e.bridge != nil && !pid.IsZero() {
			e.bridge.Schedule(pid, l.Snapshot())
		}
	}

	find := func(id value.ItemID) int {
		for i := range entries {
			if entries[i].id == id {
				return i
			}
		}
		return -1
	}
	liveIndex := func(i int) int {
		idx := 0
		for j := 0; j < i; j++ {
			if entries[j].live {
				idx++
			}
		}
		return idx
	}

	// On shutdown, edits already queued must still land in the snapshot
	// and the persistence layer before the writer is flushed.
	defer func() {
		changed := false
		for {
			select {
			case ed := <-l.edits:
				if ed.remove {
					if i := find(ed.id); i >= 0 {
						en := entries[i]
						entries = append(entries[:i], entries[i+1:]...)
						en.scope.Drop()
						changed = changed || en.live
					}
					continue
				}
				en := listEntry{id: ed.id, node: ed.node, scope: ed.scope}
				if v, ok := ed.node.Current(); ok {
					en.val, en.live = v, true
					changed = true
				}
				entries = append(entries, en)
			case m := <-l.mux:
				if i := find(m.id); i >= 0 {
					if !entries[i].live || !value.Equal(entries[i].val, m.v) {
						entries[i].val, entries[i].live = m.v, true
						changed = true
					}
				}
			default:
				if changed {
					l.mu.Lock()
					l.snap = value.NewList(liveElems(entries)...)
					l.mu.Unlock()
					persistNow()
				}
				return
			}
		}
	}()

	// The initial snapshot (literal or restored) is observable before any
	// tick: publish it to the facade even when empty.
	if !l.publish(liveElems(entries), ListChange{Kind: ListReplace, Elements: liveElems(entries)}) {
		return
	}

	for {
		select {
		case ed := <-l.edits:
			if ed.remove {
				i := find(ed.id)
				if i < 0 {
					continue
				}
				en := entries[i]
				entries = append(entries[:i], entries[i+1:]...)
				en.scope.Drop()
				if en.live {
					if !l.publish(liveElems(entries), ListChange{Kind: ListRemove, ID: en.id}) {
						return
					}
					persistNow()
				}
				continue
			}
			en := listEntry{id: ed.id, node: ed.node, scope: ed.scope}
			if v, ok := ed.node.Current(); ok {
				en.val, en.live = v, true
			}
			entries = append(entries, en)
			l.watchItem(ed.id, ed.node, ed.scope)
			if en.live {
				if !l.publish(liveElems(entries), ListChange{
					Kind: ListInsert, ID: en.id, Index: liveIndex(len(entries) - 1), Value: en.val,
				}) {
					return
				}
				persistNow()
			}

		case m := <-l.mux:
			i := find(m.id)
			if i < 0 {
				continue
			}
			if !entries[i].live {
				entries[i].val, entries[i].live = m.v, true
				if !l.publish(liveElems(entries), ListChange{
					Kind: ListInsert, ID: m.id, Index: liveIndex(i), Value: m.v,
				}) {
					return
				}
				persistNow()
				continue
			}
			if value.Equal(entries[i].val, m.v) {
				continue
			}
			entries[i].val = m.v
			if !l.publish(liveElems(entries), ListChange{Kind: ListUpdate, ID: m.id, Value: m.v}) {
				return
			}
			persistNow()

		case <-ctx.Done():
			return
		}
	}
}

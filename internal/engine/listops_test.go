package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/testutil"
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// itemFn builds the single-parameter function literal used by list
// operations, with the parameter bound under the given id.
func itemFn(binding tree.BindingID, body tree.Expr) tree.Func {
	return tree.Func{
		Name:   "item",
		Params: []tree.Param{{Name: "item", Binding: binding}},
		Body:   body,
	}
}

// greaterThan builds `item > bound` over the item parameter.
func greaterThan(binding tree.BindingID, bound float64) tree.Func {
	return itemFn(binding, tree.Call{Path: "Math/greater", Args: []tree.Arg{
		{Name: "a", Expr: tree.Ref{Name: "item", Binding: binding}},
		{Name: "b", Expr: num(bound)},
	}})
}

func listPipe(from tree.Expr, path, argName string, fn tree.Func) tree.Expr {
	return tree.Pipe{
		From: from,
		To: tree.Call{Path: path, Args: []tree.Arg{
			{Name: argName, Expr: fn},
		}},
	}
}

func waitValues(t *testing.T, l *ListNode, want []value.Value) {
	t.Helper()
	ok := testutil.Eventually(func() bool {
		got := l.Snapshot().Values()
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if !value.Equal(got[i], want[i]) {
				return false
			}
		}
		return true
	})
	require.True(t, ok, "snapshot never settled at %v, have %v", want, l.Snapshot().Values())
}

func TestListRetain_FiltersByPredicate(t *testing.T) {
	e := testEngine(t)
	_, l := buildList(t, e, listPipe(
		listLit(num(1), num(5), num(3), num(9)),
		"List/retain", "fn", greaterThan(7, 2),
	))
	waitValues(t, l, []value.Value{value.Number(5), value.Number(3), value.Number(9)})
}

func TestListRetain_OneFlipOneChange(t *testing.T) {
	e := testEngine(t)

	// A large list where a single item's value crossing the predicate
	// boundary must cost exactly one incremental change.
	items := make([]tree.Expr, 0, 1000)
	for i := 0; i < 999; i++ {
		items = append(items, num(10))
	}
	items = append(items, tree.Ref{Name: "x", Binding: 1})

	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "x", Binding: 1, Expr: tree.Link{Name: "x", Binding: 1}},
		},
		Output: listPipe(tree.ListLit{Items: items}, "List/retain", "fn", greaterThan(7, 2)),
	})
	l := res.RootList
	require.NotNil(t, l)

	res.Links["x"].Push(value.Number(1)) // excluded
	waitSnapshotLen(t, l, 999)

	sub := l.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Changes())
	c.WaitLen(1) // synthetic replace

	res.Links["x"].Push(value.Number(100)) // flips in
	got := c.WaitLen(2)
	require.Len(t, got, 2, "one predicate flip must cost one change")
	assert.Equal(t, ListInsert, got[1].Kind)
	assert.Equal(t, 999, got[1].Index)
	assert.Equal(t, value.Number(100), got[1].Value)

	res.Links["x"].Push(value.Number(1)) // flips back out
	got = c.WaitLen(4)
	require.Len(t, got, 4)
	// The value change reaches the retained element before the predicate
	// verdict removes it.
	assert.Equal(t, ListUpdate, got[2].Kind)
	assert.Equal(t, ListRemove, got[3].Kind)
	assert.Equal(t, got[1].ID, got[3].ID)
}

func TestListRetain_DroppedDerivedFreesUpstream(t *testing.T) {
	e := testEngine(t)
	res, l := buildList(t, e, listLit(num(1), num(5)))

	derived := res.Scope.Child()
	bc := &buildCtx{scope: derived, piped: &nodeRes{n: l.Node(), list: l}}
	_, err := builtinListRetain(e, bc, tree.Call{Path: "List/retain", Args: []tree.Arg{
		{Name: "fn", Expr: greaterThan(7, 2)},
	}})
	require.NoError(t, err)
	derived.Drop()

	// Far more edits than any channel buffers: the base list's fan-out
	// must not wedge on the defunct downstream.
	const extra = 3 * DefaultChannelCapacity
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < extra; i++ {
			l.AppendValue(value.Number(float64(i + 10)))
		}
	}()
	waitSnapshotLen(t, l, 2+extra)
	<-done
}

func TestListMap_TransformsAndKeepsIdentity(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "x", Binding: 1, Expr: tree.Link{Name: "x", Binding: 1}},
		},
		Output: listPipe(
			tree.ListLit{Items: []tree.Expr{num(1), tree.Ref{Name: "x", Binding: 1}}},
			"List/map", "fn",
			itemFn(7, tree.Call{Path: "Math/sum", Args: []tree.Arg{
				{Name: "a", Expr: tree.Ref{Name: "item", Binding: 7}},
				{Name: "b", Expr: num(100)},
			}}),
		),
	})
	l := res.RootList
	require.NotNil(t, l)

	res.Links["x"].Push(value.Number(2))
	waitValues(t, l, []value.Value{value.Number(101), value.Number(102)})
	mappedID := l.Snapshot().At(1).ID

	sub := l.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Changes())
	c.WaitLen(1)

	// An upstream value change is a downstream Update of the same ID.
	res.Links["x"].Push(value.Number(3))
	got := c.WaitLen(2)
	require.Len(t, got, 2)
	assert.Equal(t, ListUpdate, got[1].Kind)
	assert.Equal(t, mappedID, got[1].ID)
	assert.Equal(t, value.Number(103), got[1].Value)
}

func TestListSortBy_OrdersByKey(t *testing.T) {
	e := testEngine(t)
	_, l := buildList(t, e, listPipe(
		listLit(num(3), num(1), num(2)),
		"List/sortBy", "key",
		itemFn(7, tree.Ref{Name: "item", Binding: 7}),
	))
	waitValues(t, l, []value.Value{value.Number(1), value.Number(2), value.Number(3)})
}

func TestListSortBy_TextKeysUseCollation(t *testing.T) {
	e := testEngine(t)
	_, l := buildList(t, e, listPipe(
		listLit(txt("pear"), txt("Apple"), txt("apple")),
		"List/sortBy", "key",
		itemFn(7, tree.Ref{Name: "item", Binding: 7}),
	))
	ok := testutil.Eventually(func() bool {
		vals := l.Snapshot().Values()
		return len(vals) == 3 && value.Equal(vals[2], value.Text("pear"))
	})
	assert.True(t, ok, "collated order never settled: %v", l.Snapshot().Values())
}

func TestListSortBy_KeyChangeRepositionsSameID(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "x", Binding: 1, Expr: tree.Link{Name: "x", Binding: 1}},
		},
		Output: listPipe(
			tree.ListLit{Items: []tree.Expr{num(2), num(4), tree.Ref{Name: "x", Binding: 1}}},
			"List/sortBy", "key",
			itemFn(7, tree.Ref{Name: "item", Binding: 7}),
		),
	})
	l := res.RootList
	require.NotNil(t, l)

	res.Links["x"].Push(value.Number(3))
	waitValues(t, l, []value.Value{value.Number(2), value.Number(3), value.Number(4)})
	movingID := l.Snapshot().At(1).ID

	sub := l.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Changes())
	c.WaitLen(1)

	res.Links["x"].Push(value.Number(9))
	ok := testutil.Eventually(func() bool {
		vals := l.Snapshot().Values()
		return len(vals) == 3 && value.Equal(vals[2], value.Number(9))
	})
	require.True(t, ok)

	// Reposition is a Remove plus an Insert of the same identity.
	got := c.Values()
	var removes, inserts []ListChange
	for _, ch := range got[1:] {
		switch ch.Kind {
		case ListRemove:
			removes = append(removes, ch)
		case ListInsert:
			inserts = append(inserts, ch)
		}
	}
	require.NotEmpty(t, removes)
	require.NotEmpty(t, inserts)
	assert.Equal(t, movingID, removes[len(removes)-1].ID)
	assert.Equal(t, movingID, inserts[len(inserts)-1].ID)
	assert.Equal(t, 2, inserts[len(inserts)-1].Index)
}

func TestListCount_TracksMembership(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "xs", Binding: 1, Expr: listLit(num(1), num(2))},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "xs", Binding: 1},
			To:   tree.Call{Path: "List/count"},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())
	ok := testutil.Eventually(func() bool {
		vals := c.Values()
		return len(vals) > 0 && value.Equal(vals[len(vals)-1], value.Number(2))
	})
	assert.True(t, ok, "count never settled at 2: %v", c.Values())
}

func TestListAny_And_ListAll(t *testing.T) {
	e := testEngine(t)

	anyRes := build(t, e, listPipe(
		listLit(num(1), num(5)),
		"List/any", "fn", greaterThan(7, 2),
	))
	anySub := anyRes.Root.Subscribe()
	defer anySub.Cancel()
	anyC := testutil.Collect(anySub.Values())
	ok := testutil.Eventually(func() bool {
		vals := anyC.Values()
		return len(vals) > 0 && value.Equal(vals[len(vals)-1], value.Bool(true))
	})
	assert.True(t, ok, "any never settled at true: %v", anyC.Values())

	allRes := build(t, e, listPipe(
		listLit(num(1), num(5)),
		"List/all", "fn", greaterThan(7, 2),
	))
	allSub := allRes.Root.Subscribe()
	defer allSub.Cancel()
	allC := testutil.Collect(allSub.Values())
	ok = testutil.Eventually(func() bool {
		vals := allC.Values()
		return len(vals) > 0 && value.Equal(vals[len(vals)-1], value.Bool(false))
	})
	assert.True(t, ok, "all never settled at false: %v", allC.Values())
}

func TestListAll_EmptyListIsTrue(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, listPipe(listLit(), "List/all", "fn", greaterThan(7, 2)))

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	got := testutil.Collect(sub.Values()).WaitLen(1)
	require.NotEmpty(t, got)
	assert.Equal(t, value.Bool(true), got[0])
}

func TestListOps_RequireListUpstream(t *testing.T) {
	e := testEngine(t)
	_, err := e.Build(&tree.Program{
		Name: t.Name(),
		Root: tree.Pipe{
			From: num(1),
			To:   tree.Call{Path: "List/count"},
		},
	})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodeListRequired))
}

func TestListOps_RequirePipe(t *testing.T) {
	e := testEngine(t)
	_, err := e.Build(&tree.Program{
		Name: t.Name(),
		Root: tree.Call{Path: "List/count"},
	})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodePipeRequired))
}

package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/testutil"
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

// freezeProg wires a trigger link through THEN over a dependency link:
// the output must reflect the dependency only at trigger instants.
func freezeProg() tree.Expr {
	const (
		depB  tree.BindingID = 1
		trigB tree.BindingID = 2
	)
	return tree.Block{
		Vars: []tree.BlockVar{
			{Name: "dep", Binding: depB, Expr: tree.Link{Name: "dep", Binding: depB}},
			{Name: "trig", Binding: trigB, Expr: tree.Link{Name: "trig", Binding: trigB}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "trig", Binding: trigB},
			To:   tree.Then{Body: tree.Ref{Name: "dep", Binding: depB}},
		},
	}
}

func waitCached(t *testing.T, n *Node, want value.Value) {
	t.Helper()
	ok := testutil.Eventually(func() bool {
		v, has := n.Current()
		return has && value.Equal(v, want)
	})
	require.True(t, ok, "node never cached %v", want)
}

func TestThen_FreezesDependencySnapshot(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, freezeProg())

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	dep, trig := res.Links["dep"], res.Links["trig"]

	dep.Push(value.Number(1))
	waitCached(t, dep.Node(), value.Number(1))
	trig.Push(value.Tag("Go"))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(1), got[0])

	// Dependency changes between ticks are invisible downstream.
	dep.Push(value.Number(2))
	waitCached(t, dep.Node(), value.Number(2))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.Values(), 1)

	trig.Push(value.Tag("Go"))
	got = c.WaitLen(2)
	require.Len(t, got, 2)
	assert.Equal(t, value.Number(2), got[1])
}

func TestThen_BodyCallSeesOnlyNamedOperands(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "x", Binding: 1, Expr: tree.Link{Name: "x", Binding: 1}},
			{Name: "trig", Binding: 2, Expr: tree.Link{Name: "trig", Binding: 2}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "trig", Binding: 2},
			To: tree.Then{Body: tree.Call{Path: "Math/sum", Args: []tree.Arg{
				{Name: "a", Expr: tree.Ref{Name: "x", Binding: 1}},
				{Name: "b", Expr: num(1)},
			}}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	x, trig := res.Links["x"], res.Links["trig"]
	x.Push(value.Number(4))
	waitCached(t, x.Node(), value.Number(4))

	// The tick is a Tag; were it injected as an extra operand the sum
	// would reject it and nothing would come out.
	trig.Push(value.Tag("Go"))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(5), got[0])
}

func TestThen_SkipSuppressesEmission(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "trig", Binding: 1, Expr: tree.Link{Name: "trig", Binding: 1}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "trig", Binding: 1},
			To:   tree.Then{Body: tree.Skip{}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["trig"].Push(value.Tag("Go"))
	res.Links["trig"].Push(value.Tag("Go"))
	time.Sleep(50 * time.Millisecond)
	// No event at all, not a repeated old value.
	assert.Empty(t, c.Values())
	_, has := res.Root.Current()
	assert.False(t, has)
}

func TestThen_TransientSubgraphIsTornDown(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, freezeProg())

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	dep, trig := res.Links["dep"], res.Links["trig"]
	dep.Push(value.Number(1))
	waitCached(t, dep.Node(), value.Number(1))

	before := e.Diagnostics().Created()
	for i := 0; i < 10; i++ {
		trig.Push(value.Tag("Go"))
		c.WaitLen(i + 1)
	}
	churned := e.Diagnostics().Created() - before
	require.Greater(t, churned, int64(0))

	// Every per-tick node was dropped again.
	ok := testutil.Eventually(func() bool {
		d := e.Diagnostics()
		return d.Created()-d.Dropped() == int64(d.LiveCount())
	})
	assert.True(t, ok)
	base := e.Diagnostics().LiveCount()
	trig.Push(value.Tag("Go"))
	c.WaitLen(11)
	ok = testutil.Eventually(func() bool {
		return e.Diagnostics().LiveCount() == base
	})
	assert.True(t, ok, "transient nodes leaked: %v", e.Diagnostics().LiveSites())
}

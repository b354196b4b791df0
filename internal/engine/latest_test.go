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

func TestLatest_ForwardsEveryUpstreamEvent(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "a", Binding: 1, Expr: tree.Link{Name: "a", Binding: 1}},
			{Name: "b", Binding: 2, Expr: tree.Link{Name: "b", Binding: 2}},
		},
		Output: tree.Latest{Inputs: []tree.Expr{
			tree.Ref{Name: "a", Binding: 1},
			tree.Ref{Name: "b", Binding: 2},
		}},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["a"].Push(value.Number(1))
	c.WaitLen(1)
	res.Links["b"].Push(value.Number(2))
	c.WaitLen(2)
	res.Links["a"].Push(value.Number(3))
	got := c.WaitLen(3)
	require.Len(t, got, 3)
	assert.Equal(t, []value.Value{
		value.Number(1), value.Number(2), value.Number(3),
	}, got)
}

func TestLatest_NoValueUntilFirstEmission(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "a", Binding: 1, Expr: tree.Link{Name: "a", Binding: 1}},
		},
		Output: tree.Latest{Inputs: []tree.Expr{tree.Ref{Name: "a", Binding: 1}}},
	})

	time.Sleep(20 * time.Millisecond)
	_, has := res.Root.Current()
	assert.False(t, has)

	res.Links["a"].Push(value.Number(1))
	waitCached(t, res.Root, value.Number(1))
}

func TestFanIn_BatchSortsByDeclarationIndex(t *testing.T) {
	e := testEngine(t)
	scope := e.RootScope().Child()
	defer scope.Drop()

	a := scope.newInputNode(site("test", "a"))
	b := scope.newInputNode(site("test", "b"))
	owner := scope.newNode(site("test", "owner"))
	fi := newFanIn(scope, owner, []*Node{a.Node(), b.Node()})

	// Later-declared branch emits first; once both are buffered the batch
	// still comes out in declaration order.
	b.Push(value.Number(2))
	a.Push(value.Number(1))
	require.True(t, testutil.Eventually(func() bool {
		return len(fi.mux) == 2
	}))

	batch, status := fi.collect(owner.ctx)
	require.Equal(t, fanOK, status)
	require.Len(t, batch, 2)
	assert.Equal(t, 0, batch[0].idx)
	assert.Equal(t, value.Number(1), batch[0].v)
	assert.Equal(t, 1, batch[1].idx)
	assert.Equal(t, value.Number(2), batch[1].v)
}

func TestFanIn_ExhaustedAfterProducersClose(t *testing.T) {
	e := testEngine(t)
	scope := e.RootScope().Child()
	defer scope.Drop()

	inner := scope.Child()
	a := inner.newInputNode(site("test", "a"))
	owner := scope.newNode(site("test", "owner"))
	fi := newFanIn(scope, owner, []*Node{a.Node()})

	a.Push(value.Number(1))
	batch, status := fi.collect(owner.ctx)
	require.Equal(t, fanOK, status)
	require.Len(t, batch, 1)

	inner.Drop()
	_, status = fi.collect(owner.ctx)
	assert.Equal(t, fanExhausted, status)
}

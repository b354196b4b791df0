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

func TestWhen_FirstMatchingArmWins(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "ev", Binding: 1, Expr: tree.Link{Name: "ev", Binding: 1}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "ev", Binding: 1},
			To: tree.When{Arms: []tree.Arm{
				{Pattern: tree.PatLit{Value: value.Tag("Increment")}, Body: txt("up")},
				{Pattern: tree.PatLit{Value: value.Tag("Decrement")}, Body: txt("down")},
				{Pattern: tree.PatWildcard{}, Body: txt("other")},
			}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["ev"].Push(value.Tag("Increment"))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Text("up"), got[0])

	res.Links["ev"].Push(value.Tag("Decrement"))
	res.Links["ev"].Push(value.Number(5))
	got = c.WaitLen(3)
	require.Len(t, got, 3)
	assert.Equal(t, value.Text("down"), got[1])
	assert.Equal(t, value.Text("other"), got[2])
}

func TestWhen_AliasBindsMatchedFragment(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "ev", Binding: 1, Expr: tree.Link{Name: "ev", Binding: 1}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "ev", Binding: 1},
			To: tree.When{Arms: []tree.Arm{
				{
					Pattern: tree.PatTagged{Tag: "Add", Fields: []tree.PatField{
						{Name: "amount", Binding: 2},
					}},
					Body: tree.Ref{Name: "amount", Binding: 2},
				},
				{Pattern: tree.PatWildcard{}, Body: tree.Skip{}},
			}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["ev"].Push(value.NewTagged("Add", value.Field{Name: "amount", Value: value.Number(12)}))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(12), got[0])
}

func TestWhen_SkipArmSuppresses(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "ev", Binding: 1, Expr: tree.Link{Name: "ev", Binding: 1}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "ev", Binding: 1},
			To: tree.When{Arms: []tree.Arm{
				{Pattern: tree.PatLit{Value: value.Tag("Keep")}, Body: txt("kept")},
				{Pattern: tree.PatWildcard{}, Body: tree.Skip{}},
			}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["ev"].Push(value.Tag("Drop"))
	res.Links["ev"].Push(value.Tag("Keep"))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Text("kept"), got[0])

	res.Links["ev"].Push(value.Tag("Drop"))
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, c.Values(), 1)
}

func TestWhen_MissingIrrefutableArmFailsConstruction(t *testing.T) {
	e := testEngine(t)
	_, err := e.Build(&tree.Program{
		Name: t.Name(),
		Root: tree.Pipe{
			From: num(1),
			To: tree.When{Arms: []tree.Arm{
				{Pattern: tree.PatLit{Value: value.Number(1)}, Body: txt("one")},
			}},
		},
	})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodeUnmatchedPattern))
}

func TestWhen_BareTagMatchesEmptyTaggedPattern(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "ev", Binding: 1, Expr: tree.Link{Name: "ev", Binding: 1}},
		},
		Output: tree.Pipe{
			From: tree.Ref{Name: "ev", Binding: 1},
			To: tree.When{Arms: []tree.Arm{
				{Pattern: tree.PatTagged{Tag: "Increment"}, Body: txt("up")},
				{Pattern: tree.PatWildcard{}, Body: tree.Skip{}},
			}},
		},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	res.Links["ev"].Push(value.Tag("Increment"))
	res.Links["ev"].Push(value.NewTagged("Increment"))
	got := c.WaitLen(2)
	require.Len(t, got, 2)
	assert.Equal(t, value.Text("up"), got[0])
	assert.Equal(t, value.Text("up"), got[1])
}

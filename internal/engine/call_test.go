package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/testutil"
	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

func evalScalar(t *testing.T, root tree.Expr) value.Value {
	t.Helper()
	e := testEngine(t)
	res := build(t, e, root)
	sub := res.Root.Subscribe()
	defer sub.Cancel()
	got := testutil.Collect(sub.Values()).WaitLen(1)
	require.Len(t, got, 1)
	return got[0]
}

func TestMathSum_FoldsOperands(t *testing.T) {
	got := evalScalar(t, tree.Call{Path: "Math/sum", Args: []tree.Arg{
		{Name: "a", Expr: num(1)},
		{Name: "b", Expr: num(2)},
		{Name: "c", Expr: num(3)},
	}})
	assert.Equal(t, value.Number(6), got)
}

func TestMathSum_PipedOperandLeads(t *testing.T) {
	got := evalScalar(t, tree.Pipe{
		From: num(10),
		To: tree.Call{Path: "Math/sum", Args: []tree.Arg{
			{Name: "b", Expr: num(5)},
		}},
	})
	assert.Equal(t, value.Number(15), got)
}

func TestMathProduct(t *testing.T) {
	got := evalScalar(t, tree.Call{Path: "Math/product", Args: []tree.Arg{
		{Name: "a", Expr: num(4)},
		{Name: "b", Expr: num(5)},
	}})
	assert.Equal(t, value.Number(20), got)
}

func TestMathNegate(t *testing.T) {
	got := evalScalar(t, tree.Pipe{From: num(3), To: tree.Call{Path: "Math/negate"}})
	assert.Equal(t, value.Number(-3), got)
}

func TestMathGreater(t *testing.T) {
	got := evalScalar(t, tree.Call{Path: "Math/greater", Args: []tree.Arg{
		{Name: "a", Expr: num(2)},
		{Name: "b", Expr: num(1)},
	}})
	assert.Equal(t, value.Bool(true), got)
}

func TestMathEqual_DeepEquality(t *testing.T) {
	got := evalScalar(t, tree.Call{Path: "Math/equal", Args: []tree.Arg{
		{Name: "a", Expr: tree.ObjectLit{Fields: []tree.FieldDef{{Name: "x", Expr: num(1)}}}},
		{Name: "b", Expr: tree.ObjectLit{Fields: []tree.FieldDef{{Name: "x", Expr: num(1)}}}},
	}})
	assert.Equal(t, value.Bool(true), got)
}

func TestTextJoin_RendersNonText(t *testing.T) {
	got := evalScalar(t, tree.Call{Path: "Text/join", Args: []tree.Arg{
		{Name: "a", Expr: txt("n=")},
		{Name: "b", Expr: num(7)},
	}})
	assert.Equal(t, value.Text("n=7"), got)
}

func TestCall_UnknownBuiltin(t *testing.T) {
	e := testEngine(t)
	_, err := e.Build(&tree.Program{
		Name: t.Name(),
		Root: tree.Call{Path: "No/such"},
	})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodeUnknownBuiltin))
}

func TestCall_UserFunctionInstantiation(t *testing.T) {
	double := &tree.Func{
		Name:   "double",
		Params: []tree.Param{{Name: "x", Binding: 5}},
		Body: tree.Call{Path: "Math/sum", Args: []tree.Arg{
			{Name: "a", Expr: tree.Ref{Name: "x", Binding: 5}},
			{Name: "b", Expr: tree.Ref{Name: "x", Binding: 5}},
		}},
	}
	got := evalScalar(t, tree.Call{Target: double, Args: []tree.Arg{
		{Name: "x", Expr: num(21)},
	}})
	assert.Equal(t, value.Number(42), got)
}

func TestCall_MissingArgument(t *testing.T) {
	e := testEngine(t)
	fn := &tree.Func{Name: "f", Params: []tree.Param{{Name: "x", Binding: 5}}}
	fn.Body = tree.Ref{Name: "x", Binding: 5}
	_, err := e.Build(&tree.Program{Name: t.Name(), Root: tree.Call{Target: fn}})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodeBadArgument))
}

func TestCall_SurplusArgument(t *testing.T) {
	e := testEngine(t)
	fn := &tree.Func{Name: "f", Params: nil, Body: num(1)}
	_, err := e.Build(&tree.Program{
		Name: t.Name(),
		Root: tree.Call{Target: fn, Args: []tree.Arg{{Name: "x", Expr: num(2)}}},
	})
	require.Error(t, err)
	assert.True(t, IsBuildError(err, ErrCodeBadArgument))
}

func TestMath_NonNumericOperandSuppresses(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Block{
		Vars: []tree.BlockVar{
			{Name: "x", Binding: 1, Expr: tree.Link{Name: "x", Binding: 1}},
		},
		Output: tree.Call{Path: "Math/sum", Args: []tree.Arg{
			{Name: "a", Expr: tree.Ref{Name: "x", Binding: 1}},
			{Name: "b", Expr: num(1)},
		}},
	})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	c := testutil.Collect(sub.Values())

	// A transient non-number settles without crashing or emitting.
	res.Links["x"].Push(value.Text("warming up"))
	res.Links["x"].Push(value.Number(2))
	got := c.WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(3), got[0])
}

func TestTimerInterval_EmitsTicks(t *testing.T) {
	e := testEngine(t)
	res := build(t, e, tree.Call{Path: "Timer/interval", Args: []tree.Arg{
		{Name: "ms", Expr: num(5)},
	}})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	got := testutil.Collect(sub.Values()).WaitLen(3)
	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, value.Tag("Tick"), got[0])
}

func TestWithBuiltin_OverridesStandardTable(t *testing.T) {
	e := testEngine(t, WithBuiltin("Test/answer", func(e *Engine, b *buildCtx, call tree.Call) (nodeRes, error) {
		return nodeRes{n: constNode(b.scope, site("call", "Test/answer"), value.Number(42))}, nil
	}))
	res := build(t, e, tree.Call{Path: "Test/answer"})

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	got := testutil.Collect(sub.Values()).WaitLen(1)
	require.Len(t, got, 1)
	assert.Equal(t, value.Number(42), got[0])
}

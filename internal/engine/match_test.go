package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/tree"
	"github.com/BoonLang/boon-go/internal/value"
)

func TestMatch_Wildcard(t *testing.T) {
	_, ok := match(tree.PatWildcard{}, value.Number(1))
	assert.True(t, ok)
}

func TestMatch_AliasBindsWholeValue(t *testing.T) {
	binds, ok := match(tree.PatAlias{Name: "x", Binding: 7}, value.Text("hi"))
	require.True(t, ok)
	require.Len(t, binds, 1)
	assert.Equal(t, tree.BindingID(7), binds[0].id)
	assert.Equal(t, value.Text("hi"), binds[0].v)
}

func TestMatch_LiteralExact(t *testing.T) {
	_, ok := match(tree.PatLit{Value: value.Number(5)}, value.Number(5))
	assert.True(t, ok)
	_, ok = match(tree.PatLit{Value: value.Number(5)}, value.Number(6))
	assert.False(t, ok)
	_, ok = match(tree.PatLit{Value: value.Number(5)}, value.Text("5"))
	assert.False(t, ok)
}

func TestMatch_ObjectRequiresListedFields(t *testing.T) {
	pat := tree.PatObject{Fields: []tree.PatField{
		{Name: "x", Binding: 1},
	}}

	obj := value.NewObject(
		value.Field{Name: "x", Value: value.Number(1)},
		value.Field{Name: "y", Value: value.Number(2)},
	)
	binds, ok := match(pat, obj)
	require.True(t, ok, "extra fields are allowed")
	require.Len(t, binds, 1)
	assert.Equal(t, value.Number(1), binds[0].v)

	_, ok = match(pat, value.NewObject(value.Field{Name: "y", Value: value.Number(2)}))
	assert.False(t, ok, "missing field must not match")
}

func TestMatch_TaggedByTagAndFields(t *testing.T) {
	pat := tree.PatTagged{Tag: "Add", Fields: []tree.PatField{
		{Name: "amount", Value: tree.PatLit{Value: value.Number(1)}},
	}}

	_, ok := match(pat, value.NewTagged("Add", value.Field{Name: "amount", Value: value.Number(1)}))
	assert.True(t, ok)
	_, ok = match(pat, value.NewTagged("Sub", value.Field{Name: "amount", Value: value.Number(1)}))
	assert.False(t, ok)
	_, ok = match(pat, value.NewTagged("Add", value.Field{Name: "amount", Value: value.Number(2)}))
	assert.False(t, ok)
}

func TestMatch_BareTagAgainstEmptyTaggedPattern(t *testing.T) {
	pat := tree.PatTagged{Tag: "Increment"}
	_, ok := match(pat, value.Tag("Increment"))
	assert.True(t, ok)
	_, ok = match(pat, value.Tag("Decrement"))
	assert.False(t, ok)
}

func TestMatch_ListPositionalExact(t *testing.T) {
	pat := tree.PatList{Items: []tree.Pattern{
		tree.PatLit{Value: value.Number(1)},
		tree.PatAlias{Name: "rest", Binding: 2},
	}}

	two := value.NewList(
		value.Element{ID: 1, Value: value.Number(1)},
		value.Element{ID: 2, Value: value.Number(9)},
	)
	binds, ok := match(pat, two)
	require.True(t, ok)
	require.Len(t, binds, 1)
	assert.Equal(t, value.Number(9), binds[0].v)

	one := value.NewList(value.Element{ID: 1, Value: value.Number(1)})
	_, ok = match(pat, one)
	assert.False(t, ok, "length mismatch must not match")
}

func TestMatchArms_DeclarationOrder(t *testing.T) {
	arms := []tree.Arm{
		{Pattern: tree.PatLit{Value: value.Number(1)}},
		{Pattern: tree.PatWildcard{}},
	}
	idx, _, ok := matchArms(arms, value.Number(1))
	require.True(t, ok)
	assert.Equal(t, 0, idx)

	idx, _, ok = matchArms(arms, value.Number(2))
	require.True(t, ok)
	assert.Equal(t, 1, idx)
}

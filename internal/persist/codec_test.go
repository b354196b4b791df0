package persist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/value"
)

func roundTrip(t *testing.T, v value.Value) value.Value {
	t.Helper()
	data, err := Encode(v)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	return got
}

func TestCodec_RoundTripEveryVariant(t *testing.T) {
	cases := []struct {
		name string
		v    value.Value
	}{
		{"number", value.Number(42)},
		{"negative fraction", value.Number(-0.125)},
		{"text", value.Text("hello \"world\" <&>")},
		{"empty text", value.Text("")},
		{"bool", value.Bool(true)},
		{"tag", value.Tag("Increment")},
		{"tagged", value.NewTagged("Duration",
			value.Field{Name: "seconds", Value: value.Number(10)})},
		{"object", value.NewObject(
			value.Field{Name: "b", Value: value.Number(2)},
			value.Field{Name: "a", Value: value.Text("x")},
		)},
		{"empty object", value.NewObject()},
		{"list", value.NewList(
			value.Element{ID: 3, Value: value.Number(1)},
			value.Element{ID: 7, Value: value.NewObject(
				value.Field{Name: "done", Value: value.Bool(false)},
			)},
		)},
		{"empty list", value.NewList()},
		{"nested", value.NewObject(
			value.Field{Name: "items", Value: value.NewList(
				value.Element{ID: 1, Value: value.NewTagged("Todo",
					value.Field{Name: "label", Value: value.Text("buy milk")})},
			)},
		)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, tc.v)
			assert.True(t, value.Equal(tc.v, got),
				"round trip mismatch: %s != %s", value.String(tc.v), value.String(got))
		})
	}
}

func TestCodec_DeterministicEncoding(t *testing.T) {
	v := value.NewObject(
		value.Field{Name: "z", Value: value.Number(1)},
		value.Field{Name: "a", Value: value.Number(2)},
	)
	d1, err := Encode(v)
	require.NoError(t, err)
	d2, err := Encode(v)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	// Declaration order survives, not alphabetical order.
	assert.Contains(t, string(d1), `{"n":"z"`)
}

func TestCodec_SkipRejected(t *testing.T) {
	_, err := Encode(value.Skip())
	require.Error(t, err)
}

func TestCodec_UnknownKindRejected(t *testing.T) {
	_, err := Decode([]byte(`{"k":"mystery"}`))
	require.Error(t, err)
}

func TestCodec_ListIdentitiesSurvive(t *testing.T) {
	v := value.NewList(
		value.Element{ID: 100, Value: value.Text("a")},
		value.Element{ID: 5, Value: value.Text("b")},
	)
	got := roundTrip(t, v).(value.List)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, value.ItemID(100), got.At(0).ID)
	assert.Equal(t, value.ItemID(5), got.At(1).ID)
}

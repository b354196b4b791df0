package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/value"
)

func writeScenario(t *testing.T, name, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, "s.yaml", `
name: sample
program: |
  program: {number: 1}
steps:
  - push: {link: tick, value: {tag: Go}}
collect: 2
`)
	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "sample", s.Name)
	assert.Equal(t, 2, s.Collect)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, "tick", s.Steps[0].Push.Link)
}

func TestLoadScenario_Invalid(t *testing.T) {
	cases := map[string]string{
		"no name": `
program: |
  program: {number: 1}
collect: 1
`,
		"no program": `
name: x
collect: 1
`,
		"zero collect": `
name: x
program: |
  program: {number: 1}
`,
		"unnamed link": `
name: x
program: |
  program: {number: 1}
collect: 1
steps:
  - push: {value: {number: 1}}
`,
		"empty step": `
name: x
program: |
  program: {number: 1}
collect: 1
steps:
  - {}
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, "s.yaml", doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenarios_SortedByName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zulu", "alpha"} {
		doc := "name: " + name + "\nprogram: |\n  program: {number: 1}\ncollect: 1\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(doc), 0o644))
	}
	ss, err := LoadScenarios(dir)
	require.NoError(t, err)
	require.Len(t, ss, 2)
	assert.Equal(t, "alpha", ss[0].Name)
	assert.Equal(t, "zulu", ss[1].Name)
}

func TestScenarioValue_Conversions(t *testing.T) {
	n := 2.5
	v, err := ScenarioValue{Number: &n}.Value()
	require.NoError(t, err)
	assert.Equal(t, value.Number(2.5), v)

	tag := "Go"
	v, err = ScenarioValue{Tag: &tag}.Value()
	require.NoError(t, err)
	assert.Equal(t, value.Tag("Go"), v)

	amount := 5.0
	v, err = ScenarioValue{Tagged: &TaggedScenario{
		Tag:    "Add",
		Fields: map[string]ScenarioValue{"amount": {Number: &amount}},
	}}.Value()
	require.NoError(t, err)
	tv, ok := v.(value.Tagged)
	require.True(t, ok)
	assert.Equal(t, "Add", tv.Tag())
	got, ok := tv.Get("amount")
	require.True(t, ok)
	assert.Equal(t, value.Number(5), got)

	_, err = ScenarioValue{}.Value()
	assert.Error(t, err)
}

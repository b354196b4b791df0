package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BoonLang/boon-go/internal/value"
)

func TestRun_LiteralScenario(t *testing.T) {
	result, err := Run(&Scenario{
		Name:    "lit",
		Program: "program: {number: 3}\n",
		Collect: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "test-run-default", result.RunID)
	require.Len(t, result.Emissions, 1)
	assert.Equal(t, value.Number(3), result.Emissions[0])
}

func TestRun_CustomRunID(t *testing.T) {
	result, err := Run(&Scenario{
		Name:    "lit",
		Program: "program: {number: 3}\n",
		RunID:   "run-42",
		Collect: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "run-42", result.RunID)
}

func TestRun_UnknownLink(t *testing.T) {
	v := 1.0
	_, err := Run(&Scenario{
		Name:    "bad",
		Program: "program: {number: 3}\n",
		Steps: []Step{
			{Push: &PushStep{Link: "nowhere", Value: ScenarioValue{Number: &v}}},
		},
		Collect: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nowhere")
}

func TestRun_BadProgram(t *testing.T) {
	_, err := Run(&Scenario{
		Name:    "bad",
		Program: "program: {ref: missing}\n",
		Collect: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load program")
}

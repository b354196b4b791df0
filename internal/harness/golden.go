package harness

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/BoonLang/boon-go/internal/value"
)

// Snapshot is the serialized form compared against golden files. Emissions
// use the value syntax so diffs read like program output.
type Snapshot struct {
	ScenarioName string   `json:"scenario_name"`
	RunID        string   `json:"run_id"`
	Emissions    []string `json:"emissions"`
}

// RunWithGolden executes a scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	snapshot := Snapshot{
		ScenarioName: scenario.Name,
		RunID:        result.RunID,
		Emissions:    make([]string, len(result.Emissions)),
	}
	for i, v := range result.Emissions {
		snapshot.Emissions[i] = value.String(v)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}

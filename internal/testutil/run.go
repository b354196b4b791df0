package testutil

// FixedRunGenerator generates the same run identifier every time.
//
// This enables deterministic test execution and golden snapshot comparison:
// the same scenario with the same FixedRunGenerator produces byte-identical
// diagnostic traces.
//
// Thread-safety: FixedRunGenerator is stateless and safe for concurrent use.
type FixedRunGenerator struct {
	id string
}

// NewFixedRunGenerator creates a new fixed run identifier generator.
//
// The identifier is typically set in the scenario YAML:
//
//	run_id: "test-run-00000000-0000-0000-0000-000000000001"
//
// If id is empty, Generate() returns "test-run-default".
func NewFixedRunGenerator(id string) *FixedRunGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunGenerator{id: id}
}

// Generate returns the fixed run identifier.
//
// Implements engine.RunIDGenerator.
func (g *FixedRunGenerator) Generate() string {
	return g.id
}

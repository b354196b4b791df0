package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BoonLang/boon-go/internal/value"
)

// Scenario defines one conformance scenario: a program document, a
// scripted sequence of link pushes, and the number of root emissions to
// capture for golden comparison.
type Scenario struct {
	// Name uniquely identifies this scenario; the golden file is
	// testdata/golden/{Name}.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Program is the inline program document, in the same YAML form the
	// CLI loads from disk.
	Program string `yaml:"program"`

	// RunID fixes the engine's run identity for deterministic output.
	// Empty defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Steps script the external inputs, in order.
	Steps []Step `yaml:"steps,omitempty"`

	// Collect is the total number of root emissions the scenario
	// captures before it stops.
	Collect int `yaml:"collect"`
}

// Step is one scripted input. Await, when nonzero, blocks until the root
// has emitted that many values in total; Push then feeds one value into a
// declared link. A step may do either or both (await first).
type Step struct {
	Await int       `yaml:"await,omitempty"`
	Push  *PushStep `yaml:"push,omitempty"`
}

// PushStep feeds a value into a named link.
type PushStep struct {
	Link  string        `yaml:"link"`
	Value ScenarioValue `yaml:"value"`
}

// ScenarioValue is the YAML form of a runtime value pushed into a link:
// exactly one of the keys is set.
type ScenarioValue struct {
	Number *float64        `yaml:"number"`
	Text   *string         `yaml:"text"`
	Bool   *bool           `yaml:"bool"`
	Tag    *string         `yaml:"tag"`
	Tagged *TaggedScenario `yaml:"tagged"`
}

// TaggedScenario is the YAML form of a tagged record value.
type TaggedScenario struct {
	Tag    string                   `yaml:"tag"`
	Fields map[string]ScenarioValue `yaml:"fields"`
}

// Value converts the YAML form into a runtime value.
func (sv ScenarioValue) Value() (value.Value, error) {
	switch {
	case sv.Number != nil:
		return value.Number(*sv.Number), nil
	case sv.Text != nil:
		return value.Text(*sv.Text), nil
	case sv.Bool != nil:
		return value.Bool(*sv.Bool), nil
	case sv.Tag != nil:
		return value.Tag(*sv.Tag), nil
	case sv.Tagged != nil:
		names := make([]string, 0, len(sv.Tagged.Fields))
		for name := range sv.Tagged.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		fields := make([]value.Field, 0, len(names))
		for _, name := range names {
			fv, err := sv.Tagged.Fields[name].Value()
			if err != nil {
				return nil, err
			}
			fields = append(fields, value.Field{Name: name, Value: fv})
		}
		return value.NewTagged(sv.Tagged.Tag, fields...), nil
	default:
		return nil, fmt.Errorf("scenario value carries no recognized key")
	}
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarios loads every *.yaml scenario under dir, sorted by name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}
	var out []*Scenario
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Scenario) validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario has no name")
	}
	if strings.TrimSpace(s.Program) == "" {
		return fmt.Errorf("scenario has no program")
	}
	if s.Collect <= 0 {
		return fmt.Errorf("collect must be positive, got %d", s.Collect)
	}
	for i, st := range s.Steps {
		if st.Push == nil && st.Await == 0 {
			return fmt.Errorf("step %d does nothing", i)
		}
		if st.Push != nil && st.Push.Link == "" {
			return fmt.Errorf("step %d pushes into an unnamed link", i)
		}
	}
	return nil
}

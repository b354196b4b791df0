// Package harness executes conformance scenarios against the engine.
//
// A scenario bundles a program document with a scripted sequence of link
// pushes and captures the root's emissions. Execution drives the real
// engine: programs are loaded through the CLI loader, inputs go through
// the same link nodes external sources use, and the captured transcript
// is what any subscriber of the root would have seen. Golden files under
// testdata/golden pin the transcripts down.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/BoonLang/boon-go/internal/cli"
	"github.com/BoonLang/boon-go/internal/engine"
	"github.com/BoonLang/boon-go/internal/testutil"
	"github.com/BoonLang/boon-go/internal/value"
)

// Result captures one scenario execution.
type Result struct {
	// RunID is the engine run identity the scenario executed under.
	RunID string

	// Emissions are the first Collect values the root emitted, in order.
	Emissions []value.Value
}

// Run executes a scenario against a fresh in-memory engine.
func Run(scenario *Scenario) (*Result, error) {
	prog, err := cli.ParseProgram([]byte(scenario.Program), scenario.Name)
	if err != nil {
		return nil, fmt.Errorf("load program: %w", err)
	}

	runGen := testutil.NewFixedRunGenerator(scenario.RunID)
	eng := engine.New(
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithRunIDGenerator(runGen),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	defer eng.Close(ctx)

	res, err := eng.Build(prog)
	if err != nil {
		return nil, fmt.Errorf("build program: %w", err)
	}

	sub := res.Root.Subscribe()
	defer sub.Cancel()
	collector := testutil.Collect(sub.Values())

	for i, st := range scenario.Steps {
		if st.Await > 0 {
			if got := collector.WaitLen(st.Await); len(got) < st.Await {
				return nil, fmt.Errorf("step %d: timed out awaiting %d emission(s), got %d",
					i, st.Await, len(got))
			}
		}
		if st.Push == nil {
			continue
		}
		in, ok := res.Links[st.Push.Link]
		if !ok {
			return nil, fmt.Errorf("step %d: program declares no link %q", i, st.Push.Link)
		}
		v, err := st.Push.Value.Value()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		in.Push(v)
	}

	got := collector.WaitLen(scenario.Collect)
	if len(got) < scenario.Collect {
		return nil, fmt.Errorf("timed out collecting %d emission(s), got %d",
			scenario.Collect, len(got))
	}

	return &Result{
		RunID:     eng.Diagnostics().RunID(),
		Emissions: got[:scenario.Collect],
	}, nil
}

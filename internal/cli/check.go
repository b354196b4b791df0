package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/BoonLang/boon-go/internal/engine"
)

// CheckReport summarizes a successful static check.
type CheckReport struct {
	Program string   `json:"program"`
	Nodes   int64    `json:"nodes"`
	Links   []string `json:"links"`
}

func newCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check <program.yaml>",
		Short: "Load and construct a program without running it",
		Long: `Check parses the program document, resolves every name, and constructs
the node graph against an in-memory engine, then tears it straight back
down. It catches unbound references, malformed expressions, bad pipe
targets and double link connections before a real run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkProgram(cmd, args[0], rootOpts)
		},
	}
}

func checkProgram(cmd *cobra.Command, path string, rootOpts *RootOptions) error {
	formatter := NewOutputFormatter(rootOpts.Format, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.Verbose = rootOpts.Verbose

	prog, err := LoadProgram(path)
	if err != nil {
		code := ErrCodeGeneric
		var le *LoadError
		if errors.As(err, &le) {
			code = le.Code
		}
		formatter.Failure(code, err.Error(), nil)
		return NewExitError(ExitFailure, "program load failed", err)
	}

	eng := engine.New(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	defer eng.Close(ctx)

	res, err := eng.Build(prog)
	if err != nil {
		formatter.Failure(ErrCodeBuildFailed, err.Error(), nil)
		return NewExitError(ExitFailure, "graph construction failed", err)
	}

	links := make([]string, 0, len(res.Links))
	for name := range res.Links {
		links = append(links, name)
	}
	sort.Strings(links)

	report := CheckReport{
		Program: prog.Name,
		Nodes:   eng.Diagnostics().Created(),
		Links:   links,
	}
	res.Scope.Drop()

	if rootOpts.Format == "json" {
		return formatter.Success(report)
	}
	formatter.VerboseLog("constructed %d node(s)", report.Nodes)
	if report.Program != "" {
		return formatter.Success("ok: " + report.Program)
	}
	return formatter.Success("ok")
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BoonLang/boon-go/internal/engine"
	"github.com/BoonLang/boon-go/internal/persist"
	"github.com/BoonLang/boon-go/internal/store"
	"github.com/BoonLang/boon-go/internal/value"
)

type runOptions struct {
	root    *RootOptions
	dbPath  string
	timeout time.Duration
	count   int
}

func newRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &runOptions{root: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program.yaml>",
		Short: "Run a program and stream its root emissions",
		Long: `Run builds the program document into a live graph and prints every
value the root emits, one per line, until the stream ends or the process
receives an interrupt. With --db, durable state is loaded from and
written to the given SQLite database, so a rerun resumes where the last
run stopped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database for durable state (in-memory when omitted)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "stop after this duration (0 = run until interrupted)")
	cmd.Flags().IntVar(&opts.count, "count", 0, "stop after this many emissions (0 = unlimited)")

	return cmd
}

func runProgram(cmd *cobra.Command, path string, opts *runOptions) error {
	formatter := NewOutputFormatter(opts.root.Format, cmd.OutOrStdout(), cmd.ErrOrStderr())
	formatter.Verbose = opts.root.Verbose

	logLevel := slog.LevelWarn
	if opts.root.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

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
	formatter.VerboseLog("loaded program %q from %s", prog.Name, path)

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if opts.dbPath != "" {
		db, err := store.OpenSQLite(opts.dbPath)
		if err != nil {
			formatter.Failure(ErrCodeGeneric, fmt.Sprintf("open state database: %v", err), nil)
			return NewExitError(ExitFailure, "state database unavailable", err)
		}
		defer db.Close()
		engineOpts = append(engineOpts, engine.WithStorage(db))
		formatter.VerboseLog("durable state in %s", opts.dbPath)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	eng := engine.New(engineOpts...)
	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	defer eng.Close(closeCtx)

	res, err := eng.Build(prog)
	if err != nil {
		formatter.Failure(ErrCodeBuildFailed, err.Error(), nil)
		return NewExitError(ExitFailure, "graph construction failed", err)
	}
	formatter.VerboseLog("graph live, %d link(s) declared", len(res.Links))

	sub := res.Root.Subscribe()
	defer sub.Cancel()

	emitted := 0
	for {
		select {
		case <-ctx.Done():
			formatter.VerboseLog("stopping: %v", ctx.Err())
			return nil
		case v, ok := <-sub.Values():
			if !ok {
				formatter.VerboseLog("root stream ended after %d emission(s)", emitted)
				return nil
			}
			if err := printEmission(formatter, v); err != nil {
				return NewExitError(ExitFailure, "write output", err)
			}
			emitted++
			if opts.count > 0 && emitted >= opts.count {
				return nil
			}
		}
	}
}

// printEmission renders one root value: value syntax in text mode, the
// canonical wire form in JSON mode.
func printEmission(f *OutputFormatter, v value.Value) error {
	if f.Format == "json" {
		data, err := persist.Encode(v)
		if err != nil {
			return f.Success(value.String(v))
		}
		return f.Success(json.RawMessage(data))
	}
	// Root text renders bare, like a document; everything else uses value
	// syntax.
	if txt, ok := v.(value.Text); ok {
		return f.Success(string(txt))
	}
	return f.Success(value.String(v))
}

package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BoonLang/boon-go/internal/persist"
	"github.com/BoonLang/boon-go/internal/store"
	"github.com/BoonLang/boon-go/internal/tree"
)

// DefaultChannelCapacity bounds every subscription channel unless
// overridden. Small enough to exert backpressure, large enough to ride out
// ordinary fan-out bursts.
const DefaultChannelCapacity = 16

// DefaultReplaceThreshold is the fraction of simultaneously changed list
// items above which an incremental operation falls back to a full Replace.
const DefaultReplaceThreshold = 0.5

// Engine hosts node graphs: it owns the root scope, the diagnostics
// registry, the builtin table and the persistence bridge. Engines are
// independent; several can coexist in one process, each with its own
// registries - nothing in this package is a process-wide global.
type Engine struct {
	logger           *slog.Logger
	chanCap          int
	replaceThreshold float64
	diag             *Diagnostics
	bridge           *persist.Bridge
	builtins         map[string]Builtin

	root     *Scope
	nextNode atomic.Uint64
	nextItem atomic.Uint64

	mu    sync.Mutex
	lists map[*Node]*ListNode
}

// Option configures an Engine.
type Option func(*config)

type config struct {
	logger           *slog.Logger
	storage          store.Storage
	chanCap          int
	replaceThreshold float64
	runGen           RunIDGenerator
	events           chan<- LifecycleEvent
	builtins         map[string]Builtin
}

// WithLogger sets the engine logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStorage enables persistence over the given backend. Without it,
// persistence annotations are ignored and all state is ephemeral.
func WithStorage(s store.Storage) Option {
	return func(c *config) { c.storage = s }
}

// WithChannelCapacity sets the bound of every subscription channel.
func WithChannelCapacity(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.chanCap = n
		}
	}
}

// WithReplaceThreshold tunes the incremental-to-Replace fallback for list
// operations: the fraction of items changing in one turn above which a
// full Replace is emitted instead of individual diffs.
func WithReplaceThreshold(f float64) Option {
	return func(c *config) {
		if f > 0 {
			c.replaceThreshold = f
		}
	}
}

// WithRunIDGenerator overrides the diagnostics run-ID source.
// Tests use a fixed generator for reproducible traces.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *config) { c.runGen = g }
}

// WithDiagnosticEvents attaches a lifecycle event channel. Sends never
// block; an unread channel silently loses events.
func WithDiagnosticEvents(ch chan<- LifecycleEvent) Option {
	return func(c *config) { c.events = ch }
}

// WithBuiltin registers (or overrides) a builtin under the given path.
func WithBuiltin(path string, fn Builtin) Option {
	return func(c *config) { c.builtins[path] = fn }
}

// New creates an engine with the standard builtin set.
func New(opts ...Option) *Engine {
	c := &config{
		chanCap:          DefaultChannelCapacity,
		replaceThreshold: DefaultReplaceThreshold,
		builtins:         make(map[string]Builtin),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	e := &Engine{
		logger:           c.logger,
		chanCap:          c.chanCap,
		replaceThreshold: c.replaceThreshold,
		diag:             newDiagnostics(c.runGen, c.events),
		lists:            make(map[*Node]*ListNode),
	}
	e.root = newScope(e, nil, context.Background())
	if c.storage != nil {
		e.bridge = persist.NewBridge(c.storage, c.logger)
	}

	e.builtins = standardBuiltins()
	for path, fn := range c.builtins {
		e.builtins[path] = fn
	}
	return e
}

// Diagnostics returns the engine's lifecycle registry.
func (e *Engine) Diagnostics() *Diagnostics { return e.diag }

// RootScope returns the engine's root ownership scope. Test and host code
// hang externally-owned nodes below it.
func (e *Engine) RootScope() *Scope { return e.root }

// BuildResult is a constructed program graph.
type BuildResult struct {
	// Root is the program's output node; the rendering bridge observes it
	// exactly as any other subscriber would.
	Root *Node

	// RootList is non-nil when the root output is a live list.
	RootList *ListNode

	// Links maps declared event-binding names to their input nodes, for
	// external sources to connect and push through.
	Links map[string]*InputNode

	// Scope owns every node of the graph; dropping it tears the program
	// down.
	Scope *Scope
}

// Build compiles a resolved program tree into a running node graph.
// Construction-time errors abort the whole subgraph: nothing of a failed
// build keeps running.
func (e *Engine) Build(prog *tree.Program) (*BuildResult, error) {
	sc := e.root.Child()
	bc := &buildCtx{
		scope:      sc,
		links:      make(map[string]*InputNode),
		linkStates: make(map[tree.BindingID]*linkState),
		label:      prog.Name,
	}
	res, err := e.eval(bc, prog.Root)
	if err != nil {
		sc.Drop()
		return nil, err
	}
	return &BuildResult{
		Root:     res.n,
		RootList: res.list,
		Links:    bc.links,
		Scope:    sc,
	}, nil
}

// Close drops every graph and flushes pending persistence durably.
func (e *Engine) Close(ctx context.Context) error {
	e.root.Drop()
	if e.bridge != nil {
		return e.bridge.Close(ctx)
	}
	return nil
}

// ListOf returns the live list behind a node, when the node is a list.
func (e *Engine) ListOf(n *Node) (*ListNode, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.lists[n]
	return l, ok
}

func (e *Engine) registerList(l *ListNode) {
	e.mu.Lock()
	e.lists[l.n] = l
	e.mu.Unlock()
}

func (e *Engine) unregisterList(l *ListNode) {
	e.mu.Lock()
	delete(e.lists, l.n)
	e.mu.Unlock()
}

func (e *Engine) newItemID() uint64 {
	return e.nextItem.Add(1)
}

// bumpItemID advances the identity counter past ids restored from
// persistence so new elements never collide with them.
func (e *Engine) bumpItemID(seen uint64) {
	for {
		cur := e.nextItem.Load()
		if cur >= seen || e.nextItem.CompareAndSwap(cur, seen) {
			return
		}
	}
}

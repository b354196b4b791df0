package engine

import (
	"sync"

	"github.com/google/uuid"
)

// LifecycleKind distinguishes the two per-node lifecycle events.
type LifecycleKind int

const (
	// LifecycleTaskEnded fires when a node's driving task exits, whether
	// by scope teardown or upstream exhaustion.
	LifecycleTaskEnded LifecycleKind = iota + 1

	// LifecycleStreamExhausted fires when a node's driving stream ends
	// while the node itself is still owned - the signature of the
	// premature-teardown defect class.
	LifecycleStreamExhausted
)

// String returns the event kind name used in traces.
func (k LifecycleKind) String() string {
	switch k {
	case LifecycleTaskEnded:
		return "task-ended"
	case LifecycleStreamExhausted:
		return "stream-exhausted"
	default:
		return "unknown"
	}
}

// LifecycleEvent is one entry of the diagnostic stream. Not part of the
// steady-state contract; intended for tracing teardown during development.
type LifecycleEvent struct {
	Kind LifecycleKind
	Node NodeID
	Site Site
	Seq  int64
	Run  string
}

// RunIDGenerator produces the run identifier stamped on diagnostics.
// Implemented by UUIDv7Generator (production) and the testutil fixed
// generator (deterministic traces).
type RunIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-ordered UUIDs for run identification.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string, falling back to UUIDv4 if the
// monotonic source fails.
func (UUIDv7Generator) Generate() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Diagnostics tracks node lifecycle for one engine instance. It is an
// explicit per-engine object, never a process-wide registry, so multiple
// independent programs can coexist in one process.
//
// Thread-safety: all methods are safe for concurrent use.
type Diagnostics struct {
	runID string
	clock *Clock

	mu      sync.Mutex
	live    map[NodeID]Site
	created int64
	dropped int64

	events chan<- LifecycleEvent // optional; sends never block
}

func newDiagnostics(gen RunIDGenerator, events chan<- LifecycleEvent) *Diagnostics {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	return &Diagnostics{
		runID:  gen.Generate(),
		clock:  NewClock(),
		live:   make(map[NodeID]Site),
		events: events,
	}
}

// RunID returns the identifier stamped on this engine's events.
func (d *Diagnostics) RunID() string { return d.runID }

// Created returns the total number of nodes constructed so far.
func (d *Diagnostics) Created() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// Dropped returns the total number of nodes torn down so far.
func (d *Diagnostics) Dropped() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// LiveCount returns the number of currently live nodes.
func (d *Diagnostics) LiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// LiveSites returns a snapshot of live nodes and their construction sites.
func (d *Diagnostics) LiveSites() map[NodeID]Site {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[NodeID]Site, len(d.live))
	for id, s := range d.live {
		out[id] = s
	}
	return out
}

func (d *Diagnostics) nodeCreated(id NodeID, s Site) {
	d.mu.Lock()
	d.created++
	d.live[id] = s
	d.mu.Unlock()
}

func (d *Diagnostics) nodeDropped(id NodeID) {
	d.mu.Lock()
	d.dropped++
	delete(d.live, id)
	d.mu.Unlock()
}

func (d *Diagnostics) emit(kind LifecycleKind, id NodeID, s Site) {
	if d.events == nil {
		return
	}
	ev := LifecycleEvent{
		Kind: kind,
		Node: id,
		Site: s,
		Seq:  d.clock.Next(),
		Run:  d.runID,
	}
	// Diagnostics must never stall a node task.
	select {
	case d.events <- ev:
	default:
	}
}

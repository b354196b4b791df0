package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BoonLang/boon-go/internal/store"
	"github.com/BoonLang/boon-go/internal/value"
)

// Bridge funnels all persistence writes through one boundary task so that
// node tasks never perform blocking I/O.
//
// Schedule never blocks: writes are coalesced per ID (last write wins, in
// schedule order) in a pending table, and a buffered signal wakes the
// writer. Concurrent schedules for the same ID collapse to the newest
// value, which is exactly the last-write-wins-by-tick-order contract.
//
// Loads are synchronous: they happen during graph construction, before any
// tick runs, so blocking there is fine.
//
// Thread-safety model:
//   - Load, Schedule: safe from any goroutine
//   - Close: call once, after the graph is torn down
type Bridge struct {
	storage store.Storage
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[ID]value.Value
	order   []ID
	closed  bool

	signal chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

const writeAttempts = 3

// NewBridge starts the write task over the given storage.
// The bridge does not own the storage; callers close it after Close.
func NewBridge(storage store.Storage, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		storage: storage,
		logger:  logger,
		pending: make(map[ID]value.Value),
		signal:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go b.run()
	return b
}

// Load fetches and decodes prior state for id.
// Returns found=false when nothing is stored under id.
func (b *Bridge) Load(ctx context.Context, id ID) (value.Value, bool, error) {
	data, found, err := b.storage.Get(ctx, id.String())
	if err != nil {
		return nil, false, fmt.Errorf("load state %s: %w", id, err)
	}
	if !found {
		return nil, false, nil
	}
	v, err := Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("load state %s: %w", id, err)
	}
	return v, true, nil
}

// Schedule records v as the next durable state for id. Never blocks.
// Calls after Close are dropped.
func (b *Bridge) Schedule(id ID, v value.Value) {
	if id.IsZero() {
		return
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if _, queued := b.pending[id]; !queued {
		b.order = append(b.order, id)
	}
	b.pending[id] = v
	b.mu.Unlock()

	// Coalesced wakeup; a full signal buffer means the writer is already
	// scheduled to drain.
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Close stops accepting writes, flushes everything pending, and waits for
// the writer to exit. Pending state is durable once Close returns.
func (b *Bridge) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stop)
	select {
	case <-b.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flush persistence: %w", ctx.Err())
	}
}

func (b *Bridge) run() {
	defer close(b.done)
	for {
		select {
		case <-b.signal:
			b.drain()
		case <-b.stop:
			b.drain()
			return
		}
	}
}

// drain writes out the current pending batch. New schedules arriving while
// a batch is in flight land in a fresh table and are picked up by the next
// signal (or by the final drain on stop).
func (b *Bridge) drain() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.pending
	order := b.order
	b.pending = make(map[ID]value.Value)
	b.order = nil
	b.mu.Unlock()

	for _, id := range order {
		b.write(id, batch[id])
	}
}

func (b *Bridge) write(id ID, v value.Value) {
	data, err := Encode(v)
	if err != nil {
		// Encoding failures are programming errors (e.g. a skip sentinel
		// reached a persisted node); the write is dropped, not retried.
		b.logger.Error("persist: encode failed", "id", id.String(), "err", err)
		return
	}
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		err = b.storage.Set(context.Background(), id.String(), data)
		if err == nil {
			return
		}
		b.logger.Warn("persist: write failed",
			"id", id.String(), "attempt", attempt, "err", err)
		if attempt < writeAttempts {
			time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
		}
	}
	b.logger.Error("persist: write abandoned", "id", id.String(), "err", err)
}

// Package persist gives state-bearing nodes identity that survives program
// edits and restarts.
//
// A persistence ID is structural: a ULID root assigned to the program (or
// to a top-level binding) plus the path of child positions down to the
// state-bearing construct. Because the path follows structural position in
// the resolved tree rather than evaluation order, renaming or reordering
// unrelated code does not move - and therefore does not reset - unrelated
// state.
//
// The package also owns the Value wire codec and the write bridge: a
// single boundary task that serializes all store writes, batches them, and
// flushes durably on shutdown.
package persist

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ID is a structural persistence identity. The zero value means
// "not persisted".
//
// Wire form: "<ULID>" for a root, "<ULID>/3/0/2" for nested positions.
type ID string

// Zero is the absent ID.
const Zero ID = ""

// NewRoot mints a fresh root ID. Called by the static resolution pass when
// a program (or top-level binding) is first assigned identity; the engine
// itself never mints IDs.
func NewRoot() ID {
	return ID(ulid.MustNew(ulid.Now(), rand.Reader).String())
}

// Child derives the ID of the i-th structural child.
func (id ID) Child(i int) ID {
	if id == Zero {
		return Zero
	}
	return ID(string(id) + "/" + strconv.Itoa(i))
}

// IsZero reports whether the ID is absent.
func (id ID) IsZero() bool { return id == Zero }

// String returns the wire form.
func (id ID) String() string { return string(id) }

// Parse validates the wire form of an ID: a ULID root followed by zero or
// more non-negative path segments.
func Parse(s string) (ID, error) {
	if s == "" {
		return Zero, nil
	}
	parts := strings.Split(s, "/")
	if _, err := ulid.ParseStrict(parts[0]); err != nil {
		return Zero, fmt.Errorf("persistence id %q: bad root: %w", s, err)
	}
	for _, p := range parts[1:] {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Zero, fmt.Errorf("persistence id %q: bad path segment %q", s, p)
		}
	}
	return ID(s), nil
}

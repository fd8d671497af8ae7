package importer

import (
	"sync"

	"github.com/google/uuid"
)

// UIDGenerator assigns UIDs to entities created without one.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type UIDGenerator interface {
	Generate() uuid.UUID
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7. It panics if the system random source
// fails.
func (UUIDv7Generator) Generate() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// FixedGenerator returns predetermined UIDs in order.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	uids []uuid.UUID
	idx  int
}

// NewFixedGenerator creates a generator that returns uids in order.
//
//	gen := NewFixedGenerator(a, b)
//	gen.Generate() // a
//	gen.Generate() // b
//	gen.Generate() // panic: all UIDs exhausted
func NewFixedGenerator(uids ...uuid.UUID) *FixedGenerator {
	return &FixedGenerator{uids: uids}
}

// Generate returns the next predetermined UID.
//
// Panics when exhausted, which catches tests that create more entities
// than they planned for.
func (g *FixedGenerator) Generate() uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.uids) {
		panic("FixedGenerator: all UIDs exhausted")
	}
	uid := g.uids[g.idx]
	g.idx++
	return uid
}

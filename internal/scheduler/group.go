package scheduler

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// GroupGenerator names execution groups. A group starts with each user
// edit, history move or hydration, and every callback requested as a
// consequence of it, directly or transitively, joins that group.
type GroupGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 group ids.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns prefix1, prefix2, ... for deterministic tests
// and golden output.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceGenerator creates a generator with the given prefix.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next id.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}

package sid_test

import (
	"strings"
	"testing"

	"github.com/diameter-go/diameter/sid"
)

// TestGeneratorProducesDistinctIDs checks that 1000 successive ids from
// one generator are all distinct and all start with the configured
// identity.
func TestGeneratorProducesDistinctIDs(t *testing.T) {
	g := sid.NewGenerator("dra2.gy.mno.net")
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if seen[id] {
			t.Fatalf("duplicate session id %q at iteration %d", id, i)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "dra2.gy.mno.net;") {
			t.Fatalf("id %q does not start with the configured identity", id)
		}
	}
}

func TestSequenceMonotonicity(t *testing.T) {
	s := sid.NewSequence()
	prev := s.Next()
	for i := 0; i < 1000; i++ {
		next := s.Next()
		if next == prev {
			t.Fatalf("sequence produced a repeated value %d", next)
		}
		prev = next
	}
}

func TestSequenceNoCollisionsAcrossGenerators(t *testing.T) {
	a := sid.NewSequence()
	b := sid.NewSequence()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		seen[a.Next()] = true
		seen[b.Next()] = true
	}
	if len(seen) < 150 {
		t.Fatalf("expected mostly-distinct values across two sequences, got %d unique of 200", len(seen))
	}
}

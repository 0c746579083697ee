// Package sid generates Diameter session identifiers and the
// monotonic hop-by-hop/end-to-end counters a node stamps on outbound
// messages (spec §3, §4.6). Grounded on the teacher's sequence-counter
// idiom in pkg/models (atomic counters guarding wraparound) adapted
// from a single packet-sequence field to three independent generators.
package sid

import (
	"fmt"
	"math/rand"
	"time"

	uuid "github.com/satori/go.uuid"
	"go.uber.org/atomic"
)

// Generator produces session identifiers of the form
// "<diameter-identity>;<high32>;<low32>[;<optional>]" (spec §3). high32
// is seeded from wall-clock seconds at construction and incremented on
// every wraparound of low32's per-second counter; low32 mixes a random
// start with a monotonic counter, and both are written zero-padded to
// ten digits, so ids compare strictly greater lexicographically within
// a wall-clock second (spec §8 invariant).
type Generator struct {
	identity string
	high     *atomic.Uint32
	low      *atomic.Uint32
}

// NewGenerator seeds a Generator for identity (the node's
// Diameter-Identity).
func NewGenerator(identity string) *Generator {
	return &Generator{
		identity: identity,
		high:     atomic.NewUint32(uint32(time.Now().Unix())),
		low:      atomic.NewUint32(rand.Uint32()),
	}
}

// Next returns a new, unique session identifier. The optional component
// is a UUID, giving near-certain uniqueness across process restarts
// even if wall-clock time regresses.
func (g *Generator) Next() string {
	low := g.low.Add(1)
	if low == 0 {
		g.high.Add(1)
	}
	return fmt.Sprintf("%s;%010d;%010d;%s", g.identity, g.high.Load(), low, uuid.NewV4().String())
}

// Sequence is a monotonic 32-bit counter used for hop-by-hop and
// end-to-end ids (spec §4.6). It wraps at 2^32 like the wire field
// itself.
type Sequence struct {
	v *atomic.Uint32
}

// NewSequence seeds a Sequence with a random start, so two nodes
// restarted at the same instant don't emit colliding end-to-end ids
// (RFC 6733 §3, End-to-End-Id wall-clock-seeding guidance).
func NewSequence() *Sequence {
	return &Sequence{v: atomic.NewUint32(rand.Uint32())}
}

// Next returns the next value in the sequence.
func (s *Sequence) Next() uint32 {
	return s.v.Add(1)
}

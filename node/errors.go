package node

import "fmt"

// ErrTimeout is returned when an outbound request's deadline elapses
// before a matching answer arrives (spec §7 Operational errors).
type ErrTimeout struct{ HopByHopID uint32 }

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("node: request timed out (hop-by-hop=%d)", e.HopByHopID)
}

// ErrPeerGone is returned when the target peer has no live connection,
// or disconnects while a request against it is still pending.
type ErrPeerGone struct{ HostIdentity string }

func (e *ErrPeerGone) Error() string {
	return fmt.Sprintf("node: peer %q is gone", e.HostIdentity)
}

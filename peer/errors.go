package peer

import "fmt"

// unhandledEventError reports an event a state doesn't react to. The
// connection stays in its current state — mirrors the teacher's
// DialogState returning an error alongside the unchanged state rather
// than panicking (plugins/handler/skywalking/dialog/state.go).
type unhandledEventError struct {
	state StateName
	event event
}

func (e *unhandledEventError) Error() string {
	return fmt.Sprintf("peer: state %s: unhandled event %T", e.state, e.event)
}

func errUnhandled(s StateName, ev event) error {
	return &unhandledEventError{state: s, event: ev}
}

// ErrNotReady is returned when a caller tries to send an application
// message on a connection that hasn't reached Ready.
type ErrNotReady struct{ State StateName }

func (e *ErrNotReady) Error() string {
	return fmt.Sprintf("peer: connection not ready (state=%s)", e.State)
}

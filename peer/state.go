package peer

// StateName identifies one node in the PeerConnection state graph
// (spec §4.5).
type StateName string

const (
	StateConnecting      StateName = "Connecting"
	StateConnected       StateName = "Connected"
	StateReady           StateName = "Ready"
	StateReadyWaitingDwa StateName = "ReadyWaitingDwa"
	StateDisconnecting   StateName = "Disconnecting"
	StateClosing         StateName = "Closing"
	StateClosed          StateName = "Closed"
)

// Reason names why a PeerConnection closed (spec §4.5 "side effects").
type Reason string

const (
	ReasonCerRejected      Reason = "CerRejected"
	ReasonFailedConnectCE  Reason = "FailedConnectCE"
	ReasonDwaTimeout       Reason = "DwaTimeout"
	ReasonSocketFail       Reason = "SocketFail"
	ReasonCleanDisconnect  Reason = "CleanDisconnect"
	ReasonLocalDisconnect  Reason = "LocalDisconnect"
	ReasonDisconnectPeerRq Reason = "DisconnectPeerRequested"
)

// event is the sealed set of triggers the state machine reacts to. Each
// concrete event type corresponds to exactly one row's "Event" column
// in spec §4.5's transition table.
type event interface{ isEvent() }

type evSocketOpen struct{}
type evCEA struct {
	success bool
	hostID  string
}
type evCER struct{ hostID string }
type evDWA struct{}
type evDPR struct{}
type evDPA struct{}
type evIdleTimer struct{}
type evDwaTimer struct{}
type evCeaTimer struct{}
type evSocketError struct{ err error }
type evSocketEOF struct{}
type evDisconnectRequested struct{}
type evCleanupDone struct{}

func (evSocketOpen) isEvent()          {}
func (evCEA) isEvent()                 {}
func (evCER) isEvent()                 {}
func (evDWA) isEvent()                 {}
func (evDPR) isEvent()                 {}
func (evDPA) isEvent()                 {}
func (evIdleTimer) isEvent()           {}
func (evDwaTimer) isEvent()            {}
func (evCeaTimer) isEvent()            {}
func (evSocketError) isEvent()         {}
func (evSocketEOF) isEvent()           {}
func (evDisconnectRequested) isEvent() {}
func (evCleanupDone) isEvent()         {}

// state is one node of the PeerConnection graph, modeled directly on
// the teacher's DialogState interface (plugins/handler/skywalking/dialog/state.go):
// Enter/Exit bracket occupancy, Handle decides the next state or
// reports an unhandled-event error without panicking the connection.
type state interface {
	Name() StateName
	Enter(c *Conn)
	Exit(c *Conn)
	Handle(c *Conn, ev event) (state, error)
}

// dispatch applies any-state rules (socket error/EOF close the
// connection from every state except Closed) before delegating to the
// current state's Handle.
func dispatch(c *Conn, ev event) (state, error) {
	switch e := ev.(type) {
	case evSocketError:
		if c.state.Name() == StateClosed {
			return c.state, nil
		}
		return &closingState{reason: ReasonSocketFail, cause: e.err}, nil
	case evSocketEOF:
		if c.state.Name() == StateClosed {
			return c.state, nil
		}
		return &closingState{reason: ReasonCleanDisconnect}, nil
	}
	return c.state.Handle(c, ev)
}

type connectingState struct{}

func (connectingState) Name() StateName { return StateConnecting }
func (connectingState) Enter(c *Conn)    { c.onEnterConnecting() }
func (connectingState) Exit(*Conn)       {}
func (s connectingState) Handle(c *Conn, ev event) (state, error) {
	switch e := ev.(type) {
	case evSocketOpen:
		c.sendCER()
		return s, nil
	case evCEA:
		if e.success {
			c.remoteHostID = e.hostID
			return &readyState{}, nil
		}
		return &closingState{reason: ReasonCerRejected}, nil
	case evCeaTimer:
		return &closingState{reason: ReasonFailedConnectCE}, nil
	}
	return s, errUnhandled(s.Name(), ev)
}

// connectedState is the inbound-accepted mirror of connectingState: it
// waits for the remote's CER instead of sending one (spec §4.5,
// "inbound is symmetric with roles swapped").
type connectedState struct{}

func (connectedState) Name() StateName { return StateConnected }
func (connectedState) Enter(c *Conn)    { c.armTimer(&c.ceaTimer, c.cfg.CeaTimeout, evCeaTimer{}) }
func (connectedState) Exit(c *Conn)     { c.stopTimer(&c.ceaTimer) }
func (s connectedState) Handle(c *Conn, ev event) (state, error) {
	switch e := ev.(type) {
	case evCER:
		c.remoteHostID = e.hostID
		c.sendCEA(true)
		return &readyState{}, nil
	case evCeaTimer:
		return &closingState{reason: ReasonFailedConnectCE}, nil
	}
	return s, errUnhandled(s.Name(), ev)
}

type readyState struct{}

func (readyState) Name() StateName { return StateReady }
func (readyState) Enter(c *Conn) {
	c.notifyReady()
	c.armTimer(&c.idleTimer, c.cfg.IdleTimeout, evIdleTimer{})
}
func (readyState) Exit(c *Conn) { c.stopTimer(&c.idleTimer) }
func (s readyState) Handle(c *Conn, ev event) (state, error) {
	switch ev.(type) {
	case evIdleTimer:
		c.sendDWR()
		return &readyWaitingDwaState{}, nil
	case evDPR:
		c.sendDPA()
		return &disconnectingState{}, nil
	case evDisconnectRequested:
		c.sendDPR()
		return &disconnectingState{}, nil
	}
	return s, errUnhandled(s.Name(), ev)
}

type readyWaitingDwaState struct{}

func (readyWaitingDwaState) Name() StateName { return StateReadyWaitingDwa }
func (readyWaitingDwaState) Enter(c *Conn) {
	c.armTimer(&c.dwaTimer, c.cfg.DwaTimeout, evDwaTimer{})
}
func (readyWaitingDwaState) Exit(c *Conn) { c.stopTimer(&c.dwaTimer) }
func (s readyWaitingDwaState) Handle(c *Conn, ev event) (state, error) {
	switch ev.(type) {
	case evDWA:
		return &readyState{}, nil
	case evDwaTimer:
		return &closingState{reason: ReasonDwaTimeout}, nil
	}
	return s, errUnhandled(s.Name(), ev)
}

type disconnectingState struct{}

func (disconnectingState) Name() StateName { return StateDisconnecting }
func (disconnectingState) Enter(c *Conn) {
	c.armTimer(&c.disconnectTimer, c.cfg.RequestTimeout, evCleanupDone{})
}
func (disconnectingState) Exit(c *Conn) { c.stopTimer(&c.disconnectTimer) }
func (s disconnectingState) Handle(c *Conn, ev event) (state, error) {
	switch ev.(type) {
	case evDPA, evCleanupDone:
		return &closingState{reason: ReasonCleanDisconnect}, nil
	}
	return s, errUnhandled(s.Name(), ev)
}

type closingState struct {
	reason Reason
	cause  error
}

func (closingState) Name() StateName { return StateClosing }
func (s *closingState) Enter(c *Conn) {
	c.onEnterClosing(s.reason, s.cause)
}
func (closingState) Exit(*Conn) {}
func (s *closingState) Handle(c *Conn, ev event) (state, error) {
	if _, ok := ev.(evCleanupDone); ok {
		return &closedState{}, nil
	}
	return s, nil
}

type closedState struct{}

func (closedState) Name() StateName { return StateClosed }
func (closedState) Enter(c *Conn)    { c.onEnterClosed() }
func (closedState) Exit(*Conn)       {}
func (s closedState) Handle(c *Conn, ev event) (state, error) {
	return s, nil
}

// Package peer implements the PeerConnection state machine (spec
// §4.5): stream reassembly, the CER/CEA/DWR/DWA/DPR/DPA lifecycle, and
// idle/watchdog/disconnect timers. Modeled directly on the teacher's
// dialog state machine (plugins/handler/skywalking/dialog/manager.go),
// generalized from SIP dialogs to Diameter peer connections, and on
// rob-gra-go-iecp5/cs104's per-connection timer handling.
package peer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sourcegraph/conc"
	"github.com/tevino/abool"

	"github.com/diameter-go/diameter/app/base"
	"github.com/diameter-go/diameter/compose"
	"github.com/diameter-go/diameter/diam"
	"github.com/diameter-go/diameter/dict"
	"github.com/diameter-go/diameter/internal/log"
	"github.com/diameter-go/diameter/internal/metrics"
	"github.com/diameter-go/diameter/sid"
)

// commandDictionary is the narrow slice of *dict.Dictionary a Conn
// needs to route inbound messages by command code (spec §4.3 typed-
// message routing, §4.6 typed-answer selection). A diam.Dictionary
// that doesn't also implement this (e.g. a test stub) just gets
// everything routed as a generic message.
type commandDictionary interface {
	diam.Dictionary
	CommandFactory(code uint32) (dict.CommandFactories, bool)
}

// Transport is the narrow collaborator a PeerConnection reads/writes
// framed bytes through. Acquisition (dial/accept) and TLS are external
// to this package, per spec §1.
type Transport interface {
	io.Reader
	io.Writer
	Close() error
}

// Delegate receives the events a PeerConnection can't resolve itself:
// non-base-protocol inbound messages (routed by the node) and
// lifecycle notifications. Implemented by package node.
type Delegate interface {
	NotifyReady(c *Conn)
	NotifyClosed(c *Conn, reason Reason, cause error)
	Dispatch(c *Conn, msg *diam.Message)
}

// Conn is one PeerConnection: a socket, its reassembly buffer, state,
// and timers. All state transitions happen on a single owning
// goroutine (spec §5, "single owning task per peer"), fed by an event
// channel that both the reader goroutine and timers push into.
type Conn struct {
	ID string // xid-based correlation id for logging

	cfg       Config
	dict      diam.Dictionary
	transport Transport
	delegate  Delegate
	log       log.Logger

	originHost  string
	originRealm string
	seq         *sid.Sequence

	outbound     bool
	remoteHostID string

	state state

	idleTimer       *time.Timer
	dwaTimer        *time.Timer
	ceaTimer        *time.Timer
	disconnectTimer *time.Timer

	events  chan event
	writeMu sync.Mutex
	closed  *abool.AtomicBool
	done    chan struct{}
}

// NewOutbound constructs a PeerConnection that will send the initial
// CER once Start is called.
func NewOutbound(cfg Config, dict diam.Dictionary, transport Transport, originHost, originRealm string, seq *sid.Sequence, delegate Delegate, logger log.Logger) *Conn {
	return newConn(true, cfg, dict, transport, originHost, originRealm, seq, delegate, logger)
}

// NewInbound constructs a PeerConnection for an accepted socket, which
// waits for the remote's CER (spec §4.5, inbound/outbound symmetry).
func NewInbound(cfg Config, dict diam.Dictionary, transport Transport, originHost, originRealm string, seq *sid.Sequence, delegate Delegate, logger log.Logger) *Conn {
	return newConn(false, cfg, dict, transport, originHost, originRealm, seq, delegate, logger)
}

func newConn(outbound bool, cfg Config, dict diam.Dictionary, transport Transport, originHost, originRealm string, seq *sid.Sequence, delegate Delegate, logger log.Logger) *Conn {
	return &Conn{
		ID:          xid.New().String(),
		cfg:         cfg,
		dict:        dict,
		transport:   transport,
		delegate:    delegate,
		log:         logger,
		originHost:  originHost,
		originRealm: originRealm,
		seq:         seq,
		outbound:    outbound,
		events:      make(chan event, 16),
		closed:      abool.New(),
		done:        make(chan struct{}),
	}
}

// State reports the current state name, safe to call from any
// goroutine (reads are not racy in practice since the event loop is
// the sole writer and Go guarantees happens-before through the channel
// sends that preceded any externally-observed state; callers needing a
// strict snapshot should use the Ready/Closed notifications instead).
func (c *Conn) State() StateName { return c.state.Name() }

// Start begins the reassembly/event loop. It returns once the
// connection reaches Closed; callers typically run it in its own
// goroutine.
func (c *Conn) Start(ctx context.Context) {
	var wg conc.WaitGroup
	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()

	wg.Go(func() { c.readLoop(readerCtx) })

	if c.outbound {
		c.state = &connectingState{}
	} else {
		c.state = &connectedState{}
	}
	c.state.Enter(c)
	if c.outbound {
		c.push(evSocketOpen{})
	}

	c.loop(ctx)
	cancelReader()
	_ = c.transport.Close()
	wg.Wait()
	close(c.done)
}

// Done is closed once the event loop has fully exited (state Closed).
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.applyTransition(&closingState{reason: ReasonLocalDisconnect, cause: ctx.Err()})
			c.drainToClosed()
			return
		case ev := <-c.events:
			c.step(ev)
			if c.state.Name() == StateClosed {
				return
			}
		}
	}
}

func (c *Conn) step(ev event) {
	next, err := dispatch(c, ev)
	if err != nil {
		c.log.WithError(err).Debug("peer: unhandled event")
	}
	c.applyTransition(next)
}

// drainToClosed keeps feeding cleanup-done events until Closing
// finishes tearing itself down; used only on the ctx-cancel path where
// no external cleanup signal will otherwise arrive.
func (c *Conn) drainToClosed() {
	if c.state.Name() != StateClosing {
		return
	}
	c.step(evCleanupDone{})
}

func (c *Conn) applyTransition(next state) {
	if c.state != nil && next.Name() == c.state.Name() {
		return
	}
	metrics.PeerState.WithLabelValues(c.logLabel(), string(c.state.Name())).Set(0)
	c.state.Exit(c)
	c.state = next
	metrics.PeerState.WithLabelValues(c.logLabel(), string(c.state.Name())).Set(1)
	c.state.Enter(c)
}

func (c *Conn) logLabel() string {
	if c.remoteHostID != "" {
		return c.remoteHostID
	}
	return c.ID
}

// push enqueues an event from outside the owning goroutine (timers,
// the reader loop). It never blocks indefinitely: a closed connection
// silently drops further events.
func (c *Conn) push(ev event) {
	if c.closed.IsSet() {
		return
	}
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	r := diam.NewReassembler(c.dict)
	buf := make([]byte, 64*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := c.transport.Read(buf)
		if n > 0 {
			r.Feed(buf[:n])
			for {
				msg, decodeErr, ok := r.Next()
				if !ok {
					break
				}
				if decodeErr != nil {
					if isFatalFramingError(decodeErr) {
						c.push(evSocketError{err: decodeErr})
						return
					}
					c.log.WithError(decodeErr).Warn("peer: dropping malformed message")
					continue
				}
				c.handleInbound(msg)
			}
		}
		if err != nil {
			if err == io.EOF {
				c.push(evSocketEOF{})
			} else {
				c.push(evSocketError{err: err})
			}
			return
		}
	}
}

func isFatalFramingError(err error) bool {
	switch err {
	case diam.ErrFrameOverflow, diam.ErrFrameTooShort, diam.ErrBadVersion:
		return true
	default:
		return false
	}
}

func (c *Conn) handleInbound(msg *diam.Message) {
	metrics.MessagesReceivedTotal.WithLabelValues(c.logLabel(), fmt.Sprint(msg.Header.CommandCode)).Inc()

	cf, ok := c.commandFactory(msg.Header.CommandCode)
	if !ok {
		// No factory registered for this command code: nothing left to
		// type it as, so the generic message goes straight to the
		// application layer.
		c.delegate.Dispatch(c, msg)
		return
	}

	switch msg.Header.CommandCode {
	case dict.CommandCapabilitiesExchange:
		c.handleCER_CEA(msg, cf)
	case dict.CommandDeviceWatchdog:
		c.handleDWR_DWA(msg, cf)
	case dict.CommandDisconnectPeer:
		c.handleDPR_DPA(msg, cf)
	default:
		c.delegate.Dispatch(c, msg)
	}
}

// commandFactory looks up the request/answer factories for code in
// c.dict's command table, if c.dict carries one.
func (c *Conn) commandFactory(code uint32) (dict.CommandFactories, bool) {
	cd, ok := c.dict.(commandDictionary)
	if !ok {
		return dict.CommandFactories{}, false
	}
	return cd.CommandFactory(code)
}

// SendApplication serializes and writes a non-base-protocol message.
// Only valid once the connection is Ready.
func (c *Conn) SendApplication(msg *diam.Message) error {
	if c.state.Name() != StateReady && c.state.Name() != StateReadyWaitingDwa {
		return &ErrNotReady{State: c.state.Name()}
	}
	return c.writeMessage(msg)
}

func (c *Conn) writeMessage(msg *diam.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.transport.Write(msg.Encode())
	if err != nil {
		return err
	}
	metrics.MessagesSentTotal.WithLabelValues(c.logLabel(), fmt.Sprint(msg.Header.CommandCode)).Inc()
	return nil
}

// RequestDisconnect asks a Ready connection to begin a graceful
// shutdown (spec §4.5, "application request to disconnect").
func (c *Conn) RequestDisconnect() {
	c.push(evDisconnectRequested{})
}

func (c *Conn) armTimer(t **time.Timer, d time.Duration, ev event) {
	c.stopTimer(t)
	*t = time.AfterFunc(d, func() { c.push(ev) })
}

func (c *Conn) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (c *Conn) nextIDs() (hopByHop, endToEnd uint32) {
	return c.seq.Next(), c.seq.Next()
}

func (c *Conn) onEnterConnecting() {
	c.armTimer(&c.ceaTimer, c.cfg.CeaTimeout, evCeaTimer{})
}

func (c *Conn) notifyReady() {
	if c.delegate != nil {
		c.delegate.NotifyReady(c)
	}
}

func (c *Conn) onEnterClosing(reason Reason, cause error) {
	c.closed.Set()
	c.stopTimer(&c.idleTimer)
	c.stopTimer(&c.dwaTimer)
	c.stopTimer(&c.ceaTimer)
	c.stopTimer(&c.disconnectTimer)
	c.log.WithField("reason", string(reason)).Info("peer: closing")
	metrics.DisconnectsTotal.WithLabelValues(c.logLabel(), string(reason)).Inc()
	if c.delegate != nil {
		c.delegate.NotifyClosed(c, reason, cause)
	}
	// onEnterClosing runs on the owning event-loop goroutine (via
	// state.Enter), and c.closed is already set, so push would silently
	// drop this event; deliver it directly instead, same as
	// drainToClosed's ctx-cancel path.
	c.step(evCleanupDone{})
}

func (c *Conn) onEnterClosed() {}

func (c *Conn) sendCER() {
	hop, end := c.nextIDs()
	req := &base.CapabilitiesExchangeRequest{
		OriginHost:  c.originHost,
		OriginRealm: c.originRealm,
	}
	avps, err := compose.Emit(c.dict, req)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build CER")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{
			CmdFlags:    diam.CmdFlagRequest,
			CommandCode: dict.CommandCapabilitiesExchange,
			HopByHopID:  hop,
			EndToEndID:  end,
		},
		AVPs: avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) sendCEA(success bool) {
	hop, end := c.nextIDs()
	resultCode := uint32(2001)
	ans := &base.CapabilitiesExchangeAnswer{
		ResultCode:  resultCode,
		OriginHost:  c.originHost,
		OriginRealm: c.originRealm,
	}
	avps, err := compose.Emit(c.dict, ans)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build CEA")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{
			CmdFlags:    0,
			CommandCode: dict.CommandCapabilitiesExchange,
			HopByHopID:  hop,
			EndToEndID:  end,
		},
		AVPs: avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) sendDWR() {
	hop, end := c.nextIDs()
	req := &base.DeviceWatchdogRequest{OriginHost: c.originHost, OriginRealm: c.originRealm}
	avps, err := compose.Emit(c.dict, req)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build DWR")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: dict.CommandDeviceWatchdog, HopByHopID: hop, EndToEndID: end},
		AVPs:   avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) sendDWA() {
	hop, end := c.nextIDs()
	ans := &base.DeviceWatchdogAnswer{ResultCode: 2001, OriginHost: c.originHost, OriginRealm: c.originRealm}
	avps, err := compose.Emit(c.dict, ans)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build DWA")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{CommandCode: dict.CommandDeviceWatchdog, HopByHopID: hop, EndToEndID: end},
		AVPs:   avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) sendDPR() {
	hop, end := c.nextIDs()
	req := &base.DisconnectPeerRequest{
		OriginHost:      c.originHost,
		OriginRealm:     c.originRealm,
		DisconnectCause: base.DisconnectCauseRebooting,
	}
	avps, err := compose.Emit(c.dict, req)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build DPR")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: dict.CommandDisconnectPeer, HopByHopID: hop, EndToEndID: end},
		AVPs:   avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) sendDPA() {
	hop, end := c.nextIDs()
	ans := &base.DisconnectPeerAnswer{ResultCode: 2001, OriginHost: c.originHost, OriginRealm: c.originRealm}
	avps, err := compose.Emit(c.dict, ans)
	if err != nil {
		c.log.WithError(err).Error("peer: failed to build DPA")
		return
	}
	msg := &diam.Message{
		Header: diam.Header{CommandCode: dict.CommandDisconnectPeer, HopByHopID: hop, EndToEndID: end},
		AVPs:   avps,
	}
	_ = c.writeMessage(msg)
}

func (c *Conn) handleCER_CEA(msg *diam.Message, cf dict.CommandFactories) {
	if msg.IsRequest() {
		req, ok := cf.NewRequest().(*base.CapabilitiesExchangeRequest)
		if !ok {
			c.log.Warn("peer: CER factory returned unexpected type")
			return
		}
		if err := compose.Populate(c.dict, msg.AVPs, req); err != nil {
			c.log.WithError(err).Warn("peer: malformed CER")
			return
		}
		c.push(evCER{hostID: req.OriginHost})
		return
	}
	ans, ok := cf.NewAnswer().(*base.CapabilitiesExchangeAnswer)
	if !ok {
		c.log.Warn("peer: CEA factory returned unexpected type")
		c.push(evCEA{success: false})
		return
	}
	if err := compose.Populate(c.dict, msg.AVPs, ans); err != nil {
		c.log.WithError(err).Warn("peer: malformed CEA")
		c.push(evCEA{success: false})
		return
	}
	c.push(evCEA{success: ans.ResultCode == dict.ResultSuccess, hostID: ans.OriginHost})
}

func (c *Conn) handleDWR_DWA(msg *diam.Message, cf dict.CommandFactories) {
	if msg.IsRequest() {
		if _, ok := cf.NewRequest().(*base.DeviceWatchdogRequest); !ok {
			c.log.Warn("peer: DWR factory returned unexpected type")
			return
		}
		c.sendDWA()
		return
	}
	if _, ok := cf.NewAnswer().(*base.DeviceWatchdogAnswer); !ok {
		c.log.Warn("peer: DWA factory returned unexpected type")
	}
	c.push(evDWA{})
}

func (c *Conn) handleDPR_DPA(msg *diam.Message, cf dict.CommandFactories) {
	if msg.IsRequest() {
		if _, ok := cf.NewRequest().(*base.DisconnectPeerRequest); !ok {
			c.log.Warn("peer: DPR factory returned unexpected type")
			return
		}
		c.push(evDPR{})
		return
	}
	if _, ok := cf.NewAnswer().(*base.DisconnectPeerAnswer); !ok {
		c.log.Warn("peer: DPA factory returned unexpected type")
	}
	c.push(evDPA{})
}

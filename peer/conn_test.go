package peer_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/diameter-go/diameter/app/base"
	"github.com/diameter-go/diameter/compose"
	"github.com/diameter-go/diameter/dict"
	"github.com/diameter-go/diameter/diam"
	"github.com/diameter-go/diameter/internal/log"
	"github.com/diameter-go/diameter/peer"
	"github.com/diameter-go/diameter/sid"
)

type recordingDelegate struct {
	ready  chan *peer.Conn
	closed chan closeCall
}

type closeCall struct {
	reason peer.Reason
	cause  error
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{
		ready:  make(chan *peer.Conn, 4),
		closed: make(chan closeCall, 4),
	}
}

func (d *recordingDelegate) NotifyReady(c *peer.Conn) { d.ready <- c }
func (d *recordingDelegate) NotifyClosed(c *peer.Conn, reason peer.Reason, cause error) {
	d.closed <- closeCall{reason: reason, cause: cause}
}
func (d *recordingDelegate) Dispatch(c *peer.Conn, msg *diam.Message) {}

func newTestConn(t *testing.T, cfg peer.Config, outbound bool) (*peer.Conn, net.Conn, *recordingDelegate) {
	t.Helper()
	local, remote := net.Pipe()
	delegate := newRecordingDelegate()
	seq := sid.NewSequence()
	var c *peer.Conn
	if outbound {
		c = peer.NewOutbound(cfg, dict.Default, local, "dra2.gy.mno.net", "mno.net", seq, delegate, log.GetLogger())
	} else {
		c = peer.NewInbound(cfg, dict.Default, local, "dra2.gy.mno.net", "mno.net", seq, delegate, log.GetLogger())
	}
	return c, remote, delegate
}

// TestDwaTimeoutClosesConnection exercises spec scenario 6: with
// idleTimeout=0 and dwaTimeout=100ms, a peer that never answers the
// DWR closes with reason DwaTimeout within ~200ms of reaching Ready.
func TestDwaTimeoutClosesConnection(t *testing.T) {
	cfg := peer.Config{
		CeaTimeout:     2 * time.Second,
		IdleTimeout:    0,
		DwaTimeout:     100 * time.Millisecond,
		RequestTimeout: 2 * time.Second,
	}
	c, remote, delegate := newTestConn(t, cfg, true)
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	// Drain the CER the outbound connection sends and answer with a
	// successful CEA so the connection reaches Ready.
	buf := make([]byte, 4096)
	n, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("reading CER: %v", err)
	}
	if _, decodeErr := diam.DecodeMessage(buf[:n], dict.Default); decodeErr != nil {
		t.Fatalf("decoding CER: %v", decodeErr)
	}

	cea := &base.CapabilitiesExchangeAnswer{
		ResultCode:  dict.ResultSuccess,
		OriginHost:  "dra1.gy.mno.net",
		OriginRealm: "mno.net",
	}
	avps, err := compose.Emit(dict.Default, cea)
	if err != nil {
		t.Fatalf("emitting CEA: %v", err)
	}
	msg := &diam.Message{
		Header: diam.Header{CommandCode: dict.CommandCapabilitiesExchange, HopByHopID: 1, EndToEndID: 2},
		AVPs:   avps,
	}
	if _, err := remote.Write(msg.Encode()); err != nil {
		t.Fatalf("writing CEA: %v", err)
	}

	select {
	case <-delegate.ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ready notification")
	}

	// The connection should now send a DWR (idleTimeout=0 fires
	// immediately) which we never answer.
	n, err = remote.Read(buf)
	if err != nil {
		t.Fatalf("reading DWR: %v", err)
	}
	dwr, err := diam.DecodeMessage(buf[:n], dict.Default)
	if err != nil {
		t.Fatalf("decoding DWR: %v", err)
	}
	if dwr.Header.CommandCode != dict.CommandDeviceWatchdog {
		t.Fatalf("command = %d, want DeviceWatchdog", dwr.Header.CommandCode)
	}

	select {
	case call := <-delegate.closed:
		if call.reason != peer.ReasonDwaTimeout {
			t.Fatalf("close reason = %s, want DwaTimeout", call.reason)
		}
	case <-time.After(300 * time.Millisecond):
		t.Fatal("connection did not close within the expected window")
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Start did not return after closing")
	}
}

// TestInboundCERReachesReady exercises the inbound symmetric path:
// Connected waits for the remote's CER, answers with CEA, and
// notifies Ready.
func TestInboundCERReachesReady(t *testing.T) {
	cfg := peer.DefaultConfig()
	c, remote, delegate := newTestConn(t, cfg, false)
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Start(ctx)

	cer := &base.CapabilitiesExchangeRequest{
		OriginHost:  "dra1.gy.mno.net",
		OriginRealm: "mno.net",
		VendorID:    10415,
	}
	avps, err := compose.Emit(dict.Default, cer)
	if err != nil {
		t.Fatalf("emitting CER: %v", err)
	}
	msg := &diam.Message{
		Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: dict.CommandCapabilitiesExchange, HopByHopID: 5, EndToEndID: 6},
		AVPs:   avps,
	}
	if _, err := remote.Write(msg.Encode()); err != nil {
		t.Fatalf("writing CER: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("reading CEA: %v", err)
	}
	cea, err := diam.DecodeMessage(buf[:n], dict.Default)
	if err != nil {
		t.Fatalf("decoding CEA: %v", err)
	}
	if cea.Header.CommandCode != dict.CommandCapabilitiesExchange || cea.IsRequest() {
		t.Fatalf("expected a CEA, got header %+v", cea.Header)
	}

	select {
	case <-delegate.ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ready notification")
	}

	cancel()
}

package node_test

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
	"github.com/diameter-go/diameter/node"
	"github.com/diameter-go/diameter/peer"
	"github.com/diameter-go/diameter/sid"
)

const testApplicationID = 4

type readyListener struct {
	ready chan *peer.Conn
}

func (l *readyListener) OnPeerReady(c *peer.Conn)                                   { l.ready <- c }
func (l *readyListener) OnPeerClosed(c *peer.Conn, reason peer.Reason, cause error) {}

type stubApplication struct {
	id      uint32
	handle  func(ctx context.Context, c *peer.Conn, msg *diam.Message) *diam.Message
	unsolic func(c *peer.Conn, msg *diam.Message)
}

func (a *stubApplication) ID() uint32 { return a.id }
func (a *stubApplication) HandleRequest(ctx context.Context, c *peer.Conn, msg *diam.Message) *diam.Message {
	if a.handle == nil {
		return nil
	}
	return a.handle(ctx, c, msg)
}
func (a *stubApplication) HandleUnsolicitedAnswer(c *peer.Conn, msg *diam.Message) {
	if a.unsolic != nil {
		a.unsolic(c, msg)
	}
}

// newReadyPeer drives an outbound peer.Conn through the CER/CEA
// handshake against a node so the test body can focus on
// request/dispatch behavior once the peer is Ready.
func newReadyPeer(t *testing.T, n *node.Node, hostIdentity string) (*peer.Conn, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	c := peer.NewOutbound(peer.DefaultConfig(), dict.Default, local, "dra2.gy.mno.net", "mno.net", sid.NewSequence(), n, log.GetLogger())

	ready := &readyListener{ready: make(chan *peer.Conn, 1)}
	n.AddListener(ready)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Start(ctx)

	buf := make([]byte, 4096)
	nr, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("reading CER: %v", err)
	}
	if _, err := diam.DecodeMessage(buf[:nr], dict.Default); err != nil {
		t.Fatalf("decoding CER: %v", err)
	}

	cea := &base.CapabilitiesExchangeAnswer{
		ResultCode:  dict.ResultSuccess,
		OriginHost:  hostIdentity,
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
	case <-ready.ready:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Ready notification")
	}

	n.AdoptPeer(hostIdentity, c)
	return c, remote
}

func buildNode(t *testing.T) *node.Node {
	t.Helper()
	n, err := node.New(node.Config{OriginHost: "dra2.gy.mno.net", OriginRealm: "mno.net"})
	if err != nil {
		t.Fatalf("node.New: %v", err)
	}
	return n
}

// TestRequestCorrelatesOutOfOrderAnswers exercises spec §8 scenario 5:
// two concurrent outbound requests on one peer whose answers arrive in
// reversed order each resolve to the waiter that sent the matching
// request, by hop-by-hop id.
func TestRequestCorrelatesOutOfOrderAnswers(t *testing.T) {
	n := buildNode(t)
	_, remote := newReadyPeer(t, n, "dra1.gy.mno.net")

	type outcome struct {
		sentHop uint32
		gotHop  uint32
		err     error
	}
	results := make(chan outcome, 2)

	for i := 0; i < 2; i++ {
		go func() {
			msg := &diam.Message{Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: 999, ApplicationID: testApplicationID}}
			ans, err := n.Request(context.Background(), "dra1.gy.mno.net", msg, 2*time.Second)
			o := outcome{sentHop: msg.Header.HopByHopID, err: err}
			if ans != nil {
				o.gotHop = ans.Header.HopByHopID
			}
			results <- o
		}()
	}

	var reqs []*diam.Message
	buf := make([]byte, 4096)
	for len(reqs) < 2 {
		nr, err := remote.Read(buf)
		if err != nil {
			t.Fatalf("reading request: %v", err)
		}
		msg, err := diam.DecodeMessage(buf[:nr], dict.Default)
		if err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		reqs = append(reqs, msg)
	}

	for i := len(reqs) - 1; i >= 0; i-- {
		ans := &diam.Message{Header: reqs[i].Header.ToAnswer()}
		if _, err := remote.Write(ans.Encode()); err != nil {
			t.Fatalf("writing answer: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case o := <-results:
			if o.err != nil {
				t.Fatalf("Request returned error: %v", o.err)
			}
			if o.gotHop != o.sentHop {
				t.Errorf("answer hop-by-hop = %d, want %d (request's own)", o.gotHop, o.sentHop)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a request to resolve")
		}
	}
}

// TestDispatchRoutesToRegisteredApplication exercises the inbound
// happy path: a request for a registered application-id reaches
// HandleRequest, and the returned answer is sent back over the wire.
func TestDispatchRoutesToRegisteredApplication(t *testing.T) {
	n := buildNode(t)
	handled := make(chan *diam.Message, 1)
	n.RegisterApplication(&stubApplication{
		id: testApplicationID,
		handle: func(ctx context.Context, c *peer.Conn, msg *diam.Message) *diam.Message {
			handled <- msg
			return &diam.Message{Header: msg.Header.ToAnswer()}
		},
	})
	c, remote := newReadyPeer(t, n, "dra1.gy.mno.net")

	req := &diam.Message{Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: 321, ApplicationID: testApplicationID, HopByHopID: 10, EndToEndID: 11}}
	if _, err := remote.Write(req.Encode()); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("application never saw the request")
	}

	buf := make([]byte, 4096)
	nr, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("reading answer: %v", err)
	}
	ans, err := diam.DecodeMessage(buf[:nr], dict.Default)
	if err != nil {
		t.Fatalf("decoding answer: %v", err)
	}
	if ans.IsRequest() || ans.Header.HopByHopID != 10 {
		t.Fatalf("unexpected answer header: %+v", ans.Header)
	}
	_ = c
}

// TestDispatchUnsupportedApplicationAnswersWithResultCode exercises
// spec §4.6: a request for an application-id with no registered
// handler is answered DIAMETER_APPLICATION_UNSUPPORTED rather than
// dropped.
func TestDispatchUnsupportedApplicationAnswersWithResultCode(t *testing.T) {
	n := buildNode(t)
	_, remote := newReadyPeer(t, n, "dra1.gy.mno.net")

	req := &diam.Message{Header: diam.Header{CmdFlags: diam.CmdFlagRequest, CommandCode: 321, ApplicationID: 999999, HopByHopID: 20, EndToEndID: 21}}
	if _, err := remote.Write(req.Encode()); err != nil {
		t.Fatalf("writing request: %v", err)
	}

	buf := make([]byte, 4096)
	nr, err := remote.Read(buf)
	if err != nil {
		t.Fatalf("reading answer: %v", err)
	}
	ans, err := diam.DecodeMessage(buf[:nr], dict.Default)
	if err != nil {
		t.Fatalf("decoding answer: %v", err)
	}
	var resultCode uint32
	for _, a := range ans.AVPs {
		if a.Code == dict.AVPResultCode {
			resultCode, err = a.Uint32()
			if err != nil {
				t.Fatalf("reading Result-Code: %v", err)
			}
		}
	}
	if resultCode != dict.ResultApplicationUnsupported {
		t.Errorf("Result-Code = %d, want %d", resultCode, dict.ResultApplicationUnsupported)
	}
}

// TestDispatchAnswerRoutesUnsolicitedToApplication exercises an answer
// whose hop-by-hop id matches no pending request: it must reach
// HandleUnsolicitedAnswer rather than being silently dropped.
func TestDispatchAnswerRoutesUnsolicitedToApplication(t *testing.T) {
	n := buildNode(t)
	unsolicited := make(chan *diam.Message, 1)
	n.RegisterApplication(&stubApplication{
		id: testApplicationID,
		unsolic: func(c *peer.Conn, msg *diam.Message) {
			unsolicited <- msg
		},
	})
	_, remote := newReadyPeer(t, n, "dra1.gy.mno.net")

	ans := &diam.Message{Header: diam.Header{CommandCode: 321, ApplicationID: testApplicationID, HopByHopID: 999, EndToEndID: 998}}
	if _, err := remote.Write(ans.Encode()); err != nil {
		t.Fatalf("writing answer: %v", err)
	}

	select {
	case <-unsolicited:
	case <-time.After(time.Second):
		t.Fatal("unsolicited answer never reached the application")
	}
}

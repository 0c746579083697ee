// Package node implements the Diameter node and dispatcher (spec
// §4.6): the peer table, application registry, pending-request
// correlation table, and outbound/inbound message routing. Structured
// on the teacher's DialogManager (plugins/handler/skywalking/dialog/manager.go):
// a sync.Map-backed store keyed by identity, with listeners notified
// on lifecycle events, generalized from SIP dialogs to Diameter peers.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/serialx/hashring"
	"go.uber.org/multierr"

	"github.com/diameter-go/diameter/dict"
	"github.com/diameter-go/diameter/diam"
	"github.com/diameter-go/diameter/internal/log"
	"github.com/diameter-go/diameter/internal/metrics"
	"github.com/diameter-go/diameter/peer"
	"github.com/diameter-go/diameter/sid"
)

// Application handles messages for one application-id, the external
// collaborator spec §1 calls out ("the CLI/driver that wires a node to
// user application handlers").
type Application interface {
	ID() uint32
	HandleRequest(ctx context.Context, c *peer.Conn, msg *diam.Message) *diam.Message
	HandleUnsolicitedAnswer(c *peer.Conn, msg *diam.Message)
}

// Listener observes peer lifecycle events, mirroring the teacher's
// DialogListener (plugins/filter/skywalking/types).
type Listener interface {
	OnPeerReady(c *peer.Conn)
	OnPeerClosed(c *peer.Conn, reason peer.Reason, cause error)
}

type pendingEntry struct {
	peerID string
	result chan pendingResult
}

type pendingResult struct {
	msg *diam.Message
	err error
}

// Node is the top-level object: identity, peer table, application
// registry, and the pending-request correlation table.
type Node struct {
	OriginHost  string
	OriginRealm string

	dict diam.Dictionary
	seq  *sid.Sequence
	log  log.Logger

	peers   sync.Map // host-identity (string) -> *peer.Conn
	apps    sync.Map // application-id (uint32) -> Application
	pending sync.Map // hop-by-hop (uint32) -> *pendingEntry

	dedup *lru.Cache[uint32, time.Time]

	mu          sync.Mutex
	listeners   []Listener
	realmMember map[string][]string
	realmRing   map[string]*hashring.HashRing
}

// Config bundles the identity and dictionary a Node is built from.
type Config struct {
	OriginHost  string
	OriginRealm string
	Dict        diam.Dictionary
	Logger      log.Logger
}

// New constructs a Node. dict defaults to dict.Default when nil.
func New(cfg Config) (*Node, error) {
	if cfg.Dict == nil {
		cfg.Dict = dict.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = log.GetLogger()
	}
	cache, err := lru.New[uint32, time.Time](4096)
	if err != nil {
		return nil, fmt.Errorf("node: building dedup cache: %w", err)
	}
	return &Node{
		OriginHost:  cfg.OriginHost,
		OriginRealm: cfg.OriginRealm,
		dict:        cfg.Dict,
		seq:         sid.NewSequence(),
		log:         cfg.Logger,
		dedup:       cache,
		realmMember: make(map[string][]string),
		realmRing:   make(map[string]*hashring.HashRing),
	}, nil
}

// RegisterApplication adds an application to the dispatch registry,
// keyed by its application-id (spec §4.6).
func (n *Node) RegisterApplication(app Application) {
	n.apps.Store(app.ID(), app)
}

// AddListener registers a peer-lifecycle observer.
func (n *Node) AddListener(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// AdoptPeer registers a PeerConnection under a peer identity, to be
// called once the connection has any preliminary identity known
// (typically right away for outbound peers). This is the only way a
// connection enters the peer table; the identity learned from CER/CEA
// does not re-key it.
func (n *Node) AdoptPeer(hostIdentity string, c *peer.Conn) {
	n.peers.Store(hostIdentity, c)
}

// RemovePeer drops a peer from the table, e.g. after a permanent
// disconnect of a non-persistent peer.
func (n *Node) RemovePeer(hostIdentity string) {
	n.peers.Delete(hostIdentity)
}

// Peer looks up a connection by host-identity.
func (n *Node) Peer(hostIdentity string) (*peer.Conn, bool) {
	v, ok := n.peers.Load(hostIdentity)
	if !ok {
		return nil, false
	}
	return v.(*peer.Conn), true
}

// JoinRealm adds hostIdentity as a routing candidate for realm,
// rebuilding that realm's hash ring (spec §4.6, "target peer ... by
// ... realm, or application routing").
func (n *Node) JoinRealm(realm, hostIdentity string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.realmMember[realm] {
		if m == hostIdentity {
			return
		}
	}
	n.realmMember[realm] = append(n.realmMember[realm], hostIdentity)
	n.realmRing[realm] = hashring.New(n.realmMember[realm])
}

// PeerForRealm picks a peer serving realm via consistent hashing keyed
// by key (e.g. a session-id), so repeated calls with the same key
// favor the same peer.
func (n *Node) PeerForRealm(realm, key string) (*peer.Conn, bool) {
	n.mu.Lock()
	ring, ok := n.realmRing[realm]
	n.mu.Unlock()
	if !ok {
		return nil, false
	}
	host, ok := ring.GetNode(key)
	if !ok {
		return nil, false
	}
	return n.Peer(host)
}

// Request sends an application message to the named peer and blocks
// until the matching answer arrives, ctx is done, or deadline elapses
// (spec §4.6 Outbound request, §5 Cancellation/timeouts).
func (n *Node) Request(ctx context.Context, hostIdentity string, msg *diam.Message, deadline time.Duration) (*diam.Message, error) {
	c, ok := n.Peer(hostIdentity)
	if !ok {
		return nil, &ErrPeerGone{HostIdentity: hostIdentity}
	}

	hop, end := n.seq.Next(), n.seq.Next()
	msg.Header.HopByHopID = hop
	msg.Header.EndToEndID = end

	entry := &pendingEntry{
		peerID: hostIdentity,
		result: make(chan pendingResult, 1),
	}
	n.pending.Store(hop, entry)
	defer n.pending.Delete(hop)

	metrics.PendingRequests.WithLabelValues(hostIdentity).Inc()
	defer metrics.PendingRequests.WithLabelValues(hostIdentity).Dec()

	start := time.Now()
	if err := c.SendApplication(msg); err != nil {
		return nil, fmt.Errorf("node: sending request to %s: %w", hostIdentity, err)
	}

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-entry.result:
		metrics.RequestLatencySeconds.WithLabelValues(hostIdentity, fmt.Sprint(msg.Header.CommandCode)).Observe(time.Since(start).Seconds())
		return res.msg, res.err
	case <-timer.C:
		return nil, &ErrTimeout{HopByHopID: hop}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NotifyReady implements peer.Delegate: logs the event and fans out to
// listeners. It does not change the peer table.
func (n *Node) NotifyReady(c *peer.Conn) {
	n.log.WithField("peer", c.ID).Info("node: peer ready")
	n.mu.Lock()
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.Unlock()
	for _, l := range listeners {
		l.OnPeerReady(c)
	}
}

// NotifyClosed implements peer.Delegate: fails every pending request
// bound to this peer with ErrPeerGone and fans out to listeners.
func (n *Node) NotifyClosed(c *peer.Conn, reason peer.Reason, cause error) {
	n.log.WithField("peer", c.ID).WithField("reason", string(reason)).Info("node: peer closed")

	var toFail []uint32
	n.pending.Range(func(key, value any) bool {
		entry := value.(*pendingEntry)
		if p, ok := n.Peer(entry.peerID); (ok && p == c) || entry.peerID == "" {
			toFail = append(toFail, key.(uint32))
		}
		return true
	})
	for _, hop := range toFail {
		if v, ok := n.pending.LoadAndDelete(hop); ok {
			entry := v.(*pendingEntry)
			entry.result <- pendingResult{err: &ErrPeerGone{HostIdentity: entry.peerID}}
		}
	}

	n.mu.Lock()
	listeners := append([]Listener(nil), n.listeners...)
	n.mu.Unlock()
	for _, l := range listeners {
		l.OnPeerClosed(c, reason, cause)
	}
}

// Dispatch implements peer.Delegate for non-base-protocol messages
// (spec §4.6 Inbound message).
func (n *Node) Dispatch(c *peer.Conn, msg *diam.Message) {
	if msg.IsRequest() {
		n.dispatchRequest(c, msg)
		return
	}
	n.dispatchAnswer(c, msg)
}

func (n *Node) dispatchRequest(c *peer.Conn, msg *diam.Message) {
	if _, seen := n.dedup.Get(msg.Header.EndToEndID); seen {
		metrics.DuplicateMessagesTotal.WithLabelValues(c.ID).Inc()
		n.log.WithField("end-to-end", msg.Header.EndToEndID).Debug("node: duplicate request ignored")
		return
	}
	n.dedup.Add(msg.Header.EndToEndID, time.Now())

	v, ok := n.apps.Load(msg.Header.ApplicationID)
	if !ok {
		ans := n.unsupportedApplicationAnswer(msg)
		if err := c.SendApplication(ans); err != nil {
			n.log.WithError(err).Warn("node: failed to send application-unsupported answer")
		}
		return
	}
	app := v.(Application)
	ans := app.HandleRequest(context.Background(), c, msg)
	if ans == nil {
		return
	}
	if err := c.SendApplication(ans); err != nil {
		n.log.WithError(err).Warn("node: failed to send application answer")
	}
}

func (n *Node) dispatchAnswer(c *peer.Conn, msg *diam.Message) {
	if v, ok := n.pending.LoadAndDelete(msg.Header.HopByHopID); ok {
		entry := v.(*pendingEntry)
		entry.result <- pendingResult{msg: msg}
		return
	}
	v, ok := n.apps.Load(msg.Header.ApplicationID)
	if !ok {
		n.log.WithField("hop-by-hop", msg.Header.HopByHopID).Warn("node: unsolicited answer, no application registered")
		return
	}
	v.(Application).HandleUnsolicitedAnswer(c, msg)
}

func (n *Node) unsupportedApplicationAnswer(req *diam.Message) *diam.Message {
	header := req.Header.ToAnswer()
	resultAVP, err := diam.NewAVP(n.dict, 0, dict.AVPResultCode, nil)
	var avps []*diam.AVP
	if err == nil {
		resultAVP.SetUint32(dict.ResultApplicationUnsupported)
		avps = append(avps, resultAVP)
	}
	if hostAVP, err := diam.NewAVP(n.dict, 0, dict.AVPOriginHost, nil); err == nil {
		_ = hostAVP.SetUTF8String(n.OriginHost)
		avps = append(avps, hostAVP)
	}
	if realmAVP, err := diam.NewAVP(n.dict, 0, dict.AVPOriginRealm, nil); err == nil {
		_ = realmAVP.SetUTF8String(n.OriginRealm)
		avps = append(avps, realmAVP)
	}
	return &diam.Message{Header: header, AVPs: avps}
}

// Shutdown sends DPR to every Ready peer (peers in other states ignore
// the request) and waits up to grace in total for them to close (spec
// §5 Node shutdown). It does not force closure itself: it returns an
// error naming each peer still open when grace elapses, or ctx's error
// if ctx ends first.
func (n *Node) Shutdown(ctx context.Context, grace time.Duration) error {
	var conns []*peer.Conn
	n.peers.Range(func(_, v any) bool {
		conns = append(conns, v.(*peer.Conn))
		return true
	})

	for _, c := range conns {
		c.RequestDisconnect()
	}

	graceCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	var errs error
	for _, c := range conns {
		select {
		case <-c.Done():
		case <-graceCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			select {
			case <-c.Done():
			default:
				errs = multierr.Append(errs, fmt.Errorf("node: peer %s did not close within grace period", c.ID))
			}
		}
	}
	return errs
}

// Package daemon implements the node daemon lifecycle manager: load
// config, bring up the listener and configured peers, and run until a
// signal or command asks it to stop. Grounded on the teacher's
// internal/daemon/daemon.go New/Start/Stop/Run/Reload split, narrowed
// from the capture-agent's task manager/UDS server/Kafka consumer to a
// Diameter node's listener and peer table.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"

	"github.com/diameter-go/diameter/dict"
	"github.com/diameter-go/diameter/internal/config"
	"github.com/diameter-go/diameter/internal/log"
	"github.com/diameter-go/diameter/node"
	"github.com/diameter-go/diameter/peer"
	"github.com/diameter-go/diameter/sid"
)

// Daemon owns a Node, its listener, and the supervisor goroutines that
// keep configured persistent peers connected.
type Daemon struct {
	configPath string
	cfg        *config.NodeConfig
	logger     log.Logger

	node          *node.Node
	listener      net.Listener
	metricsServer *http.Server
	seq           *sid.Sequence

	ctx    context.Context
	cancel context.CancelFunc

	shutdownChan chan struct{}
	sigChan      chan os.Signal
}

// New loads configPath and builds the Node, but does not start
// listening or dialing peers; call Start for that.
func New(configPath string) (*Daemon, error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: loading config: %w", err)
	}

	log.Init(&cfg.Log)
	logger := log.GetLogger()

	n, err := node.New(node.Config{
		OriginHost:  cfg.Node.OriginHost,
		OriginRealm: cfg.Node.OriginRealm,
		Dict:        dict.Default,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("daemon: building node: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		configPath:   configPath,
		cfg:          cfg,
		logger:       logger,
		node:         n,
		seq:          sid.NewSequence(),
		ctx:          ctx,
		cancel:       cancel,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Node returns the underlying Node, e.g. so cmd can register
// applications on it before Start.
func (d *Daemon) Node() *node.Node { return d.node }

// Start brings up the inbound listener and begins connecting every
// configured persistent peer.
func (d *Daemon) Start() error {
	d.logger.WithField("origin-host", d.cfg.Node.OriginHost).Info("daemon: starting node")

	addr := fmt.Sprintf("%s:%d", d.cfg.Listen.Address, d.cfg.Listen.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("daemon: listening on %s: %w", addr, err)
	}
	d.listener = ln
	go d.acceptLoop()

	if d.cfg.Metrics.Enabled {
		d.startMetricsServer()
	}

	for _, pc := range d.cfg.Peers {
		pc := pc
		if pc.Persistent {
			go d.supervisePeer(pc)
		}
	}

	d.logger.WithField("address", addr).Info("daemon: listening")
	return nil
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	d.metricsServer = &http.Server{Addr: d.cfg.Metrics.Address, Handler: mux}
	go func() {
		if err := d.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.WithError(err).Warn("daemon: metrics server failed")
		}
	}()
	d.logger.WithField("address", d.cfg.Metrics.Address).Info("daemon: metrics server listening")
}

func (d *Daemon) acceptLoop() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
			}
			d.logger.WithError(err).Warn("daemon: accept failed")
			return
		}
		c := peer.NewInbound(d.peerConfig(), dict.Default, conn, d.cfg.Node.OriginHost, d.cfg.Node.OriginRealm, d.seq, d.node, d.logger)
		go c.Start(d.ctx)
	}
}

// supervisePeer keeps a persistent, statically-configured peer
// reconnected across failures, backing off between attempts (spec §6
// PeerConfig.ReconnectBackoff). The delay starts at ReconnectBackoff
// (5s when unset), doubles after each failed dial up to 64 times its
// starting value, and returns to the starting value after a successful
// dial.
func (d *Daemon) supervisePeer(pc config.PeerConfig) {
	initial := pc.ReconnectBackoff
	if initial <= 0 {
		initial = 5 * time.Second
	}
	maxBackoff := 64 * initial
	backoff := initial
	for {
		if d.ctx.Err() != nil {
			return
		}
		if len(pc.Addresses) == 0 {
			d.logger.WithField("peer", pc.HostIdentity).Warn("daemon: peer has no addresses, not dialing")
			return
		}
		if pc.Transport != "" && pc.Transport != "tcp" {
			d.logger.WithField("peer", pc.HostIdentity).WithField("transport", pc.Transport).Warn("daemon: unsupported transport, not dialing")
			return
		}
		addr := fmt.Sprintf("%s:%d", pc.Addresses[0], pc.Port)
		conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
		if err != nil {
			d.logger.WithError(err).WithField("peer", pc.HostIdentity).Warn("daemon: dial failed, retrying")
			d.sleepOrDone(backoff)
			backoff = min(2*backoff, maxBackoff)
			continue
		}
		backoff = initial

		c := peer.NewOutbound(d.peerConfig(), dict.Default, conn, d.cfg.Node.OriginHost, d.cfg.Node.OriginRealm, d.seq, d.node, d.logger)
		d.node.AdoptPeer(pc.HostIdentity, c)
		if pc.Realm != "" {
			d.node.JoinRealm(pc.Realm, pc.HostIdentity)
		}
		c.Start(d.ctx)

		if d.ctx.Err() != nil {
			return
		}
		d.logger.WithField("peer", pc.HostIdentity).Info("daemon: peer disconnected, will redial")
		d.sleepOrDone(backoff)
	}
}

func (d *Daemon) sleepOrDone(backoff time.Duration) {
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-d.ctx.Done():
	}
}

func (d *Daemon) peerConfig() peer.Config {
	cfg := peer.Config{
		CeaTimeout:     d.cfg.Listen.Cea,
		IdleTimeout:    d.cfg.Listen.Idle,
		DwaTimeout:     d.cfg.Listen.Dwa,
		RequestTimeout: d.cfg.Listen.Request,
	}
	if err := cfg.Valid(); err != nil {
		return peer.DefaultConfig()
	}
	return cfg
}

// Stop gracefully disconnects every peer, stops accepting new
// connections, and cancels the daemon's context.
func (d *Daemon) Stop() {
	d.logger.Info("daemon: initiating graceful shutdown")

	if d.listener != nil {
		if err := d.listener.Close(); err != nil {
			d.logger.WithError(err).Warn("daemon: error closing listener")
		}
	}

	if d.metricsServer != nil {
		metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Shutdown(metricsCtx); err != nil {
			d.logger.WithError(err).Warn("daemon: error stopping metrics server")
		}
		metricsCancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.node.Shutdown(shutdownCtx, 5*time.Second); err != nil {
		d.logger.WithError(err).Warn("daemon: error during node shutdown")
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	d.logger.Info("daemon: stopped gracefully")
}

// Run blocks, handling OS signals until shutdown. SIGTERM/SIGINT stop
// the daemon; SIGHUP calls Reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	d.logger.Info("daemon: running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.WithField("signal", sig.String()).Info("daemon: received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				d.logger.Info("daemon: received reload signal")
				if err := d.Reload(); err != nil {
					d.logger.WithError(err).Warn("daemon: reload failed")
				}
			}
		case <-d.shutdownChan:
			d.logger.Info("daemon: shutdown requested")
			d.Stop()
			return nil
		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Shutdown triggers the same graceful stop Run's signal handling does,
// for callers that don't control the process's signal delivery (e.g.
// a future command/control-plane surface).
func (d *Daemon) Shutdown() {
	close(d.shutdownChan)
}

// Reload re-reads and validates the configuration file and stores its
// log section in the daemon's config. The running logger is not
// reconfigured: log.Init takes effect once per process, so a changed
// log level applies only after a restart, as do identity, listener
// address, and peer topology changes.
func (d *Daemon) Reload() error {
	cfg, err := config.Load(afero.NewOsFs(), d.configPath)
	if err != nil {
		return fmt.Errorf("daemon: reloading config: %w", err)
	}
	d.cfg.Log = cfg.Log
	d.logger.WithField("level", cfg.Log.Level).Info("daemon: config re-read; log level not applied until restart")
	return nil
}

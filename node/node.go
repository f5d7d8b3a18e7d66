package node

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/logger"
	"github.com/adamgarcia4/rendezvous/peers"
	"github.com/adamgarcia4/rendezvous/telemetry"
	"github.com/adamgarcia4/rendezvous/transport"
)

// Node is one participant: it owns the UDP socket, the coordinator, and the
// optional status and metrics servers.
type Node struct {
	config *Config
	runID  string

	// injected
	log     *zap.SugaredLogger
	resolve peers.Resolver
	hosts   []string
	udp     *transport.UDP

	hostname      string
	coord         *barrier.Coordinator
	grpcServer    *transport.GRPC
	metricsServer *telemetry.Server

	mu      sync.RWMutex
	started bool
	stopped bool
}

// Option customizes a Node before Start.
type Option func(*Node)

// WithResolver replaces DNS resolution of peer hostnames.
func WithResolver(r peers.Resolver) Option {
	return func(n *Node) { n.resolve = r }
}

// WithHosts supplies the peer list directly instead of reading the hosts
// file or etcd.
func WithHosts(hosts []string) Option {
	return func(n *Node) { n.hosts = hosts }
}

// WithLogger replaces the default logger named after the local hostname.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(n *Node) { n.log = l }
}

// WithTransport hands the node an already bound socket; Start then skips
// binding and Stop closes it.
func WithTransport(u *transport.UDP) Option {
	return func(n *Node) { n.udp = u }
}

// New creates a new node with the given configuration
func New(config *Config, opts ...Option) (*Node, error) {
	if config == nil {
		return nil, ErrConfigRequired
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	n := &Node{
		config:  config,
		runID:   uuid.NewString(),
		resolve: peers.ResolveUDP,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Start performs every fallible step before the barrier: identity, peer
// list, resolution, socket, and the optional servers. Any error here is fatal
// for the run.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return ErrAlreadyStarted
	}

	hostname, err := peers.LocalHostname(n.config.Hostname)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLocalHostname, err)
	}
	n.hostname = hostname
	if n.log == nil {
		n.log = logger.Named(hostname)
	}

	hosts, err := n.loadHosts(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoadPeers, err)
	}
	if slices.Contains(hosts, "") {
		return fmt.Errorf("%w: %w", ErrLoadPeers, barrier.ErrEmptyHost)
	}
	hosts = peers.Dedupe(hosts, n.log)
	if !slices.Contains(hosts, hostname) {
		return fmt.Errorf("%w: %s", ErrSelfNotListed, hostname)
	}

	entries, err := peers.ResolveAll(hosts, n.config.Port, n.resolve)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResolve, err)
	}

	dir, err := barrier.NewDirectory(entries, hostname)
	switch {
	case errors.Is(err, barrier.ErrSelfNotFound):
		return fmt.Errorf("%w: %v", ErrSelfNotListed, err)
	case err != nil:
		return fmt.Errorf("%w: %w", ErrLoadPeers, err)
	}

	if n.udp == nil {
		udp, err := transport.ListenUDP(n.config.BindAddress, n.config.Port)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrBind, err)
		}
		n.udp = udp
	}

	opts := n.config.CoordinatorOptions()
	opts.Logger = n.log
	opts.Metrics = telemetry.Recorder{Node: hostname}
	opts.OnStateChange = n.onStateChange
	n.coord = barrier.NewCoordinator(dir, n.udp, opts)

	telemetry.SetRunInfo(n.runID, hostname)

	if err := n.startServers(); err != nil {
		n.closeAll()
		return err
	}

	n.started = true
	n.log.Debugf("Run %s listening on %s with %d peers", n.runID, n.udp.LocalAddr(), dir.Len())
	return nil
}

func (n *Node) loadHosts(ctx context.Context) ([]string, error) {
	if n.hosts != nil {
		return n.hosts, nil
	}
	if len(n.config.EtcdEndpoints) > 0 {
		return peers.LoadFromEtcd(ctx, n.config.EtcdEndpoints, n.config.EtcdPrefix, n.config.EtcdTimeout, n.config.MaxHosts, n.log)
	}
	return peers.LoadHostsFile(n.config.HostsFile, n.config.MaxHosts, n.log)
}

// startServers starts the gRPC status server and the metrics server when
// their addresses are configured. Both bind synchronously.
func (n *Node) startServers() error {
	if n.config.StatusAddr != "" {
		grpcTransport, err := transport.NewGRPC(n.config.StatusAddr, n.hostname, n.runID, n)
		if err != nil {
			return fmt.Errorf("failed to create gRPC transport: %w", err)
		}
		if err := grpcTransport.Start(); err != nil {
			return fmt.Errorf("failed to bind gRPC server: %w", err)
		}
		n.grpcServer = grpcTransport
		n.log.Infof("Status server listening on %s", grpcTransport.Addr())
	}

	if n.config.MetricsAddr != "" {
		srv, err := telemetry.Listen(n.config.MetricsAddr, http.HandlerFunc(n.serveStatusJSON))
		if err != nil {
			return fmt.Errorf("failed to bind metrics server: %w", err)
		}
		n.metricsServer = srv
		go func() {
			if err := srv.Serve(); err != nil {
				n.log.Errorf("Metrics server stopped: %v", err)
			}
		}()
		n.log.Infof("Metrics server listening on %s", srv.Addr())
	}
	return nil
}

// Run drives the barrier to a terminal state. Start must have succeeded.
func (n *Node) Run(ctx context.Context) (barrier.State, error) {
	n.mu.RLock()
	coord := n.coord
	n.mu.RUnlock()

	if coord == nil {
		return barrier.StateTimedOut, ErrNotStarted
	}
	return coord.Run(ctx), nil
}

// Stop releases the socket and stops the servers. It is safe to call more
// than once.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return nil
	}
	n.stopped = true
	return n.closeAll()
}

func (n *Node) closeAll() error {
	var errs []string
	if n.grpcServer != nil {
		if err := n.grpcServer.Stop(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if n.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := n.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err.Error())
		}
		cancel()
	}
	if n.udp != nil {
		if err := n.udp.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors stopping node: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (n *Node) onStateChange(s barrier.State) {
	if s == barrier.StateComplete && n.grpcServer != nil {
		n.grpcServer.SetServing(true)
	}
}

// BarrierStatus implements transport.StatusProvider.
func (n *Node) BarrierStatus() barrier.Status {
	n.mu.RLock()
	coord := n.coord
	n.mu.RUnlock()

	if coord == nil {
		return barrier.Status{State: barrier.StateRunning}
	}
	return coord.Status()
}

func (n *Node) serveStatusJSON(w http.ResponseWriter, r *http.Request) {
	st := n.BarrierStatus()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Hostname  string               `json:"hostname"`
		RunID     string               `json:"run_id"`
		State     string               `json:"state"`
		ElapsedMS int64                `json:"elapsed_ms"`
		Peers     []barrier.PeerStatus `json:"peers"`
	}{n.Hostname(), n.runID, st.State.String(), st.Elapsed.Milliseconds(), st.Peers})
}

// Ready is closed when the barrier completes. It is nil before Start.
func (n *Node) Ready() <-chan struct{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.coord == nil {
		return nil
	}
	return n.coord.Ready()
}

func (n *Node) RunID() string {
	return n.runID
}

// Hostname is the resolved local identity, empty before Start.
func (n *Node) Hostname() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.hostname
}

// LocalAddr is the bound UDP address, invalid before Start.
func (n *Node) LocalAddr() netip.AddrPort {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.udp == nil {
		return netip.AddrPort{}
	}
	return n.udp.LocalAddr()
}

// StatusAddr is the bound gRPC address, empty when disabled.
func (n *Node) StatusAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.grpcServer == nil {
		return ""
	}
	return n.grpcServer.Addr()
}

// MetricsAddr is the bound metrics address, empty when disabled.
func (n *Node) MetricsAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.metricsServer == nil {
		return ""
	}
	return n.metricsServer.Addr()
}

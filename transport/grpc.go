package transport

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/adamgarcia4/rendezvous/barrier"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// StatusProvider is the node the status service reports on.
type StatusProvider interface {
	BarrierStatus() barrier.Status
}

// GRPC serves the read-only observer API of one node: the standard health
// service (SERVING once the barrier is complete) and BarrierStatus.
type GRPC struct {
	addr     string
	srv      *grpc.Server
	lis      net.Listener
	health   *health.Server
	hostname string
	runID    string
	status   StatusProvider

	wg sync.WaitGroup
}

func (g *GRPC) setupTcp() (net.Listener, error) {
	lis, err := net.Listen("tcp", g.addr)

	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	return lis, nil
}

func (g *GRPC) setupServices() {
	g.srv.RegisterService(&barrierStatusServiceDesc, &statusServer{
		hostname: g.hostname,
		runID:    g.runID,
		provider: g.status,
	})

	g.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	g.health.SetServingStatus(StatusServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(g.srv, g.health)
}

// Start binds synchronously, so a port already in use is reported here, then
// serves in a background goroutine.
func (g *GRPC) Start() error {
	if lis, err := g.setupTcp(); err != nil {
		return fmt.Errorf("failed to setup TCP: %w", err)
	} else {
		g.lis = lis
	}

	g.setupServices()

	// Register reflection service for gRPC tools (grpcurl, grpcui, etc.)
	reflection.Register(g.srv)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.srv.Serve(g.lis)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (g *GRPC) Addr() string {
	if g.lis == nil {
		return g.addr
	}
	return g.lis.Addr().String()
}

// SetServing flips the health status reported to probes.
func (g *GRPC) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(StatusServiceName, status)
}

// Stop ends all RPCs and waits for the serve goroutine.
func (g *GRPC) Stop() error {
	g.health.Shutdown()
	g.srv.Stop()
	g.wg.Wait()
	return nil
}

func NewGRPC(addr, hostname, runID string, status StatusProvider) (*GRPC, error) {
	if addr == "" || !strings.Contains(addr, ":") {
		return nil, fmt.Errorf("invalid address: %s", addr)
	}

	if hostname == "" {
		return nil, fmt.Errorf("hostname must be provided")
	}

	if status == nil {
		return nil, fmt.Errorf("status provider must be provided")
	}

	return &GRPC{
		addr:     addr,
		srv:      grpc.NewServer(),
		health:   health.NewServer(),
		hostname: hostname,
		runID:    runID,
		status:   status,
	}, nil
}

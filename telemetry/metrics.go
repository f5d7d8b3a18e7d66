package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	MessagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "messages_sent_total",
			Help:      "Control messages sent, by local node, peer and kind.",
		},
		[]string{"node", "peer", "kind"},
	)

	MessagesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "messages_received_total",
			Help:      "Control messages received from known peers, by local node, peer and kind.",
		},
		[]string{"node", "peer", "kind"},
	)

	IgnoredDatagrams = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "ignored_datagrams_total",
			Help:      "Datagrams dropped without effect, by reason.",
		},
		[]string{"node", "reason"},
	)

	SendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "send_errors_total",
			Help:      "Failed datagram sends.",
		},
		[]string{"node"},
	)

	ReceiveErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "receive_errors_total",
			Help:      "Failed datagram receives other than poll timeouts.",
		},
		[]string{"node"},
	)

	BarrierState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "barrier_state",
			Help:      "Barrier state: 0 running, 1 complete, 2 timed out.",
		},
		[]string{"node"},
	)

	CompletionSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "barrier_completion_seconds",
			Help:      "Seconds from start until the barrier completed.",
		},
		[]string{"node"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rendezvous",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests to the observability endpoints.",
		},
		[]string{"op", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rendezvous",
			Name:      "http_request_duration_seconds",
			Help:      "Latency of HTTP requests to the observability endpoints.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"op"},
	)

	// ---- Process / run info ----
	runInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "run_info",
			Help:      "Run info (constant 1, labeled by run_id and hostname).",
		},
		[]string{"run_id", "hostname"},
	)

	startTime = time.Now()
	uptime    = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "rendezvous",
			Name:      "uptime_seconds",
			Help:      "Process uptime in seconds.",
		},
		func() float64 { return time.Since(startTime).Seconds() },
	)
)

func init() {
	Registry.MustRegister(
		MessagesSent, MessagesReceived, IgnoredDatagrams, SendErrors, ReceiveErrors,
		BarrierState, CompletionSeconds, RequestsTotal, RequestDuration, runInfo, uptime,
	)
}

// MetricsHandler exposes /metrics. Mount it with mux.Handle("/metrics", telemetry.MetricsHandler()).
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// SetRunInfo should be called once per node after startup.
func SetRunInfo(runID, hostname string) {
	runInfo.WithLabelValues(runID, hostname).Set(1)
}

// Recorder feeds barrier events for one local node into the registry.
type Recorder struct {
	Node string
}

var _ barrier.Metrics = Recorder{}

func (r Recorder) MessageSent(peer string, kind barrier.Message) {
	MessagesSent.WithLabelValues(r.Node, peer, string(kind)).Inc()
}

func (r Recorder) MessageReceived(peer string, kind barrier.Message) {
	MessagesReceived.WithLabelValues(r.Node, peer, string(kind)).Inc()
}

func (r Recorder) DatagramIgnored(reason string) {
	IgnoredDatagrams.WithLabelValues(r.Node, reason).Inc()
}

func (r Recorder) TransportError(op string) {
	switch op {
	case "send":
		SendErrors.WithLabelValues(r.Node).Inc()
	default:
		ReceiveErrors.WithLabelValues(r.Node).Inc()
	}
}

func (r Recorder) StateChanged(state barrier.State, elapsed time.Duration) {
	BarrierState.WithLabelValues(r.Node).Set(float64(state))
	if state == barrier.StateComplete {
		CompletionSeconds.WithLabelValues(r.Node).Set(elapsed.Seconds())
	}
}

// ---- Middleware instrumentation ----

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Instrument wraps an http.Handler to record metrics under the provided "op" label.
func Instrument(op string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()

		next.ServeHTTP(sw, r)

		class := strconv.Itoa(sw.status/100) + "xx"
		RequestsTotal.WithLabelValues(op, class).Inc()
		RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	})
}

// Server serves /metrics and, when given, a /status handler.
type Server struct {
	srv *http.Server
	lis net.Listener
}

// Listen binds addr synchronously so the caller sees bind errors; Serve
// starts accepting.
func Listen(addr string, status http.Handler) (*Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler())
	if status != nil {
		mux.Handle("/status", Instrument("status", status))
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	return &Server{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		lis: lis,
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Serve blocks until Shutdown. A clean shutdown returns nil.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

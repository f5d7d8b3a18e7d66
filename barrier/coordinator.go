package barrier

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"time"
)

/*
Coordinator

The control loop for one barrier run. Every iteration:

	1. RUNNING and TotalTimeout elapsed   -> TIMED_OUT, stop
	2. RUNNING                            -> HEARTBEAT to every due peer
	3. Poll one datagram (bounded by PollTimeout)
	     unknown sender                   -> dropped
	     HEARTBEAT                        -> mark, reply HEARTBEAT_ACK
	     HEARTBEAT_ACK                    -> mark
	     anything else                    -> dropped
	4. all peers live and still RUNNING   -> COMPLETE, signal ready once

Poll never blocks longer than PollTimeout, so the timeout check and the send
schedule both run at least once per PollTimeout even on a silent network.

After COMPLETE the loop keeps answering heartbeats from peers that are still
behind, until TotalTimeout or cancellation, unless ExitOnReady is set.
*/

const (
	DefaultTotalTimeout = 120 * time.Second
	DefaultPollTimeout  = 1 * time.Second
)

// Datagram is one inbound UDP payload and its source address.
type Datagram struct {
	Payload []byte
	From    netip.AddrPort
}

// Transport is the socket the coordinator drives.
type Transport interface {
	Send(addr netip.AddrPort, payload []byte) error
	// Poll waits up to timeout for one datagram. ok is false when the
	// deadline passed with nothing received.
	Poll(timeout time.Duration) (dg Datagram, ok bool, err error)
}

// Clock abstracts time for the loop's timeout and schedule decisions.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Logger is the subset of *zap.SugaredLogger the loop writes to.
type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}

// Metrics receives protocol events for instrumentation.
type Metrics interface {
	MessageSent(peer string, kind Message)
	MessageReceived(peer string, kind Message)
	DatagramIgnored(reason string)
	TransportError(op string)
	StateChanged(state State, elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) MessageSent(string, Message)       {}
func (nopMetrics) MessageReceived(string, Message)   {}
func (nopMetrics) DatagramIgnored(string)            {}
func (nopMetrics) TransportError(string)             {}
func (nopMetrics) StateChanged(State, time.Duration) {}

// Options tune a Coordinator. Zero values fall back to the defaults.
type Options struct {
	TotalTimeout time.Duration
	SendInterval time.Duration
	PollTimeout  time.Duration

	// ExitOnReady makes Run return as soon as the barrier completes instead
	// of servicing late peers until TotalTimeout.
	ExitOnReady bool
	// AckEveryHeartbeat replies to every inbound HEARTBEAT. By default only
	// the first heartbeat from a peer is acknowledged.
	AckEveryHeartbeat bool

	Clock   Clock
	Logger  Logger
	Metrics Metrics

	// OnStateChange is called from the loop goroutine on each transition.
	OnStateChange func(State)
}

// Status is a point-in-time view of a run for observers.
type Status struct {
	State   State
	Elapsed time.Duration
	Peers   []PeerStatus
}

// Coordinator runs one barrier over a fixed Directory.
type Coordinator struct {
	dir       *Directory
	scheduler *Scheduler
	transport Transport
	opts      Options

	mu       sync.RWMutex
	state    State
	started  time.Time
	finished time.Time // when state became terminal

	ready     chan struct{}
	readyOnce sync.Once
}

// NewCoordinator wires a coordinator. Nothing is sent until Run.
func NewCoordinator(dir *Directory, transport Transport, opts Options) *Coordinator {
	if opts.TotalTimeout <= 0 {
		opts.TotalTimeout = DefaultTotalTimeout
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = DefaultPollTimeout
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	return &Coordinator{
		dir:       dir,
		scheduler: NewScheduler(opts.SendInterval),
		transport: transport,
		opts:      opts,
		state:     StateRunning,
		ready:     make(chan struct{}),
	}
}

// Directory returns the peer table the coordinator mutates.
func (c *Coordinator) Directory() *Directory {
	return c.dir
}

// Ready is closed exactly once, when the barrier completes.
func (c *Coordinator) Ready() <-chan struct{} {
	return c.ready
}

// State returns the current run state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status returns a snapshot safe to read from any goroutine. Elapsed stops
// growing once the run is terminal.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	state, started, finished := c.state, c.started, c.finished
	c.mu.RUnlock()

	var elapsed time.Duration
	switch {
	case started.IsZero():
	case state.Terminal():
		elapsed = finished.Sub(started)
	default:
		elapsed = c.opts.Clock.Now().Sub(started)
	}
	return Status{
		State:   state,
		Elapsed: elapsed,
		Peers:   c.dir.Snapshot(),
	}
}

// Run drives the barrier until it reaches a terminal outcome and returns it.
// Cancelling ctx before completion ends the run as TIMED_OUT; cancelling it
// while lingering after completion returns COMPLETE.
func (c *Coordinator) Run(ctx context.Context) State {
	start := c.opts.Clock.Now()
	c.mu.Lock()
	c.started = start
	c.mu.Unlock()

	self := c.dir.Self()
	c.opts.Logger.Infof("I am %s", self.Hostname)
	c.opts.Logger.Debugf("Expecting messages from: %s", strings.Join(c.peerNames(), ", "))

	c.evaluate(start)

	for {
		if c.State() == StateComplete && c.opts.ExitOnReady {
			return StateComplete
		}

		if ctx.Err() != nil {
			return c.stop(c.opts.Clock.Now(), "Interrupted before barrier completion. Please run the program again.")
		}

		now := c.opts.Clock.Now()
		if now.Sub(start) >= c.opts.TotalTimeout {
			return c.stop(now, "Total timeout reached. Exiting. Please run the program again.")
		}

		if c.State() == StateRunning {
			c.sendDue(now)
		}

		dg, ok, err := c.transport.Poll(c.opts.PollTimeout)
		if err != nil {
			c.opts.Logger.Errorf("Error receiving datagram: %v", err)
			c.opts.Metrics.TransportError("receive")
		} else if ok {
			c.dispatch(dg)
		}

		c.evaluate(c.opts.Clock.Now())
	}
}

// sendDue sends a HEARTBEAT to every peer the scheduler says is due.
func (c *Coordinator) sendDue(now time.Time) {
	for _, p := range c.scheduler.Due(c.dir, now) {
		c.send(p, Heartbeat)
		c.dir.RecordSend(p, now)
	}
}

// dispatch applies one inbound datagram to the peer table.
func (c *Coordinator) dispatch(dg Datagram) {
	p, ok := c.dir.LookupBySender(dg.From)
	if !ok {
		c.opts.Logger.Debugf("Ignoring datagram from unknown sender %s", dg.From)
		c.opts.Metrics.DatagramIgnored(IgnoreUnknownSender)
		return
	}

	switch Message(dg.Payload) {
	case Heartbeat:
		c.opts.Metrics.MessageReceived(p.Hostname, Heartbeat)
		first := c.dir.MarkHeartbeatReceived(p)
		if first {
			c.opts.Logger.Debugf("Received heartbeat from %s", p.Hostname)
		}
		// The ack answers this datagram directly; it is not paced by the scheduler.
		if first || c.opts.AckEveryHeartbeat {
			c.send(p, HeartbeatAck)
		}
	case HeartbeatAck:
		c.opts.Metrics.MessageReceived(p.Hostname, HeartbeatAck)
		if c.dir.MarkAckReceived(p) {
			c.opts.Logger.Debugf("Received ACK from %s", p.Hostname)
		}
	default:
		c.opts.Logger.Debugf("Ignoring unknown payload %q from %s", dg.Payload, p.Hostname)
		c.opts.Metrics.DatagramIgnored(IgnoreUnknownPayload)
	}
}

func (c *Coordinator) send(p *Peer, msg Message) {
	if err := c.transport.Send(p.Addr, []byte(msg)); err != nil {
		c.opts.Logger.Errorf("Error sending %s to %s (%s): %v", msg, p.Hostname, p.Addr, err)
		c.opts.Metrics.TransportError("send")
		return
	}
	c.opts.Logger.Debugf("Sent message: %s to %s (%s)", msg, p.Hostname, p.Addr)
	c.opts.Metrics.MessageSent(p.Hostname, msg)
}

// evaluate moves RUNNING to COMPLETE once every peer is live.
func (c *Coordinator) evaluate(now time.Time) {
	if c.State() != StateRunning || !c.dir.IsBarrierComplete() {
		return
	}
	c.transition(StateComplete, now)
	c.opts.Logger.Infof("READY")
	c.readyOnce.Do(func() { close(c.ready) })
}

// stop ends the run. A run that already completed stays COMPLETE.
func (c *Coordinator) stop(now time.Time, reason string) State {
	if c.State() == StateComplete {
		c.opts.Logger.Infof("Barrier complete, leaving after %v", now.Sub(c.started).Round(time.Millisecond))
		return StateComplete
	}
	c.transition(StateTimedOut, now)
	c.opts.Logger.Errorf("%s", reason)
	return StateTimedOut
}

func (c *Coordinator) transition(to State, now time.Time) {
	c.mu.Lock()
	c.state = to
	if to.Terminal() {
		c.finished = now
	}
	elapsed := now.Sub(c.started)
	c.mu.Unlock()

	c.opts.Metrics.StateChanged(to, elapsed)
	if c.opts.OnStateChange != nil {
		c.opts.OnStateChange(to)
	}
}

func (c *Coordinator) peerNames() []string {
	peers := c.dir.Peers()
	names := make([]string, len(peers))
	for i, p := range peers {
		names[i] = p.Hostname
	}
	return names
}

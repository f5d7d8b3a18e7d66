package barrier

import (
	"errors"
	"net/netip"
	"sync"
	"time"
)

var (
	addrA = netip.MustParseAddrPort("10.0.0.1:8888")
	addrB = netip.MustParseAddrPort("10.0.0.2:8888")
	addrC = netip.MustParseAddrPort("10.0.0.3:8888")
)

func threeHosts() []Entry {
	return []Entry{
		{Hostname: "a", Addr: addrA},
		{Hostname: "b", Addr: addrB},
		{Hostname: "c", Addr: addrC},
	}
}

// fakeClock only moves when the fake transport polls.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// remote describes how a scripted peer reacts to what we send it.
type remote struct {
	// answers HEARTBEAT with HEARTBEAT_ACK
	acks bool
	// sends its own HEARTBEAT after hearing from us
	beats bool
	// sends every HEARTBEAT this many times
	duplicates int

	beatsSent int
}

type sent struct {
	to      netip.AddrPort
	payload string
	at      time.Time
}

// fakeTransport delivers scripted replies in FIFO order. An empty queue makes
// Poll consume the whole timeout on the fake clock.
type fakeTransport struct {
	clock   *fakeClock
	remotes map[netip.AddrPort]*remote
	inbox   []Datagram
	sent    []sent

	// sendErrs fails the next n sends
	sendErrs int
}

func newFakeTransport(clock *fakeClock) *fakeTransport {
	return &fakeTransport{
		clock:   clock,
		remotes: make(map[netip.AddrPort]*remote),
	}
}

func (f *fakeTransport) Send(addr netip.AddrPort, payload []byte) error {
	if f.sendErrs > 0 {
		f.sendErrs--
		return errors.New("network is unreachable")
	}
	f.sent = append(f.sent, sent{to: addr, payload: string(payload), at: f.clock.Now()})

	r, ok := f.remotes[addr]
	if !ok || Message(payload) != Heartbeat {
		return nil
	}
	if r.acks {
		f.inbox = append(f.inbox, Datagram{Payload: []byte(HeartbeatAck), From: addr})
	}
	if r.beats && r.beatsSent == 0 {
		n := r.duplicates
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			f.inbox = append(f.inbox, Datagram{Payload: []byte(Heartbeat), From: addr})
		}
		r.beatsSent++
	}
	return nil
}

func (f *fakeTransport) Poll(timeout time.Duration) (Datagram, bool, error) {
	if len(f.inbox) == 0 {
		f.clock.Advance(timeout)
		return Datagram{}, false, nil
	}
	dg := f.inbox[0]
	f.inbox = f.inbox[1:]
	f.clock.Advance(10 * time.Millisecond)
	return dg, true, nil
}

func (f *fakeTransport) deliver(from netip.AddrPort, payload string) {
	f.inbox = append(f.inbox, Datagram{Payload: []byte(payload), From: from})
}

func (f *fakeTransport) count(to netip.AddrPort, msg Message) int {
	n := 0
	for _, s := range f.sent {
		if s.to == to && s.payload == string(msg) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) sendTimes(to netip.AddrPort, msg Message) []time.Time {
	var out []time.Time
	for _, s := range f.sent {
		if s.to == to && s.payload == string(msg) {
			out = append(out, s.at)
		}
	}
	return out
}

// recordingMetrics counts events by name for assertions.
type recordingMetrics struct {
	ignored   map[string]int
	errors    map[string]int
	states    []State
	sentKinds map[Message]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ignored:   make(map[string]int),
		errors:    make(map[string]int),
		sentKinds: make(map[Message]int),
	}
}

func (m *recordingMetrics) MessageSent(_ string, kind Message)    { m.sentKinds[kind]++ }
func (m *recordingMetrics) MessageReceived(string, Message)       {}
func (m *recordingMetrics) DatagramIgnored(reason string)         { m.ignored[reason]++ }
func (m *recordingMetrics) TransportError(op string)              { m.errors[op]++ }
func (m *recordingMetrics) StateChanged(s State, _ time.Duration) { m.states = append(m.states, s) }

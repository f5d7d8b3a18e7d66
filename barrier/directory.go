package barrier

import (
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"
)

var (
	ErrNoPeers      = errors.New("peer set is empty")
	ErrSelfNotFound = errors.New("local host not found in peer set")
	ErrEmptyHost    = errors.New("peer hostname is empty")
)

// Directory is the ordered peer table for one run.
//
// The coordinator loop is the only writer. The RWMutex lets observers on other
// goroutines (status server, TUI) take snapshots while the loop runs.
type Directory struct {
	mu    sync.RWMutex
	peers []*Peer
	self  int
}

// NewDirectory builds the peer table from entries in configuration order.
// Repeated hostnames keep their first occurrence. selfHostname must match
// one of the entries.
func NewDirectory(entries []Entry, selfHostname string) (*Directory, error) {
	if len(entries) == 0 {
		return nil, ErrNoPeers
	}

	d := &Directory{
		peers: make([]*Peer, 0, len(entries)),
		self:  -1,
	}
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Hostname == "" {
			return nil, ErrEmptyHost
		}
		if seen[e.Hostname] {
			continue
		}
		seen[e.Hostname] = true

		p := &Peer{
			Hostname: e.Hostname,
			Addr:     normalize(e.Addr),
		}
		if e.Hostname == selfHostname {
			p.self = true
			d.self = len(d.peers)
		}
		d.peers = append(d.peers, p)
	}

	if d.self < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSelfNotFound, selfHostname)
	}
	return d, nil
}

// Self returns the entry for the running process.
func (d *Directory) Self() *Peer {
	return d.peers[d.self]
}

// Peers returns the non-self peers in configuration order.
func (d *Directory) Peers() []*Peer {
	out := make([]*Peer, 0, len(d.peers)-1)
	for i, p := range d.peers {
		if i != d.self {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the size of the whole peer set, self included.
func (d *Directory) Len() int {
	return len(d.peers)
}

// LookupBySender maps a datagram's source address to a non-self peer.
// IPv4-mapped IPv6 addresses compare equal to their IPv4 form.
func (d *Directory) LookupBySender(addr netip.AddrPort) (*Peer, bool) {
	addr = normalize(addr)
	for i, p := range d.peers {
		if i == d.self {
			continue
		}
		if p.Addr == addr {
			return p, true
		}
	}
	return nil, false
}

// MarkHeartbeatReceived sets the heartbeat flag and reports whether this was
// the first heartbeat seen from p.
func (d *Directory) MarkHeartbeatReceived(p *Peer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.HeartbeatReceived {
		return false
	}
	p.HeartbeatReceived = true
	return true
}

// MarkAckReceived sets the ack flag and reports whether this was the first
// ack seen from p.
func (d *Directory) MarkAckReceived(p *Peer) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.AckReceived {
		return false
	}
	p.AckReceived = true
	return true
}

// RecordSend stores the time of a scheduled heartbeat to p.
func (d *Directory) RecordSend(p *Peer, now time.Time) {
	d.mu.Lock()
	p.LastSent = now
	d.mu.Unlock()
}

// IsBarrierComplete is true when every non-self peer has both flags set.
// A peer set holding only self is trivially complete.
func (d *Directory) IsBarrierComplete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for i, p := range d.peers {
		if i == d.self {
			continue
		}
		if !p.Live() {
			return false
		}
	}
	return true
}

// Snapshot copies the whole table, self included, in configuration order.
func (d *Directory) Snapshot() []PeerStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PeerStatus, len(d.peers))
	for i, p := range d.peers {
		out[i] = p.status()
	}
	return out
}

func normalize(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
}

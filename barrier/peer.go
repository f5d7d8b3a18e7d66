package barrier

import (
	"net/netip"
	"time"
)

// Peer is one configured participant in the barrier.
// Hostname and Addr are fixed at startup; the liveness flags only ever go
// from false to true.
type Peer struct {
	Hostname string
	Addr     netip.AddrPort

	HeartbeatReceived bool
	AckReceived       bool

	// LastSent is the time of the last scheduled HEARTBEAT, zero if none yet.
	LastSent time.Time

	self bool
}

// IsSelf reports whether this entry is the running process.
func (p *Peer) IsSelf() bool {
	return p.self
}

// Live reports whether the peer has proven liveness in both directions.
func (p *Peer) Live() bool {
	return p.HeartbeatReceived && p.AckReceived
}

// PeerStatus is a copy of a Peer safe to hand to other goroutines.
type PeerStatus struct {
	Hostname          string    `json:"hostname"`
	Addr              string    `json:"addr"`
	Self              bool      `json:"self"`
	HeartbeatReceived bool      `json:"heartbeat_received"`
	AckReceived       bool      `json:"ack_received"`
	LastSent          time.Time `json:"last_sent"`
}

func (p *Peer) status() PeerStatus {
	return PeerStatus{
		Hostname:          p.Hostname,
		Addr:              p.Addr.String(),
		Self:              p.self,
		HeartbeatReceived: p.HeartbeatReceived,
		AckReceived:       p.AckReceived,
		LastSent:          p.LastSent,
	}
}

// Entry pairs a configured hostname with its resolved address.
type Entry struct {
	Hostname string
	Addr     netip.AddrPort
}

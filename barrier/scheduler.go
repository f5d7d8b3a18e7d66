package barrier

import "time"

// DefaultSendInterval is the retransmission period for unacknowledged peers.
const DefaultSendInterval = 2 * time.Second

// Scheduler decides, tick by tick, which peers are owed a HEARTBEAT.
// Each peer is judged on its own so one silent peer never delays the others.
type Scheduler struct {
	interval time.Duration
}

func NewScheduler(interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSendInterval
	}
	return &Scheduler{interval: interval}
}

// Interval returns the retransmission period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// DueForSend is true while p has not acked us and either nothing has been
// sent to p yet or at least one interval has passed since the last send.
func (s *Scheduler) DueForSend(p *Peer, now time.Time) bool {
	if p.self || p.AckReceived {
		return false
	}
	if p.LastSent.IsZero() {
		return true
	}
	return now.Sub(p.LastSent) >= s.interval
}

// Due returns the peers of d that should be sent a heartbeat at now.
func (s *Scheduler) Due(d *Directory, now time.Time) []*Peer {
	var due []*Peer
	for _, p := range d.Peers() {
		if s.DueForSend(p, now) {
			due = append(due, p)
		}
	}
	return due
}

package barrier

/*
Message:

	The wire carries exactly two payloads, as plain ASCII with no framing:
		HEARTBEAT      "I am alive and I am proving it to you."
		HEARTBEAT_ACK  "I received your heartbeat."
	Anything else arriving on the socket is ignored.

State:

	One state per run, not per peer.
		RUNNING   -> COMPLETE   every non-self peer has heartbeat + ack
		RUNNING   -> TIMED_OUT  total timeout elapsed (or the run was interrupted)
	COMPLETE and TIMED_OUT are terminal.
*/

type Message string

const (
	Heartbeat    Message = "HEARTBEAT"
	HeartbeatAck Message = "HEARTBEAT_ACK"
)

type State int

const (
	StateRunning State = iota
	StateComplete
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateComplete:
		return "COMPLETE"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions can happen from s.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateTimedOut
}

// Ignore reasons reported to Metrics.DatagramIgnored
const (
	IgnoreUnknownSender  = "unknown_sender"
	IgnoreUnknownPayload = "unknown_payload"
)

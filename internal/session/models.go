package session

import "time"

// Session is a read-only snapshot of a call session. Once State reaches
// ended the snapshot is final and is retained for history.
type Session struct {
	CallID   string `json:"call_id"`
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`

	State State `json:"state"`

	CreatedAt   time.Time  `json:"created_at"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	EndReason       string `json:"end_reason,omitempty"`
	DurationSeconds int    `json:"duration,omitempty"`
}

// State transitions are monotonic:
// initiating -> ringing -> connecting -> connected -> ended,
// or any state -> ended directly. No backward transition exists.
type State string

const (
	StateInitiating State = "initiating"
	StateRinging    State = "ringing"
	StateConnecting State = "connecting"
	StateConnected  State = "connected"
	StateEnded      State = "ended"
)

// Terminal end reasons surfaced to users.
const (
	EndReasonNoAnswer    = "no answer"
	EndReasonRejected    = "rejected"
	EndReasonPeerTimeout = "peer timeout"
	EndReasonHangup      = "hangup"
)

// RejectReason explains a synchronous initiate refusal. No session exists
// for a rejected attempt.
type RejectReason string

const (
	RejectBusy          RejectReason = "busy"
	RejectOffline       RejectReason = "offline"
	RejectAlreadyInCall RejectReason = "already_in_call"
)

// RejectError is returned by Initiate; callers surface Reason verbatim.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return "session: call rejected: " + string(e.Reason)
}

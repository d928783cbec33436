package events

import "time"

// Envelope is the wire shape for call lifecycle events consumed by the
// surrounding application (chat UI, admin views).
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	// Unique event ID
	ID string `json:"id"`
	// Event name and version, e.g. call.ended.v1
	Type string `json:"type"`
	// Emitting service
	Producer string `json:"producer,omitempty"`
	// Timestamp when the event was emitted
	Time time.Time `json:"time"`
}

const (
	TypeCallEnded  = "call.ended.v1"
	TypeCallMissed = "call.missed.v1"
)

// CallEnded is published for every session that reaches the terminal state.
type CallEnded struct {
	CallID          string     `json:"call_id"`
	CallerID        string     `json:"caller_id"`
	CalleeID        string     `json:"callee_id"`
	EndReason       string     `json:"end_reason"`
	DurationSeconds int        `json:"duration_seconds"`
	ConnectedAt     *time.Time `json:"connected_at,omitempty"`
	EndedAt         time.Time  `json:"ended_at"`
}

// CallMissed is published alongside a missed-call ledger entry.
type CallMissed struct {
	CallerID string    `json:"caller_id"`
	CalleeID string    `json:"callee_id"`
	Reason   string    `json:"reason"`
	CallTime time.Time `json:"call_time"`
}

package missed

import "time"

// Record is an uncompleted call attempt kept for later review.
//
// Invariants:
// - Records are never deleted by this subsystem.
// - The only mutation ever applied is the seen acknowledgment.
type Record struct {
	ID       string `json:"id"`
	CallerID string `json:"caller_id"`
	CalleeID string `json:"callee_id"`

	// CallerName is resolved from the external user directory when one is
	// wired; it falls back to the caller id.
	CallerName string `json:"caller_username"`

	CallTime time.Time `json:"call_time"`
	Reason   Reason    `json:"reason"`
	Seen     bool      `json:"seen"`
}

type Reason string

const (
	ReasonBusy     Reason = "busy"
	ReasonOffline  Reason = "offline"
	ReasonNoAnswer Reason = "no_answer"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonBusy, ReasonOffline, ReasonNoAnswer:
		return true
	default:
		return false
	}
}

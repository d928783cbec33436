package presence

import "time"

// Record is a user's availability as derived from heartbeats and call state.
//
// Invariants:
// - Status is in_call if and only if the call session manager has a
//   non-ended session referencing the user; only the manager moves a
//   record in or out of in_call.
// - LastHeartbeat is advanced by heartbeat ingestion and status writes.
type Record struct {
	UserID          string    `json:"user_id"`
	Status          Status    `json:"status"`
	LastHeartbeat   time.Time `json:"last_heartbeat"`
	CurrentCallWith string    `json:"current_call_with,omitempty"`
}

type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusInCall  Status = "in_call"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOffline, StatusOnline, StatusInCall:
		return true
	default:
		return false
	}
}

package presence

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidStatus = errors.New("presence: invalid status")
	// ErrConflict is returned when a status write would contradict a live
	// call session (going online/offline while still an endpoint of one).
	ErrConflict = errors.New("presence: user has an active call")
)

// Store is the persistence contract for presence records.
//
// Implementations must make Heartbeat atomic: it may promote offline to
// online but must never override in_call.
type Store interface {
	// Heartbeat upserts last_heartbeat=now; a missing or offline record
	// becomes online.
	Heartbeat(ctx context.Context, userID string, now time.Time) error

	// Get returns the record for userID. Unknown users read as offline.
	Get(ctx context.Context, userID string) (Record, error)

	// UpdateStatus upserts status, current_call_with and last_heartbeat.
	UpdateStatus(ctx context.Context, userID string, status Status, currentCallWith string, now time.Time) error

	// Snapshot returns all known records, for the staleness sweep.
	Snapshot(ctx context.Context) ([]Record, error)
}

// ActiveCalls is the session manager's answer to "is this user an endpoint
// of a non-ended call right now".
type ActiveCalls interface {
	HasActiveCall(userID string) bool
}

// Service guards status writes with the call-session invariant and stamps
// times from an injectable clock.
type Service struct {
	store Store
	calls ActiveCalls
	clock func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, clock: time.Now}
}

// BindActiveCalls wires the session manager in after construction; the
// manager itself depends on this service, so the link is set post-hoc.
func (s *Service) BindActiveCalls(calls ActiveCalls) {
	s.calls = calls
}

func (s *Service) Heartbeat(ctx context.Context, userID string) error {
	if userID == "" {
		return errors.New("presence: user_id required")
	}
	return s.store.Heartbeat(ctx, userID, s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, userID string) (Record, error) {
	if userID == "" {
		return Record{}, errors.New("presence: user_id required")
	}
	return s.store.Get(ctx, userID)
}

// SetStatus is the user-initiated status write. Moving to online or
// offline is refused while a non-ended call still references the user;
// ending the call is the only way out of in_call.
func (s *Service) SetStatus(ctx context.Context, userID string, status Status, currentCallWith string) error {
	if userID == "" {
		return errors.New("presence: user_id required")
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if status != StatusInCall && s.calls != nil && s.calls.HasActiveCall(userID) {
		return ErrConflict
	}
	return s.store.UpdateStatus(ctx, userID, status, currentCallWith, s.clock().UTC())
}

// Transition is the call-session-manager write path. It skips the
// active-call conflict check: the manager is the component that creates
// and releases that very state.
func (s *Service) Transition(ctx context.Context, userID string, status Status, currentCallWith string) error {
	if userID == "" {
		return errors.New("presence: user_id required")
	}
	if !status.Valid() {
		return ErrInvalidStatus
	}
	return s.store.UpdateStatus(ctx, userID, status, currentCallWith, s.clock().UTC())
}

func (s *Service) Snapshot(ctx context.Context) ([]Record, error) {
	return s.store.Snapshot(ctx)
}

// Now exposes the service clock so the sweeper measures staleness against
// the same time source the records were stamped with.
func (s *Service) Now() time.Time { return s.clock().UTC() }

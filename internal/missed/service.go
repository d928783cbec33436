package missed

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the missed-call ledger.
//
// It MUST be append-plus-acknowledge only: no update beyond the seen flag,
// no delete. Administrative cleanup, if any, happens outside this service.
type Repository interface {
	Append(ctx context.Context, rec Record) error
	ListFor(ctx context.Context, calleeID string, includeSeen bool) ([]Record, error)
	MarkSeen(ctx context.Context, id, calleeID string) error
}

var (
	ErrInvalidRecord = errors.New("missed: invalid record")
	ErrNotFound      = errors.New("missed: record not found")
)

// NameResolver maps a user id to a display name. The user directory is an
// external collaborator; by default the id itself is shown.
type NameResolver func(userID string) string

type Service struct {
	repo  Repository
	names NameResolver
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

func (s *Service) SetNameResolver(r NameResolver) { s.names = r }

// Record appends a missed-call entry and returns its id.
func (s *Service) Record(ctx context.Context, callerID, calleeID string, reason Reason) (string, error) {
	if s.repo == nil {
		return "", errors.New("missed: repository not configured")
	}
	if callerID == "" || calleeID == "" {
		return "", ErrInvalidRecord
	}
	if !reason.Valid() {
		return "", ErrInvalidRecord
	}

	rec := Record{
		ID:       uuid.NewString(),
		CallerID: callerID,
		CalleeID: calleeID,
		CallTime: s.clock().UTC(),
		Reason:   reason,
	}
	if err := s.repo.Append(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// ListFor returns the callee's missed calls, newest first. Seen entries are
// filtered out unless includeSeen is set.
func (s *Service) ListFor(ctx context.Context, calleeID string, includeSeen bool) ([]Record, error) {
	if calleeID == "" {
		return nil, ErrInvalidRecord
	}
	recs, err := s.repo.ListFor(ctx, calleeID, includeSeen)
	if err != nil {
		return nil, err
	}
	for i := range recs {
		recs[i].CallerName = s.resolveName(recs[i].CallerID)
	}
	return recs, nil
}

// MarkSeen acknowledges a record. Only the callee the record belongs to
// may acknowledge it; anyone else's attempt reads as not-found so record
// ids leak nothing.
func (s *Service) MarkSeen(ctx context.Context, id, calleeID string) error {
	if id == "" || calleeID == "" {
		return ErrInvalidRecord
	}
	return s.repo.MarkSeen(ctx, id, calleeID)
}

func (s *Service) resolveName(userID string) string {
	if s.names != nil {
		if name := s.names(userID); name != "" {
			return name
		}
	}
	return userID
}

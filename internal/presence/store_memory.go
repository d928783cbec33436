package presence

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default single-process presence backend.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]Record{}}
}

func (m *MemoryStore) Heartbeat(ctx context.Context, userID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[userID]
	if !ok {
		rec = Record{UserID: userID, Status: StatusOffline}
	}
	if rec.Status == StatusOffline {
		rec.Status = StatusOnline
	}
	rec.LastHeartbeat = now
	m.records[userID] = rec
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, userID string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[userID]; ok {
		return rec, nil
	}
	return Record{UserID: userID, Status: StatusOffline}, nil
}

func (m *MemoryStore) UpdateStatus(ctx context.Context, userID string, status Status, currentCallWith string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[userID] = Record{
		UserID:          userID,
		Status:          status,
		LastHeartbeat:   now,
		CurrentCallWith: currentCallWith,
	}
	return nil
}

func (m *MemoryStore) Snapshot(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	return out, nil
}

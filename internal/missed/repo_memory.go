package missed

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is the default single-process ledger backend; it also serves
// the tests.
type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryRepo) ListFor(ctx context.Context, calleeID string, includeSeen bool) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.CalleeID != calleeID {
			continue
		}
		if rec.Seen && !includeSeen {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CallTime.After(out[j].CallTime)
	})
	return out, nil
}

func (r *MemoryRepo) MarkSeen(ctx context.Context, id, calleeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == id && r.records[i].CalleeID == calleeID {
			r.records[i].Seen = true
			return nil
		}
	}
	return ErrNotFound
}

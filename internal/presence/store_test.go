package presence

import (
	"context"
	"testing"
	"time"
)

type stubCalls struct {
	active map[string]string
}

func (s *stubCalls) HasActiveCall(userID string) bool {
	_, ok := s.active[userID]
	return ok
}

func TestHeartbeat_PromotesOfflineToOnline(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := svc.Heartbeat(ctx, "5"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	rec, err := svc.Get(ctx, "5")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusOnline {
		t.Fatalf("expected online, got %q", rec.Status)
	}
	if rec.LastHeartbeat.IsZero() {
		t.Fatalf("expected last_heartbeat stamped")
	}
}

func TestHeartbeat_NeverOverridesInCall(t *testing.T) {
	svc := NewService(NewMemoryStore())
	ctx := context.Background()

	if err := svc.Transition(ctx, "5", StatusInCall, "1"); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := svc.Heartbeat(ctx, "5"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	rec, _ := svc.Get(ctx, "5")
	if rec.Status != StatusInCall {
		t.Fatalf("expected in_call preserved, got %q", rec.Status)
	}
	if rec.CurrentCallWith != "1" {
		t.Fatalf("expected call partner preserved, got %q", rec.CurrentCallWith)
	}
}

func TestGet_UnknownUserReadsOffline(t *testing.T) {
	svc := NewService(NewMemoryStore())
	rec, err := svc.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != StatusOffline {
		t.Fatalf("expected offline, got %q", rec.Status)
	}
}

func TestSetStatus_RefusedWhileCallActive(t *testing.T) {
	svc := NewService(NewMemoryStore())
	svc.BindActiveCalls(&stubCalls{active: map[string]string{"5": "c1"}})
	ctx := context.Background()

	if err := svc.SetStatus(ctx, "5", StatusOnline, ""); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := svc.SetStatus(ctx, "5", StatusOffline, ""); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// in_call writes stay allowed: the manager path uses them.
	if err := svc.SetStatus(ctx, "5", StatusInCall, "1"); err != nil {
		t.Fatalf("expected in_call allowed, got %v", err)
	}
}

func TestSetStatus_RejectsUnknownStatus(t *testing.T) {
	svc := NewService(NewMemoryStore())
	if err := svc.SetStatus(context.Background(), "5", Status("busy-ish"), ""); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestService_ClockStampsRecords(t *testing.T) {
	svc := NewService(NewMemoryStore())
	fixed := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return fixed }

	ctx := context.Background()
	if err := svc.Heartbeat(ctx, "5"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	rec, _ := svc.Get(ctx, "5")
	if !rec.LastHeartbeat.Equal(fixed) {
		t.Fatalf("expected %v, got %v", fixed, rec.LastHeartbeat)
	}
}

package presence

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

type stubEnder struct {
	active  map[string]string
	hungUp  []string
	release func(callID string)
}

func (s *stubEnder) ActiveCallID(userID string) (string, bool) {
	id, ok := s.active[userID]
	return id, ok
}

func (s *stubEnder) HangupPeerTimeout(ctx context.Context, callID string) error {
	s.hungUp = append(s.hungUp, callID)
	if s.release != nil {
		s.release(callID)
	}
	return nil
}

func TestSweep_IdleStaleUserGoesOffline(t *testing.T) {
	svc := NewService(NewMemoryStore())
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	ctx := context.Background()
	if err := svc.Heartbeat(ctx, "5"); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}

	ender := &stubEnder{active: map[string]string{}}
	sw := NewSweeper(svc, ender, 10*time.Second, 30*time.Second, slog.Default())

	// 35s of silence: past the 30s timeout.
	now = now.Add(35 * time.Second)
	sw.SweepOnce(ctx)

	rec, _ := svc.Get(ctx, "5")
	if rec.Status != StatusOffline {
		t.Fatalf("expected offline after sweep, got %q", rec.Status)
	}
	if len(ender.hungUp) != 0 {
		t.Fatalf("expected no hangups for idle user")
	}
}

func TestSweep_FreshUserUntouched(t *testing.T) {
	svc := NewService(NewMemoryStore())
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	ctx := context.Background()
	_ = svc.Heartbeat(ctx, "5")

	sw := NewSweeper(svc, &stubEnder{active: map[string]string{}}, 10*time.Second, 30*time.Second, slog.Default())

	now = now.Add(15 * time.Second)
	sw.SweepOnce(ctx)

	rec, _ := svc.Get(ctx, "5")
	if rec.Status != StatusOnline {
		t.Fatalf("expected online, got %q", rec.Status)
	}
}

func TestSweep_ActiveCallEndsWithPeerTimeoutBeforeOffline(t *testing.T) {
	svc := NewService(NewMemoryStore())
	now := time.Unix(1700000000, 0).UTC()
	svc.clock = func() time.Time { return now }

	ctx := context.Background()
	_ = svc.Heartbeat(ctx, "5")
	_ = svc.Transition(ctx, "5", StatusInCall, "1")
	_ = svc.Transition(ctx, "1", StatusInCall, "5")
	_ = svc.Heartbeat(ctx, "1")

	ender := &stubEnder{active: map[string]string{"5": "c3", "1": "c3"}}
	ender.release = func(callID string) {
		// the manager releases both endpoints to online when it ends a call
		delete(ender.active, "5")
		delete(ender.active, "1")
		_ = svc.Transition(ctx, "5", StatusOnline, "")
		_ = svc.Transition(ctx, "1", StatusOnline, "")
	}

	sw := NewSweeper(svc, ender, 10*time.Second, 30*time.Second, slog.Default())

	// only user 5 goes silent; user 1 keeps heartbeating
	now = now.Add(35 * time.Second)
	_ = svc.Heartbeat(ctx, "1")
	sw.SweepOnce(ctx)

	if len(ender.hungUp) != 1 || ender.hungUp[0] != "c3" {
		t.Fatalf("expected c3 hung up once, got %v", ender.hungUp)
	}
	rec5, _ := svc.Get(ctx, "5")
	if rec5.Status != StatusOffline {
		t.Fatalf("expected silent user offline, got %q", rec5.Status)
	}
	rec1, _ := svc.Get(ctx, "1")
	if rec1.Status != StatusOnline {
		t.Fatalf("expected peer back online, got %q", rec1.Status)
	}
}

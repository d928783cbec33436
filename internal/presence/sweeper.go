package presence

import (
	"context"
	"log/slog"
	"time"
)

// CallEnder lets the sweep terminate a call whose endpoint went silent.
type CallEnder interface {
	// ActiveCallID reports the non-ended call the user is an endpoint of,
	// if any.
	ActiveCallID(userID string) (string, bool)
	// HangupPeerTimeout ends that call with reason "peer timeout".
	HangupPeerTimeout(ctx context.Context, callID string) error
}

// Sweeper periodically flips silent users offline. A user with an active
// call gets that call hung up with "peer timeout" first, so no zombie
// in_call presence survives a vanished client.
type Sweeper struct {
	svc      *Service
	calls    CallEnder
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
}

func NewSweeper(svc *Service, calls CallEnder, interval, timeout time.Duration, log *slog.Logger) *Sweeper {
	return &Sweeper{
		svc:      svc,
		calls:    calls,
		interval: interval,
		timeout:  timeout,
		log:      log,
	}
}

// Run blocks until ctx is cancelled. Callers start it in its own goroutine.
func (w *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.SweepOnce(ctx)
		}
	}
}

// SweepOnce scans all presence records and evicts the stale ones.
func (w *Sweeper) SweepOnce(ctx context.Context) {
	records, err := w.svc.Snapshot(ctx)
	if err != nil {
		w.log.Error("presence sweep: snapshot failed", "err", err)
		return
	}

	now := w.svc.Now()
	for _, rec := range records {
		if rec.Status == StatusOffline {
			continue
		}
		if rec.LastHeartbeat.IsZero() || now.Sub(rec.LastHeartbeat) <= w.timeout {
			continue
		}

		if callID, ok := w.calls.ActiveCallID(rec.UserID); ok {
			if err := w.calls.HangupPeerTimeout(ctx, callID); err != nil {
				w.log.Error("presence sweep: peer-timeout hangup failed",
					"user_id", rec.UserID, "call_id", callID, "err", err)
				continue
			}
			w.log.Info("presence sweep: call ended on peer timeout",
				"user_id", rec.UserID, "call_id", callID)
		}

		if err := w.svc.Transition(ctx, rec.UserID, StatusOffline, ""); err != nil {
			w.log.Error("presence sweep: offline transition failed", "user_id", rec.UserID, "err", err)
			continue
		}
		w.log.Info("presence sweep: user marked offline",
			"user_id", rec.UserID, "last_heartbeat", rec.LastHeartbeat)
	}
}

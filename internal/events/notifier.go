package events

import (
	"context"
	"log/slog"
	"time"

	"voice-relay/internal/missed"
	"voice-relay/internal/session"
)

// CallNotifier adapts a Publisher to the session manager's notification
// hook. Publish failures are logged and swallowed; the call lifecycle is
// the source of truth, the event stream is a byproduct.
type CallNotifier struct {
	pub Publisher
	log *slog.Logger
}

func NewCallNotifier(pub Publisher, log *slog.Logger) *CallNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &CallNotifier{pub: pub, log: log}
}

func (n *CallNotifier) CallEnded(ctx context.Context, s session.Session) {
	var endedAt time.Time
	if s.EndedAt != nil {
		endedAt = *s.EndedAt
	}
	env := Envelope{
		Meta: Meta{Type: TypeCallEnded},
		Data: CallEnded{
			CallID:          s.CallID,
			CallerID:        s.CallerID,
			CalleeID:        s.CalleeID,
			EndReason:       s.EndReason,
			DurationSeconds: s.DurationSeconds,
			ConnectedAt:     s.ConnectedAt,
			EndedAt:         endedAt,
		},
	}
	if err := n.pub.Publish(ctx, "call.ended", env); err != nil {
		n.log.Error("publish call.ended failed", "call_id", s.CallID, "err", err)
	}
}

func (n *CallNotifier) CallMissed(ctx context.Context, callerID, calleeID string, reason missed.Reason, at time.Time) {
	env := Envelope{
		Meta: Meta{Type: TypeCallMissed},
		Data: CallMissed{
			CallerID: callerID,
			CalleeID: calleeID,
			Reason:   string(reason),
			CallTime: at,
		},
	}
	if err := n.pub.Publish(ctx, "call.missed", env); err != nil {
		n.log.Error("publish call.missed failed", "caller_id", callerID, "callee_id", calleeID, "err", err)
	}
}

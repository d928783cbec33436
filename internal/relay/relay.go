package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voice-relay/internal/metrics"
)

var (
	ErrInvalidMessage = errors.New("relay: invalid message")
	ErrNotParticipant = errors.New("relay: sender is not a party to this call")
)

// Sessions is the slice of the call-session manager the relay consults:
// who the endpoints are, and the notification that the caller's offer is
// now waiting for the callee.
type Sessions interface {
	Endpoints(callID string) (callerID, calleeID string, ended bool, ok bool)
	OfferDelivered(callID string)
}

// Relay buffers signaling messages in per-recipient mailboxes until the
// recipient polls. Delivery is destructive: a poll hands over everything
// buffered so far and leaves the mailbox empty.
type Relay struct {
	mu        sync.Mutex
	mailboxes map[string][]Message
	nextSeq   map[string]uint64

	sessions Sessions
	metrics  *metrics.Metrics
	log      *slog.Logger
	clock    func() time.Time
}

func New(sessions Sessions, m *metrics.Metrics, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		mailboxes: map[string][]Message{},
		nextSeq:   map[string]uint64{},
		sessions:  sessions,
		metrics:   m,
		log:       log,
		clock:     time.Now,
	}
}

// Post buffers a message for the sender's peer on the given call. A
// message for an unknown or ended call is dropped without error so a
// hangup racing a late ICE burst stays quiet. The first offer buffered
// for the callee moves the session to ringing.
func (r *Relay) Post(ctx context.Context, callID, senderID string, kind Kind, payload json.RawMessage) error {
	if callID == "" || senderID == "" || !kind.Valid() {
		return ErrInvalidMessage
	}

	callerID, calleeID, ended, ok := r.sessions.Endpoints(callID)
	if !ok || ended {
		r.drop(callID, senderID, kind, "call_over")
		return nil
	}

	var recipient string
	switch senderID {
	case callerID:
		recipient = calleeID
	case calleeID:
		recipient = callerID
	default:
		return ErrNotParticipant
	}

	r.mu.Lock()
	r.nextSeq[recipient]++
	msg := Message{
		Seq:         r.nextSeq[recipient],
		CallID:      callID,
		SenderID:    senderID,
		RecipientID: recipient,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   r.clock().UTC(),
	}
	r.mailboxes[recipient] = append(r.mailboxes[recipient], msg)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SignalsPosted.WithLabelValues(string(kind)).Inc()
	}
	if kind == KindOffer && recipient == calleeID {
		r.sessions.OfferDelivered(callID)
	}
	return nil
}

// Poll drains the recipient's mailbox. Messages come back in posting
// order (ascending seq) and are gone from the relay afterwards.
func (r *Relay) Poll(ctx context.Context, recipientID string) ([]Message, error) {
	if recipientID == "" {
		return nil, ErrInvalidMessage
	}

	r.mu.Lock()
	msgs := r.mailboxes[recipientID]
	delete(r.mailboxes, recipientID)
	r.mu.Unlock()

	if len(msgs) > 0 && r.metrics != nil {
		r.metrics.SignalsDelivered.Add(float64(len(msgs)))
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

// Pending reports mailbox depths without draining; the admin inspection
// endpoint uses it.
func (r *Relay) Pending() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.mailboxes))
	for id, msgs := range r.mailboxes {
		out[id] = len(msgs)
	}
	return out
}

func (r *Relay) drop(callID, senderID string, kind Kind, cause string) {
	if r.metrics != nil {
		r.metrics.SignalsDropped.WithLabelValues(cause).Inc()
	}
	r.log.Debug("signal dropped",
		"call_id", callID,
		"sender_id", senderID,
		"kind", string(kind),
		"cause", cause)
}

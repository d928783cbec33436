package relay

import (
	"encoding/json"
	"time"
)

// Kind labels a signaling message. Payloads are opaque to the relay;
// SDP and ICE bodies pass through untouched.
type Kind string

const (
	KindOffer  Kind = "offer"
	KindAnswer Kind = "answer"
	KindICE    Kind = "ice"
	KindHangup Kind = "hangup"
)

func (k Kind) Valid() bool {
	switch k {
	case KindOffer, KindAnswer, KindICE, KindHangup:
		return true
	}
	return false
}

// Message is one buffered signaling payload. Seq is assigned per
// recipient and strictly increases, so a drain preserves posting order.
type Message struct {
	Seq         uint64          `json:"seq"`
	CallID      string          `json:"call_id"`
	SenderID    string          `json:"sender_id"`
	RecipientID string          `json:"-"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

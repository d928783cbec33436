package relay

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	callerID, calleeID string
	ended              bool
	known              bool
	offerDelivered     int
}

func (s *stubSessions) Endpoints(callID string) (string, string, bool, bool) {
	return s.callerID, s.calleeID, s.ended, s.known
}

func (s *stubSessions) OfferDelivered(callID string) { s.offerDelivered++ }

func TestPostAndPollRoundTrip(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	require.NoError(t, r.Post(ctx, "c1", "alice", KindOffer, json.RawMessage(`{"sdp":"v=0"}`)))
	require.NoError(t, r.Post(ctx, "c1", "alice", KindICE, json.RawMessage(`{"candidate":"a"}`)))
	require.NoError(t, r.Post(ctx, "c1", "alice", KindICE, json.RawMessage(`{"candidate":"b"}`)))

	msgs, err := r.Poll(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, KindOffer, msgs[0].Kind)
	assert.Equal(t, KindICE, msgs[1].Kind)
	assert.Equal(t, KindICE, msgs[2].Kind)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq)
	}

	// Drained mail is gone.
	msgs, err = r.Poll(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMailboxesAreIsolated(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	require.NoError(t, r.Post(ctx, "c1", "alice", KindOffer, nil))
	require.NoError(t, r.Post(ctx, "c1", "bob", KindAnswer, nil))

	toBob, err := r.Poll(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, toBob, 1)
	assert.Equal(t, "alice", toBob[0].SenderID)

	toAlice, err := r.Poll(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, toAlice, 1)
	assert.Equal(t, KindAnswer, toAlice[0].Kind)
}

func TestOfferToCalleeTriggersRinging(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	require.NoError(t, r.Post(ctx, "c1", "alice", KindOffer, nil))
	assert.Equal(t, 1, sess.offerDelivered)

	// An answer-direction offer (renegotiation) does not re-ring.
	require.NoError(t, r.Post(ctx, "c1", "bob", KindOffer, nil))
	assert.Equal(t, 1, sess.offerDelivered)
}

func TestPostDropsForEndedOrUnknownCall(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true, ended: true}
	r := New(sess, nil, nil)

	require.NoError(t, r.Post(ctx, "c1", "alice", KindICE, nil))
	msgs, err := r.Poll(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	sess.known = false
	require.NoError(t, r.Post(ctx, "c2", "alice", KindICE, nil))
	msgs, err = r.Poll(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestPostRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	err := r.Post(ctx, "c1", "mallory", KindICE, nil)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestPostValidatesInput(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	assert.ErrorIs(t, r.Post(ctx, "", "alice", KindICE, nil), ErrInvalidMessage)
	assert.ErrorIs(t, r.Post(ctx, "c1", "", KindICE, nil), ErrInvalidMessage)
	assert.ErrorIs(t, r.Post(ctx, "c1", "alice", Kind("bogus"), nil), ErrInvalidMessage)

	_, err := r.Poll(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestPendingCountsWithoutDraining(t *testing.T) {
	ctx := context.Background()
	sess := &stubSessions{callerID: "alice", calleeID: "bob", known: true}
	r := New(sess, nil, nil)

	require.NoError(t, r.Post(ctx, "c1", "alice", KindICE, nil))
	require.NoError(t, r.Post(ctx, "c1", "alice", KindICE, nil))

	assert.Equal(t, map[string]int{"bob": 2}, r.Pending())

	msgs, err := r.Poll(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

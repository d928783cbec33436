package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voice-relay/internal/metrics"
	"voice-relay/internal/missed"
	"voice-relay/internal/presence"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
)

var (
	ErrInvalidArgument = errors.New("session: invalid argument")
	ErrNotFound        = errors.New("session: unknown call id")
	ErrNotParticipant  = errors.New("session: user is not a party to this call")
	ErrNotRinging      = errors.New("session: call is not ringing")
	ErrNotConnecting   = errors.New("session: call is not connecting")
)

// Presence is the slice of the presence service the manager drives.
type Presence interface {
	Get(ctx context.Context, userID string) (presence.Record, error)
	Transition(ctx context.Context, userID string, status presence.Status, currentCallWith string) error
}

// MissedRecorder appends to the missed-call ledger.
type MissedRecorder interface {
	Record(ctx context.Context, callerID, calleeID string, reason missed.Reason) (string, error)
}

// Notifier receives call lifecycle events; best-effort, may be nil.
type Notifier interface {
	CallEnded(ctx context.Context, s Session)
	CallMissed(ctx context.Context, callerID, calleeID string, reason missed.Reason, at time.Time)
}

// callSession is the live, mutable side of a session. The fsm is the only
// authority on the state field; everything else is bookkeeping around it.
type callSession struct {
	callID   string
	callerID string
	calleeID string

	createdAt   time.Time
	connectedAt *time.Time
	endedAt     *time.Time

	endReason       string
	durationSeconds int

	machine   *fsm.FSM
	ringTimer *time.Timer
}

func newCallSession(callID, callerID, calleeID string, now time.Time) *callSession {
	return &callSession{
		callID:    callID,
		callerID:  callerID,
		calleeID:  calleeID,
		createdAt: now,
		machine: fsm.NewFSM(
			string(StateInitiating),
			fsm.Events{
				{Name: "ring", Src: []string{string(StateInitiating)}, Dst: string(StateRinging)},
				{Name: "answer", Src: []string{string(StateRinging)}, Dst: string(StateConnecting)},
				{Name: "connect", Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
				{Name: "end", Src: []string{
					string(StateInitiating),
					string(StateRinging),
					string(StateConnecting),
					string(StateConnected),
				}, Dst: string(StateEnded)},
			},
			fsm.Callbacks{},
		),
	}
}

func (cs *callSession) state() State { return State(cs.machine.Current()) }

func (cs *callSession) involves(userID string) bool {
	return userID == cs.callerID || userID == cs.calleeID
}

func (cs *callSession) stopRingTimer() {
	if cs.ringTimer != nil {
		cs.ringTimer.Stop()
		cs.ringTimer = nil
	}
}

func (cs *callSession) snapshot() Session {
	return Session{
		CallID:          cs.callID,
		CallerID:        cs.callerID,
		CalleeID:        cs.calleeID,
		State:           cs.state(),
		CreatedAt:       cs.createdAt,
		ConnectedAt:     cs.connectedAt,
		EndedAt:         cs.endedAt,
		EndReason:       cs.endReason,
		DurationSeconds: cs.durationSeconds,
	}
}

const historyLimit = 1000

// Manager owns the call lifecycle. One mutex serializes every
// check-then-act sequence, so two initiations against the same callee can
// never both commit, and a hangup racing an answer resolves by commit
// order: once a session is ended, later transitions are benign no-ops.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*callSession
	active   map[string]string // user id -> non-ended call id
	history  []Session         // ended sessions, newest last, capped

	presence    Presence
	missed      MissedRecorder
	notify      Notifier
	metrics     *metrics.Metrics
	ringTimeout time.Duration
	log         *slog.Logger
	clock       func() time.Time
}

// ManagerConfig wires the manager's collaborators. Notifier and Metrics
// are optional.
type ManagerConfig struct {
	Presence    Presence
	Missed      MissedRecorder
	Notifier    Notifier
	Metrics     *metrics.Metrics
	RingTimeout time.Duration
	Logger      *slog.Logger
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		sessions:    map[string]*callSession{},
		active:      map[string]string{},
		presence:    cfg.Presence,
		missed:      cfg.Missed,
		notify:      cfg.Notifier,
		metrics:     cfg.Metrics,
		ringTimeout: cfg.RingTimeout,
		log:         cfg.Logger,
		clock:       time.Now,
	}
}

// Initiate creates a session for caller -> callee, or refuses with a
// RejectError. The busy/offline refusals leave a missed-call entry; a
// caller already in a call gets already_in_call without one. The commit
// point is the active map: whichever initiation locks first wins, the
// loser is refused against the same pair (first-committed-session wins).
func (m *Manager) Initiate(ctx context.Context, callerID, calleeID string) (Session, error) {
	if callerID == "" || calleeID == "" || callerID == calleeID {
		return Session{}, ErrInvalidArgument
	}

	calleeRec, err := m.presence.Get(ctx, calleeID)
	if err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	if _, busy := m.active[callerID]; busy {
		m.mu.Unlock()
		m.countInitiate("already_in_call")
		return Session{}, &RejectError{Reason: RejectAlreadyInCall}
	}
	if _, busy := m.active[calleeID]; busy || calleeRec.Status == presence.StatusInCall {
		m.mu.Unlock()
		m.countInitiate("busy")
		m.recordMissed(ctx, callerID, calleeID, missed.ReasonBusy)
		return Session{}, &RejectError{Reason: RejectBusy}
	}
	if calleeRec.Status == presence.StatusOffline {
		m.mu.Unlock()
		m.countInitiate("offline")
		m.recordMissed(ctx, callerID, calleeID, missed.ReasonOffline)
		return Session{}, &RejectError{Reason: RejectOffline}
	}

	now := m.clock().UTC()
	cs := newCallSession(uuid.NewString(), callerID, calleeID, now)
	m.sessions[cs.callID] = cs
	m.active[callerID] = cs.callID
	m.active[calleeID] = cs.callID
	cs.ringTimer = time.AfterFunc(m.ringTimeout, func() { m.expire(cs.callID) })

	// Presence writes commit under the same lock as the active map, so a
	// release from a call that just ended can never land on top of the
	// in_call write of a call the same user started right after.
	m.setPresence(ctx, callerID, presence.StatusInCall, calleeID)
	m.setPresence(ctx, calleeID, presence.StatusInCall, callerID)

	snap := cs.snapshot()
	m.mu.Unlock()

	m.countInitiate("accepted")
	if m.metrics != nil {
		m.metrics.ActiveCalls.Inc()
	}

	m.log.Info("call initiated", "call_id", snap.CallID, "caller_id", callerID, "callee_id", calleeID)
	return snap, nil
}

// OfferDelivered moves initiating -> ringing once the relay has buffered
// the caller's offer for the callee. Any other state is left alone.
func (m *Manager) OfferDelivered(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sessions[callID]
	if !ok || cs.state() != StateInitiating {
		return
	}
	_ = cs.machine.Event(context.Background(), "ring")
}

// Answer moves ringing -> connecting. Only the callee may answer.
func (m *Manager) Answer(ctx context.Context, callID, userID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if userID != cs.calleeID {
		return Session{}, ErrNotParticipant
	}
	if cs.state() != StateRinging {
		return Session{}, ErrNotRinging
	}
	if err := cs.machine.Event(ctx, "answer"); err != nil {
		return Session{}, ErrNotRinging
	}
	cs.stopRingTimer()
	m.log.Info("call answered", "call_id", callID, "callee_id", userID)
	return cs.snapshot(), nil
}

// ConfirmConnected records the external "peer connected" confirmation,
// moving connecting -> connected. Confirming an already connected call is
// a no-op.
func (m *Manager) ConfirmConnected(ctx context.Context, callID, userID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, ok := m.sessions[callID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if !cs.involves(userID) {
		return Session{}, ErrNotParticipant
	}
	switch cs.state() {
	case StateConnected:
		return cs.snapshot(), nil
	case StateConnecting:
	default:
		return Session{}, ErrNotConnecting
	}
	if err := cs.machine.Event(ctx, "connect"); err != nil {
		return Session{}, ErrNotConnecting
	}
	now := m.clock().UTC()
	cs.connectedAt = &now
	m.log.Info("call connected", "call_id", callID)
	return cs.snapshot(), nil
}

// Reject ends a ringing or connecting call from the callee side and logs
// a busy missed call for review. A call that already reached connected
// can only be hung up; rejecting it would fabricate a missed-call entry
// for a call that did go through.
func (m *Manager) Reject(ctx context.Context, callID, userID string) error {
	m.mu.Lock()
	cs, ok := m.sessions[callID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	if userID != cs.calleeID {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	switch cs.state() {
	case StateEnded:
		m.mu.Unlock()
		return nil
	case StateRinging, StateConnecting:
	default:
		m.mu.Unlock()
		return ErrNotRinging
	}
	snap := m.endLocked(ctx, cs, EndReasonRejected, 0)
	m.mu.Unlock()

	m.recordMissed(ctx, snap.CallerID, snap.CalleeID, missed.ReasonBusy)
	m.finishEnd(ctx, snap)
	return nil
}

// Hangup is the universal cancellation primitive: idempotent, tolerant of
// unknown call ids, and it releases both endpoints' in_call presence
// exactly once.
func (m *Manager) Hangup(ctx context.Context, callID, userID, reason string, durationSeconds int) error {
	m.mu.Lock()
	cs, ok := m.sessions[callID]
	if !ok {
		m.mu.Unlock()
		return nil // unknown or long-gone call id: benign
	}
	if userID != "" && !cs.involves(userID) {
		m.mu.Unlock()
		return ErrNotParticipant
	}
	if cs.state() == StateEnded {
		m.mu.Unlock()
		return nil // repeated hangup: benign
	}
	if reason == "" {
		reason = EndReasonHangup
	}
	snap := m.endLocked(ctx, cs, reason, durationSeconds)
	m.mu.Unlock()

	m.finishEnd(ctx, snap)
	return nil
}

// HangupPeerTimeout is the staleness sweep's entry point.
func (m *Manager) HangupPeerTimeout(ctx context.Context, callID string) error {
	return m.Hangup(ctx, callID, "", EndReasonPeerTimeout, 0)
}

// expire fires from the ring timer. Only a call still waiting to be
// answered expires; any other state means the timer lost the race.
func (m *Manager) expire(callID string) {
	ctx := context.Background()

	m.mu.Lock()
	cs, ok := m.sessions[callID]
	if !ok {
		m.mu.Unlock()
		return
	}
	switch cs.state() {
	case StateInitiating, StateRinging:
	default:
		m.mu.Unlock()
		return
	}
	snap := m.endLocked(ctx, cs, EndReasonNoAnswer, 0)
	m.mu.Unlock()

	m.recordMissed(ctx, snap.CallerID, snap.CalleeID, missed.ReasonNoAnswer)
	m.finishEnd(ctx, snap)
}

// endLocked commits the terminal transition. Caller holds m.mu.
func (m *Manager) endLocked(ctx context.Context, cs *callSession, reason string, durationSeconds int) Session {
	_ = cs.machine.Event(ctx, "end")
	cs.stopRingTimer()

	now := m.clock().UTC()
	cs.endedAt = &now
	cs.endReason = reason
	if durationSeconds <= 0 && cs.connectedAt != nil {
		durationSeconds = int(now.Sub(*cs.connectedAt) / time.Second)
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	cs.durationSeconds = durationSeconds

	if m.active[cs.callerID] == cs.callID {
		delete(m.active, cs.callerID)
	}
	if m.active[cs.calleeID] == cs.callID {
		delete(m.active, cs.calleeID)
	}

	// Both endpoints held at most this one call, so the release to online
	// is unconditional. Writing it here, still under m.mu, keeps the
	// presence stream ordered with the session commits.
	m.setPresence(ctx, cs.callerID, presence.StatusOnline, "")
	m.setPresence(ctx, cs.calleeID, presence.StatusOnline, "")

	snap := cs.snapshot()
	m.history = append(m.history, snap)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
	return snap
}

// finishEnd performs the post-commit side effects of ending a call:
// metrics, notification, logging. Runs without m.mu held.
func (m *Manager) finishEnd(ctx context.Context, snap Session) {
	if m.metrics != nil {
		m.metrics.ActiveCalls.Dec()
		m.metrics.CallsEnded.WithLabelValues(snap.EndReason).Inc()
	}
	if m.notify != nil {
		m.notify.CallEnded(ctx, snap)
	}
	m.log.Info("call ended",
		"call_id", snap.CallID,
		"end_reason", snap.EndReason,
		"duration_s", snap.DurationSeconds)
}

func (m *Manager) setPresence(ctx context.Context, userID string, status presence.Status, with string) {
	if err := m.presence.Transition(ctx, userID, status, with); err != nil {
		m.log.Error("presence transition failed", "user_id", userID, "status", status, "err", err)
	}
}

func (m *Manager) recordMissed(ctx context.Context, callerID, calleeID string, reason missed.Reason) {
	if m.missed == nil {
		return
	}
	if _, err := m.missed.Record(ctx, callerID, calleeID, reason); err != nil {
		m.log.Error("missed-call record failed", "caller_id", callerID, "callee_id", calleeID, "err", err)
		return
	}
	if m.notify != nil {
		m.notify.CallMissed(ctx, callerID, calleeID, reason, m.clock().UTC())
	}
}

func (m *Manager) countInitiate(outcome string) {
	if m.metrics != nil {
		m.metrics.CallsInitiated.WithLabelValues(outcome).Inc()
	}
}

// --- read-side accessors ---

// Get returns the current snapshot of a session, live or ended.
func (m *Manager) Get(callID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.sessions[callID]
	if !ok {
		return Session{}, false
	}
	return cs.snapshot(), true
}

// HasActiveCall implements presence.ActiveCalls.
func (m *Manager) HasActiveCall(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[userID]
	return ok
}

// ActiveCallID implements the sweeper side of presence.CallEnder.
func (m *Manager) ActiveCallID(userID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[userID]
	return id, ok
}

// Endpoints reports the parties of a call and whether it has ended; the
// relay uses it to validate signal routing.
func (m *Manager) Endpoints(callID string) (callerID, calleeID string, ended bool, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, found := m.sessions[callID]
	if !found {
		return "", "", false, false
	}
	return cs.callerID, cs.calleeID, cs.state() == StateEnded, true
}

// History returns the user's ended sessions, newest first.
func (m *Manager) History(userID string) []Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Session, 0)
	for i := len(m.history) - 1; i >= 0; i-- {
		s := m.history[i]
		if s.CallerID == userID || s.CalleeID == userID {
			out = append(out, s)
		}
	}
	return out
}

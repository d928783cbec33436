package controller

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"voice-relay/internal/relay"
)

var (
	ErrAlreadyInCall = errors.New("controller: a call is already in progress")
	ErrNoActiveCall  = errors.New("controller: no call in progress")
)

// CallRejectedError carries the server's synchronous initiate refusal.
type CallRejectedError struct {
	Reason string
}

func (e *CallRejectedError) Error() string {
	return "controller: call rejected: " + e.Reason
}

// InitiateResult is the server's answer to an initiate request.
type InitiateResult struct {
	Accepted bool
	CallID   string
	Reason   string
}

// API is the slice of the signaling server this driver talks to. An
// implementation wraps the HTTP client; tests substitute a fake.
type API interface {
	Heartbeat(ctx context.Context) error
	InitiateCall(ctx context.Context, calleeID string) (InitiateResult, error)
	AnswerCall(ctx context.Context, callID string) error
	RejectCall(ctx context.Context, callID string) error
	HangupCall(ctx context.Context, callID string, durationSeconds int) error
	ConfirmConnected(ctx context.Context, callID string) error
	PostSignal(ctx context.Context, callID string, kind relay.Kind, payload json.RawMessage) error
	PollSignals(ctx context.Context) ([]relay.Message, error)
}

// MediaEventKind labels events the media engine surfaces. The driver
// reacts only to these discrete events, never to transport internals.
type MediaEventKind string

const (
	MediaICECandidate MediaEventKind = "ice_candidate"
	MediaConnected    MediaEventKind = "connected"
	MediaDisconnected MediaEventKind = "disconnected"
)

type MediaEvent struct {
	Kind    MediaEventKind
	Payload json.RawMessage
}

// MediaEngine owns local media and the peer transport. SDP and ICE
// payloads pass through the driver opaquely.
type MediaEngine interface {
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	HandleOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	HandleAnswer(ctx context.Context, answer json.RawMessage) error
	AddCandidate(ctx context.Context, candidate json.RawMessage) error
	Events() <-chan MediaEvent
	Close() error
}

// EngineFactory builds a fresh engine per call session.
type EngineFactory func(ctx context.Context) (MediaEngine, error)

// Hooks are optional UI callbacks. They run on the driver's poll
// goroutine and must not block.
type Hooks struct {
	OnIncomingCall func(callID, callerID string)
	OnConnected    func(callID string)
	OnCallEnded    func(callID, reason string)
}

// activeCall holds everything belonging to one call session. It is
// created at initiate or at the incoming offer and discarded at ended;
// nothing in it survives across sessions.
type activeCall struct {
	callID   string
	peerID   string
	outbound bool

	engine       MediaEngine
	pendingOffer json.RawMessage
	pendingICE   []json.RawMessage

	connectedAt time.Time
	eventsDone  chan struct{}
}

// Controller drives one client's side of the call protocol: it heartbeats,
// polls the relay, reacts to signals and media events, and exposes the
// user-facing call verbs.
type Controller struct {
	api     API
	engines EngineFactory
	hooks   Hooks
	log     *slog.Logger

	heartbeat *Task
	poller    *Task

	// calls serializes access to current.
	calls   chan struct{}
	current *activeCall
}

type Config struct {
	API               API
	Engines           EngineFactory
	Hooks             Hooks
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	Logger            *slog.Logger
}

func New(cfg Config) *Controller {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Controller{
		api:     cfg.API,
		engines: cfg.Engines,
		hooks:   cfg.Hooks,
		log:     cfg.Logger,
		calls:   make(chan struct{}, 1),
	}
	c.calls <- struct{}{}
	c.heartbeat = NewTask(cfg.HeartbeatInterval, c.sendHeartbeat)
	c.poller = NewTask(cfg.PollInterval, c.pollOnce)
	return c
}

// Start launches the heartbeat and signal-polling tasks.
func (c *Controller) Start(ctx context.Context) {
	c.heartbeat.Start(ctx)
	c.poller.Start(ctx)
}

// Stop halts both tasks and hangs up any call still in progress.
func (c *Controller) Stop(ctx context.Context) {
	c.heartbeat.Stop()
	c.poller.Stop()
	if err := c.Hangup(ctx); err != nil && !errors.Is(err, ErrNoActiveCall) {
		c.log.Error("hangup on stop failed", "err", err)
	}
}

func (c *Controller) lock()   { <-c.calls }
func (c *Controller) unlock() { c.calls <- struct{}{} }

func (c *Controller) sendHeartbeat(ctx context.Context) {
	if err := c.api.Heartbeat(ctx); err != nil {
		c.log.Debug("heartbeat failed", "err", err)
	}
}

// Call places an outbound call and sends the SDP offer. A synchronous
// server refusal comes back as *CallRejectedError.
func (c *Controller) Call(ctx context.Context, calleeID string) (string, error) {
	c.lock()
	defer c.unlock()

	if c.current != nil {
		return "", ErrAlreadyInCall
	}

	res, err := c.api.InitiateCall(ctx, calleeID)
	if err != nil {
		return "", err
	}
	if !res.Accepted {
		return "", &CallRejectedError{Reason: res.Reason}
	}

	engine, err := c.engines(ctx)
	if err != nil {
		c.abandon(ctx, res.CallID)
		return "", err
	}
	offer, err := engine.CreateOffer(ctx)
	if err != nil {
		engine.Close()
		c.abandon(ctx, res.CallID)
		return "", err
	}
	if err := c.api.PostSignal(ctx, res.CallID, relay.KindOffer, offer); err != nil {
		engine.Close()
		c.abandon(ctx, res.CallID)
		return "", err
	}

	c.current = &activeCall{
		callID:     res.CallID,
		peerID:     calleeID,
		outbound:   true,
		engine:     engine,
		eventsDone: make(chan struct{}),
	}
	go c.consumeMediaEvents(c.current)
	return res.CallID, nil
}

// abandon releases a session that never got its offer out.
func (c *Controller) abandon(ctx context.Context, callID string) {
	if err := c.api.HangupCall(ctx, callID, 0); err != nil {
		c.log.Error("abandon failed", "call_id", callID, "err", err)
	}
}

// Answer accepts the pending inbound call: the engine consumes the
// buffered offer, the session is answered server-side, and the SDP
// answer goes back through the relay.
func (c *Controller) Answer(ctx context.Context) error {
	c.lock()
	defer c.unlock()

	call := c.current
	if call == nil || call.outbound || call.engine != nil {
		return ErrNoActiveCall
	}

	engine, err := c.engines(ctx)
	if err != nil {
		return err
	}
	answer, err := engine.HandleOffer(ctx, call.pendingOffer)
	if err != nil {
		engine.Close()
		return err
	}
	if err := c.api.AnswerCall(ctx, call.callID); err != nil {
		engine.Close()
		return err
	}
	if err := c.api.PostSignal(ctx, call.callID, relay.KindAnswer, answer); err != nil {
		c.log.Error("answer signal failed", "call_id", call.callID, "err", err)
	}

	call.engine = engine
	call.pendingOffer = nil
	for _, cand := range call.pendingICE {
		if err := engine.AddCandidate(ctx, cand); err != nil {
			c.log.Debug("buffered candidate rejected", "call_id", call.callID, "err", err)
		}
	}
	call.pendingICE = nil
	go c.consumeMediaEvents(call)
	return nil
}

// Reject declines the pending inbound call. The hangup signal goes out
// before the server-side reject ends the session, since an ended session
// drops all later signals.
func (c *Controller) Reject(ctx context.Context) error {
	c.lock()
	defer c.unlock()

	call := c.current
	if call == nil || call.outbound {
		return ErrNoActiveCall
	}
	if err := c.api.PostSignal(ctx, call.callID, relay.KindHangup, nil); err != nil {
		c.log.Debug("reject signal failed", "call_id", call.callID, "err", err)
	}
	err := c.api.RejectCall(ctx, call.callID)
	c.teardownLocked(call, "rejected")
	return err
}

// Hangup ends the current call. Signal first, then the API call, for the
// same ordering reason as Reject.
func (c *Controller) Hangup(ctx context.Context) error {
	c.lock()
	defer c.unlock()

	call := c.current
	if call == nil {
		return ErrNoActiveCall
	}
	if err := c.api.PostSignal(ctx, call.callID, relay.KindHangup, nil); err != nil {
		c.log.Debug("hangup signal failed", "call_id", call.callID, "err", err)
	}

	duration := 0
	if !call.connectedAt.IsZero() {
		duration = int(time.Since(call.connectedAt) / time.Second)
	}
	err := c.api.HangupCall(ctx, call.callID, duration)
	c.teardownLocked(call, "hangup")
	return err
}

// CurrentCallID reports the in-progress call, if any.
func (c *Controller) CurrentCallID() (string, bool) {
	c.lock()
	defer c.unlock()
	if c.current == nil {
		return "", false
	}
	return c.current.callID, true
}

// pollOnce drains the mailbox and dispatches each signal in order.
func (c *Controller) pollOnce(ctx context.Context) {
	msgs, err := c.api.PollSignals(ctx)
	if err != nil {
		c.log.Debug("signal poll failed", "err", err)
		return
	}
	for _, msg := range msgs {
		c.dispatch(ctx, msg)
	}
}

func (c *Controller) dispatch(ctx context.Context, msg relay.Message) {
	c.lock()
	defer c.unlock()

	switch msg.Kind {
	case relay.KindOffer:
		c.handleOfferLocked(msg)
	case relay.KindAnswer:
		c.handleAnswerLocked(ctx, msg)
	case relay.KindICE:
		c.handleICELocked(ctx, msg)
	case relay.KindHangup:
		c.handleHangupLocked(msg)
	default:
		c.log.Debug("unknown signal kind", "kind", string(msg.Kind))
	}
}

func (c *Controller) handleOfferLocked(msg relay.Message) {
	if c.current != nil {
		// The server guards double calls; an offer arriving mid-call is
		// stale and the other side will time out.
		c.log.Debug("offer ignored, call in progress", "call_id", msg.CallID)
		return
	}
	c.current = &activeCall{
		callID:       msg.CallID,
		peerID:       msg.SenderID,
		pendingOffer: msg.Payload,
		eventsDone:   make(chan struct{}),
	}
	if c.hooks.OnIncomingCall != nil {
		c.hooks.OnIncomingCall(msg.CallID, msg.SenderID)
	}
}

func (c *Controller) handleAnswerLocked(ctx context.Context, msg relay.Message) {
	call := c.current
	if call == nil || call.callID != msg.CallID || call.engine == nil {
		c.log.Debug("answer for no matching call", "call_id", msg.CallID)
		return
	}
	if err := call.engine.HandleAnswer(ctx, msg.Payload); err != nil {
		c.log.Error("remote answer rejected", "call_id", msg.CallID, "err", err)
	}
}

func (c *Controller) handleICELocked(ctx context.Context, msg relay.Message) {
	call := c.current
	if call == nil || call.callID != msg.CallID {
		return
	}
	if call.engine == nil {
		// Candidates can outrun the user pressing answer.
		call.pendingICE = append(call.pendingICE, msg.Payload)
		return
	}
	if err := call.engine.AddCandidate(ctx, msg.Payload); err != nil {
		c.log.Debug("candidate rejected", "call_id", msg.CallID, "err", err)
	}
}

func (c *Controller) handleHangupLocked(msg relay.Message) {
	call := c.current
	if call == nil || call.callID != msg.CallID {
		return
	}
	c.teardownLocked(call, "peer hangup")
}

// consumeMediaEvents bridges one session's engine events back into the
// protocol. It exits when the engine closes its event channel.
func (c *Controller) consumeMediaEvents(call *activeCall) {
	defer close(call.eventsDone)
	ctx := context.Background()
	for ev := range call.engine.Events() {
		switch ev.Kind {
		case MediaICECandidate:
			if err := c.api.PostSignal(ctx, call.callID, relay.KindICE, ev.Payload); err != nil {
				c.log.Debug("candidate signal failed", "call_id", call.callID, "err", err)
			}
		case MediaConnected:
			c.lock()
			if c.current == call && call.connectedAt.IsZero() {
				call.connectedAt = time.Now()
			}
			c.unlock()
			if err := c.api.ConfirmConnected(ctx, call.callID); err != nil {
				c.log.Error("connected confirmation failed", "call_id", call.callID, "err", err)
			}
			if c.hooks.OnConnected != nil {
				c.hooks.OnConnected(call.callID)
			}
		case MediaDisconnected:
			c.lock()
			if c.current == call {
				if err := c.api.PostSignal(ctx, call.callID, relay.KindHangup, nil); err != nil {
					c.log.Debug("hangup signal failed", "call_id", call.callID, "err", err)
				}
				duration := 0
				if !call.connectedAt.IsZero() {
					duration = int(time.Since(call.connectedAt) / time.Second)
				}
				if err := c.api.HangupCall(ctx, call.callID, duration); err != nil {
					c.log.Error("hangup after disconnect failed", "call_id", call.callID, "err", err)
				}
				c.teardownLocked(call, "connection lost")
			}
			c.unlock()
		}
	}
}

// teardownLocked discards the session object. Caller holds the call lock.
func (c *Controller) teardownLocked(call *activeCall, reason string) {
	if c.current != call {
		return
	}
	c.current = nil
	if call.engine != nil {
		if err := call.engine.Close(); err != nil {
			c.log.Debug("engine close failed", "call_id", call.callID, "err", err)
		}
	}
	if c.hooks.OnCallEnded != nil {
		c.hooks.OnCallEnded(call.callID, reason)
	}
	c.log.Info("call finished", "call_id", call.callID, "reason", reason)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voice-relay/internal/auth"
	"voice-relay/internal/missed"
	"voice-relay/internal/presence"
	"voice-relay/internal/relay"
	"voice-relay/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Presence *presence.Service
	Sessions *session.Manager
	Relay    *relay.Relay
	Missed   *missed.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: Credential validation belongs to the surrounding user directory;
// this endpoint trusts the gateway in front of it.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	role := req.Role
	if role == "" {
		role = "user"
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Presence ---

func (h Handlers) Heartbeat(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	if err := h.Presence.Heartbeat(c.Request.Context(), userID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type updateStatusRequest struct {
	Status          string `json:"status"`
	CurrentCallWith string `json:"current_call_with,omitempty"`
}

func (h Handlers) UpdateStatus(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err = h.Presence.SetStatus(c.Request.Context(), userID, presence.Status(req.Status), req.CurrentCallWith)
	switch {
	case errors.Is(err, presence.ErrInvalidStatus):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
	case errors.Is(err, presence.ErrConflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "user has an active call"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status update failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h Handlers) GetStatus(c *gin.Context) {
	target := c.Param("user_id")
	if target == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	rec, err := h.Presence.Get(c.Request.Context(), target)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":           rec.UserID,
		"status":            rec.Status,
		"current_call_with": rec.CurrentCallWith,
	})
}

// --- Calls ---

type initiateRequest struct {
	CalleeID string `json:"callee_id"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	s, err := h.Sessions.Initiate(c.Request.Context(), userID, req.CalleeID)
	var rej *session.RejectError
	switch {
	case errors.As(err, &rej):
		c.JSON(http.StatusOK, gin.H{"success": false, "reason": rej.Reason})
	case errors.Is(err, session.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "callee_id required and must differ from caller"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "call_id": s.CallID})
	}
}

func (h Handlers) AnswerCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	s, err := h.Sessions.Answer(c.Request.Context(), c.Param("call_id"), userID)
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.State})
}

func (h Handlers) RejectCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	if err := h.Sessions.Reject(c.Request.Context(), c.Param("call_id"), userID); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type hangupRequest struct {
	DurationSeconds int `json:"duration,omitempty"`
}

func (h Handlers) HangupCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req hangupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if err := h.Sessions.Hangup(c.Request.Context(), c.Param("call_id"), userID, "", req.DurationSeconds); err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h Handlers) ConfirmConnected(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	s, err := h.Sessions.ConfirmConnected(c.Request.Context(), c.Param("call_id"), userID)
	if err != nil {
		h.callError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "state": s.State})
}

func (h Handlers) CallHistory(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": h.Sessions.History(userID)})
}

func (h Handlers) callError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call id"})
	case errors.Is(err, session.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a party to this call"})
	case errors.Is(err, session.ErrNotRinging):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call is not ringing"})
	case errors.Is(err, session.ErrNotConnecting):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call is not connecting"})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call operation failed"})
	}
}

// --- Missed calls ---

func (h Handlers) ListMissedCalls(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	includeSeen := c.Query("include_seen") == "true"
	recs, err := h.Missed.ListFor(c.Request.Context(), userID, includeSeen)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "missed-call lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missed_calls": recs})
}

// MarkMissedCallSeen acknowledges one of the caller's own missed calls;
// records belonging to other callees read as not-found.
func (h Handlers) MarkMissedCallSeen(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	err = h.Missed.MarkSeen(c.Request.Context(), c.Param("id"), userID)
	switch {
	case errors.Is(err, missed.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown missed-call id"})
	case errors.Is(err, missed.ErrInvalidRecord):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "mark seen failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// --- Signaling ---

type postSignalRequest struct {
	CallID  string          `json:"call_id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h Handlers) PostSignal(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req postSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	err = h.Relay.Post(c.Request.Context(), req.CallID, userID, relay.Kind(req.Kind), req.Payload)
	switch {
	case errors.Is(err, relay.ErrInvalidMessage):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id and a valid kind required"})
	case errors.Is(err, relay.ErrNotParticipant):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a party to this call"})
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "signal post failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func (h Handlers) PollSignals(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	msgs, err := h.Relay.Poll(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "signal poll failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": msgs})
}

// AdminPendingSignals reports mailbox depths without draining them.
// RBAC: admin.
func (h Handlers) AdminPendingSignals(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mailboxes": h.Relay.Pending()})
}

package main

import (
	"voice-relay/internal/httpapi"
	"voice-relay/internal/metrics"
	"voice-relay/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, m *metrics.Metrics) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(m.Handler()))

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	v1.POST("/auth/login", h.Login)

	// Everything below requires a verified access token; unauthenticated
	// calls never touch presence or call state.
	protected := v1.Group("")
	protected.Use(authMW)
	{
		status := protected.Group("/status")
		{
			status.POST("/heartbeat", h.Heartbeat)
			status.POST("/update", h.UpdateStatus)
			status.GET("/:user_id", h.GetStatus)
		}

		calls := protected.Group("/calls")
		{
			calls.POST("/initiate", h.InitiateCall)
			calls.POST("/:call_id/answer", h.AnswerCall)
			calls.POST("/:call_id/reject", h.RejectCall)
			calls.POST("/:call_id/hangup", h.HangupCall)
			calls.POST("/:call_id/connected", h.ConfirmConnected)
			calls.GET("/history", h.CallHistory)
			calls.GET("/missed", h.ListMissedCalls)
			calls.POST("/missed/:id/seen", h.MarkMissedCallSeen)
		}

		signals := protected.Group("/signals")
		{
			signals.POST("", h.PostSignal)
			signals.GET("", h.PollSignals)
		}

		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/signals", h.AdminPendingSignals)
		}
	}
}

package main

import (
	"database/sql"
	"net/http"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/conversations"
	"callbridge/internal/httpapi"
	"callbridge/internal/rbac"
	"callbridge/internal/routing"
	"callbridge/internal/telephony"
	"callbridge/pkg/utils"

	"github.com/gin-gonic/gin"
)

type routeDeps struct {
	cfg           config.Config
	db            *sql.DB
	auth          *auth.Manager
	conversations conversations.Repository
	resolver      routing.Resolver
	telnyx        telephony.CallControl
	dedupe        telephony.EventDeduper
	initiator     *calls.Initiator
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/readyz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), d.db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Provider webhooks. Telnyx posts are unauthenticated; Twilio requests
	// must carry a valid X-Twilio-Signature.
	telnyxHooks := telephony.TelnyxWebhookHandler{
		Conversations:  d.conversations,
		Resolver:       d.resolver,
		Control:        d.telnyx,
		Dedupe:         d.dedupe,
		MediaStreamURL: d.cfg.Telnyx.MediaStreamURL,
	}
	r.POST(telephony.TelnyxWebhookPath, telnyxHooks.Handle)

	twilioHooks := telephony.TwilioWebhookHandler{
		Conversations:  d.conversations,
		Resolver:       d.resolver,
		MediaStreamURL: d.cfg.Twilio.MediaStreamURL,
	}
	twilio := r.Group("", telephony.RequireTwilioSignature(d.cfg.Twilio, d.cfg.IsProduction()))
	twilio.POST(telephony.TwilioVoicePath, twilioHooks.Voice)
	twilio.POST(telephony.TwilioStatusPath, twilioHooks.Status)

	// Dashboard API.
	h := httpapi.Handlers{Calls: d.initiator, Conversations: d.conversations}
	v1 := r.Group("/v1", auth.RequireAccessToken(d.auth), rbac.RequireOrganization())
	v1.POST("/calls", rbac.RequireAnyRole(rbac.CallerRoles...), h.InitiateCall)
	v1.GET("/conversations/:id", rbac.RequireAnyRole(rbac.ReaderRoles...), h.GetConversation)
}

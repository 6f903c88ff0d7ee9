package telephony

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"callbridge/internal/clientstate"
	"callbridge/internal/conversations"
	"callbridge/internal/routing"
	"callbridge/pkg/logger"
)

// TwilioWebhookHandler answers voice webhooks with TwiML and follows call
// status callbacks. Signature checks run before it, in RequireTwilioSignature.
type TwilioWebhookHandler struct {
	Conversations conversations.Repository
	Resolver      routing.Resolver

	// MediaStreamURL is the relay's wss:// endpoint for Twilio streams.
	MediaStreamURL string

	Now   func() time.Time
	NewID func() string
}

// Voice returns <Connect><Stream> for a known or newly routed call, and
// <Reject> for an inbound call nobody answers.
func (h TwilioWebhookHandler) Voice(c *gin.Context) {
	log := logger.FromGin(c)

	form, err := ParseTwilioCallForm(c.Request)
	if err != nil {
		log.Warn("twilio webhook parse failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	ids := idsFromQuery(c.Request.URL.Query())
	log = logger.WithCall(log, ProviderTwilio, form.CallSid, ids.ConversationID, ids.OrganizationID)
	ctx := routing.WithClientIP(logger.With(c.Request.Context(), log), c.ClientIP())

	switch {
	case ids.Complete():
		if _, err := h.Conversations.Get(ctx, ids.OrganizationID, ids.ConversationID); err != nil {
			if errors.Is(err, conversations.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			log.Error("conversation lookup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
			return
		}
	case ids.ConversationID != "" || ids.OrganizationID != "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "conversationId and organizationId are required together"})
		return
	default:
		if h.MediaStreamURL == "" {
			log.Error("twilio media stream url not configured")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media stream not configured"})
			return
		}
		in := newInbound(h.Conversations, h.Resolver, h.Now, h.NewID)
		d, conv, err := in.accept(ctx, routing.InboundCall{
			Provider:       ProviderTwilio,
			ProviderCallID: form.CallSid,
			From:           form.From,
			To:             form.To,
		})
		if err != nil {
			log.Error("inbound call setup failed", "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
			return
		}
		if d.Action != routing.ActionAnswer {
			log.Info("inbound call not routed", "to", form.To, "reason", d.Reason)
			doc, err := RejectTwiML(TwiMLRejectBusy)
			writeTwiML(c, doc, err)
			return
		}
		ids = clientstate.CallIDs{ConversationID: conv.ID, OrganizationID: conv.OrganizationID}
		log = log.With(logger.KeyConversationID, conv.ID, logger.KeyOrganizationID, conv.OrganizationID)
		log.Info("inbound call accepted", "agent_id", conv.AgentID)
	}

	streamURL, err := WithCallIDs(h.MediaStreamURL, ids)
	if err != nil {
		log.Error("cannot build media stream url", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "media stream not configured"})
		return
	}
	doc, err := StreamTwiML(streamURL)
	writeTwiML(c, doc, err)
}

func writeTwiML(c *gin.Context, doc string, err error) {
	if err != nil {
		logger.FromGin(c).Error("twiml render failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "twiml failed"})
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(doc))
}

// Status applies the terminal CallStatus values; everything else is
// acknowledged and ignored.
func (h TwilioWebhookHandler) Status(c *gin.Context) {
	log := logger.FromGin(c)
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}

	form, err := ParseTwilioCallForm(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}
	ids := idsFromQuery(c.Request.URL.Query())
	log = logger.WithCall(log, ProviderTwilio, form.CallSid, ids.ConversationID, ids.OrganizationID).
		With("call_status", form.CallStatus)
	ctx := logger.With(c.Request.Context(), log)

	switch form.CallStatus {
	case TwilioStatusCompleted:
		ids, log = h.fillIDs(ctx, log, form.CallSid, ids)
		applyTransition(ctx, log, ids, "ended", now().UTC(), h.Conversations.MarkEnded)
	case TwilioStatusFailed, TwilioStatusBusy, TwilioStatusNoAnswer, TwilioStatusCanceled:
		ids, log = h.fillIDs(ctx, log, form.CallSid, ids)
		applyTransition(ctx, log, ids, "failed", now().UTC(), h.Conversations.MarkFailed)
	default:
		log.Debug("twilio status ignored")
	}
	c.Status(http.StatusNoContent)
}

// fillIDs resolves the conversation from the CallSid when the callback URL
// carries no ids, which is the case for inbound calls.
func (h TwilioWebhookHandler) fillIDs(ctx context.Context, log *slog.Logger, callSid string, ids clientstate.CallIDs) (clientstate.CallIDs, *slog.Logger) {
	if ids.Complete() || callSid == "" {
		return ids, log
	}
	conv, err := h.Conversations.FindByProviderCallID(ctx, ProviderTwilio, callSid)
	switch {
	case errors.Is(err, conversations.ErrNotFound):
		log.Warn("no conversation for call sid")
		return ids, log
	case err != nil:
		log.Error("conversation lookup by call sid failed", "err", err)
		return ids, log
	}
	ids = clientstate.CallIDs{ConversationID: conv.ID, OrganizationID: conv.OrganizationID}
	return ids, log.With(logger.KeyConversationID, conv.ID, logger.KeyOrganizationID, conv.OrganizationID)
}

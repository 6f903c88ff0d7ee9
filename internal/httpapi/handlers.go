package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"callbridge/internal/audit"
	"callbridge/internal/auth"
	"callbridge/internal/calls"
	"callbridge/internal/conversations"
	"callbridge/pkg/logger"
)

// CallInitiator is implemented by *calls.Initiator.
type CallInitiator interface {
	Initiate(ctx context.Context, organizationID string, actor audit.Actor, req calls.InitiateRequest) (calls.InitiateResult, error)
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls         CallInitiator
	Conversations conversations.Repository
}

// InitiateCall handles POST /v1/calls.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Calls == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "calls not configured"})
		return
	}
	organizationID, err := auth.OrganizationID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}

	var req calls.InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Calls.Initiate(c.Request.Context(), organizationID, actorFrom(c), req)
	if err != nil {
		status, msg := callError(err)
		if status >= http.StatusInternalServerError {
			logger.FromGin(c).Error("initiate call failed", "err", err, logger.KeyConversationID, res.ConversationID)
		}
		body := gin.H{"error": msg}
		if res.ConversationID != "" {
			body["conversationId"] = res.ConversationID
		}
		c.AbortWithStatusJSON(status, body)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func callError(err error) (int, string) {
	switch {
	case errors.Is(err, calls.ErrInvalidArgument):
		return http.StatusBadRequest, validationMessage(err)
	case errors.Is(err, calls.ErrAgentNotFound):
		return http.StatusNotFound, "agent not found"
	case errors.Is(err, calls.ErrConfiguration):
		return http.StatusInternalServerError, "provider not configured"
	case errors.Is(err, calls.ErrUpstream):
		return http.StatusInternalServerError, "provider rejected call"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// validationMessage drops the sentinel prefix from a joined validation error.
func validationMessage(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		return msg[i+1:]
	}
	return msg
}

// GetConversation handles GET /v1/conversations/:id, scoped to the caller's organization.
func (h Handlers) GetConversation(c *gin.Context) {
	if h.Conversations == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "conversations not configured"})
		return
	}
	organizationID, err := auth.OrganizationID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "organization_id required"})
		return
	}
	id := c.Param("id")
	if id == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "id required"})
		return
	}

	conv, err := h.Conversations.Get(c.Request.Context(), organizationID, id)
	if errors.Is(err, conversations.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		logger.FromGin(c).Error("get conversation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func actorFrom(c *gin.Context) audit.Actor {
	userID, _ := auth.UserID(c.Request.Context())
	role, _ := auth.Role(c.Request.Context())
	return audit.Actor{UserID: userID, Role: role, IP: c.ClientIP()}
}

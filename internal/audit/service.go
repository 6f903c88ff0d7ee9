package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events. Append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records audit events. Callers treat it as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" || e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who caused an event.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

func (s *Service) LogCallInitiated(ctx context.Context, organizationID string, actor Actor, conversationID, provider, providerCallID string) error {
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypeCallInitiated,
		ActorUserID:    actor.UserID,
		ActorRole:      actor.Role,
		IPAddress:      actor.IP,
		ConversationID: conversationID,
		Provider:       provider,
		ProviderCallID: providerCallID,
		Message:        "outbound call placed",
	})
}

func (s *Service) LogDialFailed(ctx context.Context, organizationID string, actor Actor, conversationID, provider string, cause error) error {
	msg := "provider rejected dial"
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypeCallDialFailed,
		ActorUserID:    actor.UserID,
		ActorRole:      actor.Role,
		IPAddress:      actor.IP,
		ConversationID: conversationID,
		Provider:       provider,
		Message:        msg,
	})
}

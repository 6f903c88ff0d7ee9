package conversations

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Conversation

	// transitions counts effective (row-changing) transitions per id.
	transitions map[string]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]Conversation{}, transitions: map[string]int{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c Conversation) (Conversation, error) {
	if c.ID == "" || c.OrganizationID == "" || c.AgentID == "" {
		return Conversation{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.CreatedAt = c.StartedAt
	c.UpdatedAt = c.StartedAt
	r.rows[c.ID] = c
	return c, nil
}

func (r *MemoryRepo) Get(ctx context.Context, organizationID, id string) (Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.OrganizationID != organizationID {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) MarkConnected(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	return r.transition(organizationID, id, func(c *Conversation) bool {
		if c.Status != StatusRinging {
			return false
		}
		c.Status = StatusConnected
		c.UpdatedAt = now
		return true
	})
}

func (r *MemoryRepo) MarkEnded(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	return r.transition(organizationID, id, func(c *Conversation) bool {
		if c.Status.Terminal() {
			return false
		}
		c.Status = StatusEnded
		c.EndedAt = &now
		c.Duration = durationSeconds(c.StartedAt, now)
		c.UpdatedAt = now
		return true
	})
}

func (r *MemoryRepo) MarkFailed(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	return r.transition(organizationID, id, func(c *Conversation) bool {
		if c.Status.Terminal() {
			return false
		}
		c.Status = StatusFailed
		c.EndedAt = &now
		c.UpdatedAt = now
		return true
	})
}

func (r *MemoryRepo) SetProviderCallID(ctx context.Context, organizationID, id, providerCallID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.OrganizationID != organizationID {
		return ErrNotFound
	}
	c.ProviderCallID = providerCallID
	r.rows[id] = c
	return nil
}

func (r *MemoryRepo) FindByProviderCallID(ctx context.Context, provider, providerCallID string) (Conversation, error) {
	if provider == "" || providerCallID == "" {
		return Conversation{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found Conversation
		ok    bool
	)
	for _, c := range r.rows {
		if c.Provider != provider || c.ProviderCallID != providerCallID {
			continue
		}
		if !ok || c.CreatedAt.After(found.CreatedAt) {
			found, ok = c, true
		}
	}
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return found, nil
}

// Transitions returns how many effective transitions were applied to id.
func (r *MemoryRepo) Transitions(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transitions[id]
}

// Len returns the number of stored conversations.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *MemoryRepo) transition(organizationID, id string, apply func(c *Conversation) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || c.OrganizationID != organizationID {
		return false, nil
	}
	if !apply(&c) {
		return false, nil
	}
	r.rows[id] = c
	r.transitions[id]++
	return true, nil
}

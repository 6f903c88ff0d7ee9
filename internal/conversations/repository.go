package conversations

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the persistence contract for conversations.
//
// Transitions return (false, nil) when the row is absent for that scope or
// already terminal; replaying a provider event is therefore harmless.
type Repository interface {
	Create(ctx context.Context, c Conversation) (Conversation, error)
	Get(ctx context.Context, organizationID, id string) (Conversation, error)
	MarkConnected(ctx context.Context, organizationID, id string, now time.Time) (bool, error)
	MarkEnded(ctx context.Context, organizationID, id string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, organizationID, id string, now time.Time) (bool, error)
	SetProviderCallID(ctx context.Context, organizationID, id, providerCallID string) error
	// FindByProviderCallID resolves a conversation from the provider's own call
	// handle, for callbacks that carry no conversation ids.
	FindByProviderCallID(ctx context.Context, provider, providerCallID string) (Conversation, error)
}

// PostgresRepo assumes:
//
//	conversations(id, agent_id, organization_id, customer_phone, customer_name,
//	  direction, provider, provider_call_id, status, duration, transcript, notes,
//	  started_at, ended_at, created_at, updated_at)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Create(ctx context.Context, c Conversation) (Conversation, error) {
	if c.ID == "" || c.OrganizationID == "" || c.AgentID == "" {
		return Conversation{}, ErrInvalidArgument
	}
	const q = `
INSERT INTO conversations
  (id, agent_id, organization_id, customer_phone, customer_name, direction, provider, provider_call_id, status, duration, started_at, created_at, updated_at)
VALUES
  ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, 0, $10, $10, $10)
`
	if _, err := r.db.ExecContext(ctx, q,
		c.ID,
		c.AgentID,
		c.OrganizationID,
		c.CustomerPhone,
		c.CustomerName,
		c.Direction,
		c.Provider,
		c.ProviderCallID,
		c.Status,
		c.StartedAt,
	); err != nil {
		return Conversation{}, err
	}
	c.CreatedAt = c.StartedAt
	c.UpdatedAt = c.StartedAt
	return c, nil
}

const selectColumns = `
SELECT id, agent_id, organization_id, customer_phone, COALESCE(customer_name, ''),
       direction, provider, COALESCE(provider_call_id, ''), status, duration,
       COALESCE(transcript, ''), COALESCE(notes, ''), started_at, ended_at, created_at, updated_at
FROM conversations
`

func (r *PostgresRepo) Get(ctx context.Context, organizationID, id string) (Conversation, error) {
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+`WHERE organization_id = $1 AND id = $2`, organizationID, id))
}

func (r *PostgresRepo) FindByProviderCallID(ctx context.Context, provider, providerCallID string) (Conversation, error) {
	if provider == "" || providerCallID == "" {
		return Conversation{}, ErrNotFound
	}
	const where = `WHERE provider = $1 AND provider_call_id = $2
ORDER BY created_at DESC
LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, selectColumns+where, provider, providerCallID))
}

func (r *PostgresRepo) scanOne(row *sql.Row) (Conversation, error) {
	var (
		c       Conversation
		endedAt sql.NullTime
	)
	if err := row.Scan(
		&c.ID,
		&c.AgentID,
		&c.OrganizationID,
		&c.CustomerPhone,
		&c.CustomerName,
		&c.Direction,
		&c.Provider,
		&c.ProviderCallID,
		&c.Status,
		&c.Duration,
		&c.Transcript,
		&c.Notes,
		&c.StartedAt,
		&endedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) MarkConnected(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	const q = `
UPDATE conversations
SET status = 'CONNECTED', updated_at = $3
WHERE organization_id = $1 AND id = $2 AND status = 'RINGING'
`
	return r.exec(ctx, q, organizationID, id, now)
}

func (r *PostgresRepo) MarkEnded(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	const q = `
UPDATE conversations
SET status = 'ENDED',
    ended_at = $3,
    duration = GREATEST(0, FLOOR(EXTRACT(EPOCH FROM ($3 - started_at))))::int,
    updated_at = $3
WHERE organization_id = $1 AND id = $2 AND status NOT IN ('ENDED', 'FAILED')
`
	return r.exec(ctx, q, organizationID, id, now)
}

func (r *PostgresRepo) MarkFailed(ctx context.Context, organizationID, id string, now time.Time) (bool, error) {
	const q = `
UPDATE conversations
SET status = 'FAILED', ended_at = $3, updated_at = $3
WHERE organization_id = $1 AND id = $2 AND status NOT IN ('ENDED', 'FAILED')
`
	return r.exec(ctx, q, organizationID, id, now)
}

func (r *PostgresRepo) SetProviderCallID(ctx context.Context, organizationID, id, providerCallID string) error {
	const q = `
UPDATE conversations
SET provider_call_id = $3
WHERE organization_id = $1 AND id = $2
`
	res, err := r.db.ExecContext(ctx, q, organizationID, id, providerCallID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) exec(ctx context.Context, q, organizationID, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, organizationID, id, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

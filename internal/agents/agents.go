// Package agents is the read-only view of voice agents the bridge needs:
// which organization owns a number, and which agent answers it.
package agents

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
)

type Agent struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organizationId" db:"organization_id"`
	Name           string `json:"name" db:"name"`

	// PhoneNumber is the E.164 number inbound calls are routed on.
	PhoneNumber string `json:"phoneNumber" db:"phone_number"`

	Voice        string `json:"voice,omitempty" db:"voice"`
	Instructions string `json:"instructions,omitempty" db:"instructions"`
}

var ErrNotFound = errors.New("agents: not found")

type Repository interface {
	Get(ctx context.Context, organizationID, id string) (Agent, error)
	FindByPhoneNumber(ctx context.Context, phone string) (Agent, error)
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const agentColumns = `id, organization_id, name, COALESCE(phone_number, ''), COALESCE(voice, ''), COALESCE(instructions, '')`

func (r *PostgresRepo) Get(ctx context.Context, organizationID, id string) (Agent, error) {
	q := `SELECT ` + agentColumns + ` FROM agents WHERE organization_id = $1 AND id = $2`
	return scanAgent(r.db.QueryRowContext(ctx, q, organizationID, id))
}

// FindByPhoneNumber is the one unscoped lookup: the dialed number is what
// establishes the organization for an inbound call.
func (r *PostgresRepo) FindByPhoneNumber(ctx context.Context, phone string) (Agent, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return Agent{}, ErrNotFound
	}
	q := `SELECT ` + agentColumns + ` FROM agents WHERE phone_number = $1 ORDER BY id LIMIT 1`
	return scanAgent(r.db.QueryRowContext(ctx, q, phone))
}

func scanAgent(row *sql.Row) (Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.OrganizationID, &a.Name, &a.PhoneNumber, &a.Voice, &a.Instructions); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Agent{}, ErrNotFound
		}
		return Agent{}, err
	}
	return a, nil
}

// NormalizePhone trims whitespace and the punctuation people paste into
// numbers. It does not attempt country inference.
func NormalizePhone(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, s)
}

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	agents []Agent
}

func NewMemoryRepo(agents ...Agent) *MemoryRepo {
	return &MemoryRepo{agents: agents}
}

func (r *MemoryRepo) Get(ctx context.Context, organizationID, id string) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if a.ID == id && a.OrganizationID == organizationID {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

func (r *MemoryRepo) FindByPhoneNumber(ctx context.Context, phone string) (Agent, error) {
	phone = NormalizePhone(phone)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.agents {
		if phone != "" && NormalizePhone(a.PhoneNumber) == phone {
			return a, nil
		}
	}
	return Agent{}, ErrNotFound
}

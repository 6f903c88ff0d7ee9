package conversations

import (
	"context"
	"errors"
	"testing"
	"time"
)

func seed(t *testing.T, r *MemoryRepo, status Status, startedAt time.Time) Conversation {
	t.Helper()
	c, err := r.Create(context.Background(), Conversation{
		ID:             "c-1",
		AgentID:        "a-1",
		OrganizationID: "o-1",
		CustomerPhone:  "+15550001111",
		Direction:      DirectionOutbound,
		Provider:       "telnyx",
		Status:         status,
		StartedAt:      startedAt,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return c
}

func TestMemoryRepo_CreateRequiresScope(t *testing.T) {
	r := NewMemoryRepo()
	if _, err := r.Create(context.Background(), Conversation{ID: "c", AgentID: "a"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestMemoryRepo_GetIsOrganizationScoped(t *testing.T) {
	r := NewMemoryRepo()
	seed(t, r, StatusRinging, time.Now())

	if _, err := r.Get(context.Background(), "o-2", "c-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other org, got %v", err)
	}
	if _, err := r.Get(context.Background(), "o-1", "c-1"); err != nil {
		t.Fatalf("expected row, got %v", err)
	}
}

func TestMemoryRepo_MarkEndedIsIdempotent(t *testing.T) {
	r := NewMemoryRepo()
	start := time.Unix(1700000000, 0).UTC()
	seed(t, r, StatusConnected, start)

	end := start.Add(95 * time.Second)
	for i := 0; i < 5; i++ {
		changed, err := r.MarkEnded(context.Background(), "o-1", "c-1", end.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("mark ended: %v", err)
		}
		if changed != (i == 0) {
			t.Fatalf("replay %d: changed=%v", i, changed)
		}
	}

	c, _ := r.Get(context.Background(), "o-1", "c-1")
	if c.Status != StatusEnded {
		t.Fatalf("expected ENDED, got %s", c.Status)
	}
	if c.Duration != 95 {
		t.Fatalf("expected duration 95, got %d", c.Duration)
	}
	if c.EndedAt == nil || !c.EndedAt.Equal(end) {
		t.Fatalf("expected endedAt from first hangup, got %v", c.EndedAt)
	}
	if r.Transitions("c-1") != 1 {
		t.Fatalf("expected exactly one transition, got %d", r.Transitions("c-1"))
	}
}

func TestMemoryRepo_MarkEndedOtherOrgIsNoop(t *testing.T) {
	r := NewMemoryRepo()
	seed(t, r, StatusRinging, time.Now())

	changed, err := r.MarkEnded(context.Background(), "o-2", "c-1", time.Now())
	if err != nil || changed {
		t.Fatalf("expected no-op, changed=%v err=%v", changed, err)
	}
	c, _ := r.Get(context.Background(), "o-1", "c-1")
	if c.Status != StatusRinging {
		t.Fatalf("expected RINGING, got %s", c.Status)
	}
}

func TestMemoryRepo_MarkConnectedOnlyFromRinging(t *testing.T) {
	r := NewMemoryRepo()
	seed(t, r, StatusRinging, time.Now())

	if changed, _ := r.MarkConnected(context.Background(), "o-1", "c-1", time.Now()); !changed {
		t.Fatalf("expected RINGING -> CONNECTED")
	}
	if changed, _ := r.MarkConnected(context.Background(), "o-1", "c-1", time.Now()); changed {
		t.Fatalf("expected second connect to be a no-op")
	}
	_, _ = r.MarkEnded(context.Background(), "o-1", "c-1", time.Now())
	if changed, _ := r.MarkConnected(context.Background(), "o-1", "c-1", time.Now()); changed {
		t.Fatalf("terminal row must not move")
	}
}

func TestMemoryRepo_FailedIsTerminal(t *testing.T) {
	r := NewMemoryRepo()
	seed(t, r, StatusRinging, time.Now())

	if changed, _ := r.MarkFailed(context.Background(), "o-1", "c-1", time.Now()); !changed {
		t.Fatalf("expected RINGING -> FAILED")
	}
	if changed, _ := r.MarkEnded(context.Background(), "o-1", "c-1", time.Now()); changed {
		t.Fatalf("FAILED must not become ENDED")
	}
}

func TestDurationSeconds_NeverNegative(t *testing.T) {
	now := time.Now()
	if d := durationSeconds(now, now.Add(-time.Minute)); d != 0 {
		t.Fatalf("expected 0, got %d", d)
	}
	if d := durationSeconds(time.Time{}, now); d != 0 {
		t.Fatalf("expected 0 for zero start, got %d", d)
	}
}

func TestMemoryRepo_FindByProviderCallID(t *testing.T) {
	r := NewMemoryRepo()
	ctx := context.Background()
	seed(t, r, StatusRinging, time.Now())
	if err := r.SetProviderCallID(ctx, "o-1", "c-1", "v3:abc"); err != nil {
		t.Fatalf("set provider call id: %v", err)
	}

	got, err := r.FindByProviderCallID(ctx, "telnyx", "v3:abc")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "c-1" || got.OrganizationID != "o-1" {
		t.Fatalf("unexpected row %+v", got)
	}
	if _, err := r.FindByProviderCallID(ctx, "twilio", "v3:abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other provider, got %v", err)
	}
	if _, err := r.FindByProviderCallID(ctx, "telnyx", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty call id, got %v", err)
	}
}

package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthCheck_WrapsError(t *testing.T) {
	cause := errors.New("refused")
	err := HealthCheck(context.Background(), pingerFunc(func(ctx context.Context) error { return cause }), time.Second)
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestHealthCheck_AppliesTimeout(t *testing.T) {
	err := HealthCheck(context.Background(), pingerFunc(func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatalf("expected deadline on ping context")
		}
		return nil
	}), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestPoolDefaults(t *testing.T) {
	p := PostgresPoolConfig{}.withDefaults()
	if p.MaxOpenConns <= 0 || p.MaxIdleConns <= 0 || p.PingTimeout <= 0 {
		t.Fatalf("expected defaults, got %+v", p)
	}
}

package telephony

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"callbridge/internal/clientstate"
)

func TestWithCallIDs(t *testing.T) {
	got, err := WithCallIDs("wss://relay.example.com/media/telnyx?region=us", clientstate.CallIDs{ConversationID: "c 1", OrganizationID: "o&1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	u, _ := url.Parse(got)
	q := u.Query()
	if q.Get("region") != "us" || q.Get("conversationId") != "c 1" || q.Get("organizationId") != "o&1" {
		t.Fatalf("unexpected url %s", got)
	}

	if _, err := WithCallIDs("", clientstate.CallIDs{}); !errors.Is(err, ErrStreamNotConfigured) {
		t.Fatalf("expected ErrStreamNotConfigured, got %v", err)
	}
}

func TestParseTelnyxWebhook(t *testing.T) {
	wh, err := ParseTelnyxWebhook([]byte(`{"data":{"id":"ev-1","event_type":"call.initiated","payload":{"call_control_id":"v3:1","call_direction":"incoming","from":"+1","to":"+2"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	ev, ok := wh.Event.(CallInitiated)
	if !ok || ev.Direction != TelnyxDirectionIncoming || ev.CallControlID != "v3:1" || wh.ID != "ev-1" {
		t.Fatalf("unexpected event %+v", wh)
	}

	wh, err = ParseTelnyxWebhook([]byte(`{"data":{"event_type":"call.hangup","payload":{"call_control_id":"v3:1","hangup_cause":"normal_clearing"}}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if h, ok := wh.Event.(CallHangup); !ok || h.Cause != "normal_clearing" {
		t.Fatalf("unexpected event %+v", wh.Event)
	}

	if _, err := ParseTelnyxWebhook([]byte(`{}`)); !errors.Is(err, ErrMalformedWebhook) {
		t.Fatalf("expected ErrMalformedWebhook, got %v", err)
	}
}

// setNXOnly implements the one redis command RedisDeduper issues.
type setNXOnly struct {
	redis.Cmdable
	keys map[string]bool
}

func (s *setNXOnly) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if s.keys[key] {
		return redis.NewBoolResult(false, nil)
	}
	s.keys[key] = true
	return redis.NewBoolResult(true, nil)
}

func TestRedisDeduper(t *testing.T) {
	rdb := &setNXOnly{keys: map[string]bool{}}
	d := NewRedisDeduper(rdb, time.Hour)

	first, err := d.FirstDelivery(context.Background(), ProviderTelnyx, "ev-1")
	if err != nil || !first {
		t.Fatalf("expected first delivery, got %v %v", first, err)
	}
	again, err := d.FirstDelivery(context.Background(), ProviderTelnyx, "ev-1")
	if err != nil || again {
		t.Fatalf("expected duplicate, got %v %v", again, err)
	}
	if !rdb.keys["webhook:telnyx:ev-1"] {
		t.Fatalf("unexpected key layout %v", rdb.keys)
	}
}

package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callbridge/internal/config"
)

type captured struct {
	method, path, auth, org string
	body                    map[string]any
}

func newBackend(t *testing.T, code int) (*httptest.Server, chan captured) {
	t.Helper()
	ch := make(chan captured, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		ch <- captured{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			org:    r.Header.Get("X-Organization-Id"),
			body:   body,
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestHTTPReporter_UpdateStatus(t *testing.T) {
	srv, ch := newBackend(t, http.StatusOK)
	r := NewHTTPReporter(config.BackendConfig{APIURL: srv.URL, SharedSecret: "shh", Timeout: time.Second}, nil)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	r.UpdateStatus(context.Background(), "c-1", "o-1", StatusActive)

	got := <-ch
	if got.method != http.MethodPatch || got.path != "/api/conversations/c-1" {
		t.Fatalf("unexpected request %s %s", got.method, got.path)
	}
	if got.auth != "Bearer shh" || got.org != "o-1" {
		t.Fatalf("unexpected headers auth=%q org=%q", got.auth, got.org)
	}
	if got.body["status"] != "active" || got.body["updatedAt"] != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected body %v", got.body)
	}
}

func TestHTTPReporter_AddTranscript(t *testing.T) {
	srv, ch := newBackend(t, http.StatusNoContent)
	r := NewHTTPReporter(config.BackendConfig{APIURL: srv.URL, SharedSecret: "shh", Timeout: time.Second}, nil)

	r.AddTranscript(context.Background(), "c-1", "o-1", RoleAssistant, "hello")
	got := <-ch
	if got.body["notes"] != "assistant: hello" {
		t.Fatalf("unexpected notes %v", got.body)
	}

	r.AddTranscript(context.Background(), "c-1", "o-1", RoleAssistant, "")
	select {
	case extra := <-ch:
		t.Fatalf("empty transcript must not be sent, got %+v", extra)
	default:
	}
}

func TestHTTPReporter_FailuresAreSwallowed(t *testing.T) {
	srv, ch := newBackend(t, http.StatusInternalServerError)
	r := NewHTTPReporter(config.BackendConfig{APIURL: srv.URL, SharedSecret: "s", Timeout: time.Second}, nil)
	r.UpdateStatus(context.Background(), "c-1", "o-1", StatusCompleted)
	<-ch

	dead := NewHTTPReporter(config.BackendConfig{APIURL: "http://127.0.0.1:1", SharedSecret: "s", Timeout: 200 * time.Millisecond}, nil)
	dead.UpdateStatus(context.Background(), "c-1", "o-1", StatusCompleted)
}

func TestHTTPReporter_SkipsWithoutIDs(t *testing.T) {
	srv, ch := newBackend(t, http.StatusOK)
	r := NewHTTPReporter(config.BackendConfig{APIURL: srv.URL, SharedSecret: "s"}, srv.Client())

	r.UpdateStatus(context.Background(), "", "o-1", StatusActive)
	r.UpdateStatus(context.Background(), "c-1", "", StatusActive)
	select {
	case got := <-ch:
		t.Fatalf("unexpected request %+v", got)
	default:
	}
}

func TestNew_NoopWithoutSecret(t *testing.T) {
	if _, ok := New(config.BackendConfig{APIURL: "http://x"}, nil).(Noop); !ok {
		t.Fatalf("expected Noop")
	}
	if _, ok := New(config.BackendConfig{APIURL: "http://x", SharedSecret: "s"}, nil).(*HTTPReporter); !ok {
		t.Fatalf("expected HTTPReporter")
	}
}

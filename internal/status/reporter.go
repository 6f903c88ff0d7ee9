// Package status pushes call progress from the relay to the dashboard API.
//
// Reporting is best-effort: a failed PATCH is logged and forgotten, never
// surfaced to the call.
package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"callbridge/internal/config"
	"callbridge/pkg/logger"
)

// Status values the relay reports.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Transcript roles.
const (
	RoleAssistant = "assistant"
	RoleCaller    = "caller"
)

// Reporter has no error returns: failures are the implementation's to log.
type Reporter interface {
	UpdateStatus(ctx context.Context, conversationID, organizationID, status string)
	AddTranscript(ctx context.Context, conversationID, organizationID, role, text string)
}

// New returns an HTTP reporter when the backend is configured, and Noop otherwise.
func New(cfg config.BackendConfig, client *http.Client) Reporter {
	if !cfg.Enabled() {
		return Noop{}
	}
	return NewHTTPReporter(cfg, client)
}

// Noop drops everything.
type Noop struct{}

func (Noop) UpdateStatus(ctx context.Context, conversationID, organizationID, status string) {}

func (Noop) AddTranscript(ctx context.Context, conversationID, organizationID, role, text string) {}

// HTTPReporter PATCHes {base}/api/conversations/{id}.
type HTTPReporter struct {
	base   string
	secret string
	client *http.Client
	now    func() time.Time
}

func NewHTTPReporter(cfg config.BackendConfig, client *http.Client) *HTTPReporter {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &HTTPReporter{
		base:   cfg.APIURL,
		secret: cfg.SharedSecret,
		client: client,
		now:    time.Now,
	}
}

type statusPatch struct {
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}

type notesPatch struct {
	Notes     string `json:"notes"`
	UpdatedAt string `json:"updatedAt"`
}

func (r *HTTPReporter) UpdateStatus(ctx context.Context, conversationID, organizationID, status string) {
	r.patch(ctx, conversationID, organizationID, statusPatch{
		Status:    status,
		UpdatedAt: r.now().UTC().Format(time.RFC3339),
	})
}

// AddTranscript stores the text as the conversation's notes, prefixed with the speaker.
func (r *HTTPReporter) AddTranscript(ctx context.Context, conversationID, organizationID, role, text string) {
	if text == "" {
		return
	}
	r.patch(ctx, conversationID, organizationID, notesPatch{
		Notes:     role + ": " + text,
		UpdatedAt: r.now().UTC().Format(time.RFC3339),
	})
}

func (r *HTTPReporter) patch(ctx context.Context, conversationID, organizationID string, body any) {
	log := logger.From(ctx).With(logger.KeyConversationID, conversationID, logger.KeyOrganizationID, organizationID)
	if conversationID == "" || organizationID == "" {
		log.Debug("status report skipped: missing ids")
		return
	}
	if err := r.do(ctx, conversationID, organizationID, body); err != nil {
		log.Warn("status report failed", "err", err)
	}
}

func (r *HTTPReporter) do(ctx context.Context, conversationID, organizationID string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := r.base + "/api/conversations/" + url.PathEscape(conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.secret)
	req.Header.Set("X-Organization-Id", organizationID)

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

var _ Reporter = (*HTTPReporter)(nil)
var _ Reporter = Noop{}

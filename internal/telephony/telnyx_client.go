package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callbridge/internal/config"
)

const telnyxDefaultTimeout = 10 * time.Second

// TelnyxAPIError is a non-2xx answer from the Call Control API.
type TelnyxAPIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *TelnyxAPIError) Error() string {
	if e.Title == "" {
		return fmt.Sprintf("telnyx: api status %d", e.StatusCode)
	}
	return fmt.Sprintf("telnyx: api status %d: %s: %s", e.StatusCode, e.Title, e.Detail)
}

// TelnyxClient issues Call Control commands.
type TelnyxClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewTelnyxClient(cfg config.TelnyxConfig, hc *http.Client) *TelnyxClient {
	if hc == nil {
		hc = &http.Client{Timeout: telnyxDefaultTimeout}
	}
	return &TelnyxClient{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    hc,
	}
}

// StreamingRequest configures a bidirectional media stream to the relay.
type StreamingRequest struct {
	StreamURL               string `json:"stream_url"`
	StreamTrack             string `json:"stream_track"`
	StreamBidirectionalMode string `json:"stream_bidirectional_mode"`
}

// TelnyxCallRequest places an outbound call.
type TelnyxCallRequest struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	WebhookURL   string `json:"webhook_url"`
	ClientState  string `json:"client_state,omitempty"`
}

type telnyxResponse struct {
	Data struct {
		CallControlID string `json:"call_control_id"`
	} `json:"data"`
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *TelnyxClient) Answer(ctx context.Context, callControlID, clientState string) error {
	body := map[string]string{}
	if clientState != "" {
		body["client_state"] = clientState
	}
	return c.action(ctx, callControlID, "answer", body)
}

func (c *TelnyxClient) StartStreaming(ctx context.Context, callControlID string, req StreamingRequest) error {
	return c.action(ctx, callControlID, "streaming_start", req)
}

// CreateCall dials out and returns the new call_control_id.
func (c *TelnyxClient) CreateCall(ctx context.Context, req TelnyxCallRequest) (string, error) {
	var out telnyxResponse
	if err := c.post(ctx, c.baseURL+"/calls", req, &out); err != nil {
		return "", err
	}
	if out.Data.CallControlID == "" {
		return "", fmt.Errorf("telnyx: create call: empty call_control_id")
	}
	return out.Data.CallControlID, nil
}

func (c *TelnyxClient) action(ctx context.Context, callControlID, action string, body any) error {
	if callControlID == "" {
		return ErrMissingCallControlID
	}
	endpoint := fmt.Sprintf("%s/calls/%s/actions/%s", c.baseURL, url.PathEscape(callControlID), action)
	if err := c.post(ctx, endpoint, body, nil); err != nil {
		return fmt.Errorf("telnyx %s: %w", action, err)
	}
	return nil
}

func (c *TelnyxClient) post(ctx context.Context, endpoint string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &TelnyxAPIError{StatusCode: resp.StatusCode}
		var parsed telnyxResponse
		if json.Unmarshal(data, &parsed) == nil && len(parsed.Errors) > 0 {
			apiErr.Title = parsed.Errors[0].Title
			apiErr.Detail = parsed.Errors[0].Detail
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

package calls

import (
	"context"
	"strings"

	"callbridge/internal/clientstate"
	"callbridge/internal/config"
	"callbridge/internal/telephony"
)

// Outbound is one call to place. IDs ride on every callback URL so webhooks
// can find the conversation.
type Outbound struct {
	To  string
	IDs clientstate.CallIDs
}

// Dialer places outbound calls through one provider.
type Dialer interface {
	Provider() string
	// Ready reports whether the provider is configured well enough to dial.
	Ready() bool
	Dial(ctx context.Context, call Outbound) (providerCallID string, err error)
}

type telnyxCaller interface {
	CreateCall(ctx context.Context, req telephony.TelnyxCallRequest) (string, error)
}

// TelnyxDialer dials with Call Control. The ids travel twice: as client
// state and on the webhook URL.
type TelnyxDialer struct {
	client telnyxCaller
	cfg    config.TelnyxConfig
}

func NewTelnyxDialer(client telnyxCaller, cfg config.TelnyxConfig) *TelnyxDialer {
	return &TelnyxDialer{client: client, cfg: cfg}
}

func (d *TelnyxDialer) Provider() string { return telephony.ProviderTelnyx }

func (d *TelnyxDialer) Ready() bool { return d.client != nil && d.cfg.CanDial() }

func (d *TelnyxDialer) Dial(ctx context.Context, call Outbound) (string, error) {
	webhookURL, err := telephony.WithCallIDs(strings.TrimRight(d.cfg.WebhookBaseURL, "/")+telephony.TelnyxWebhookPath, call.IDs)
	if err != nil {
		return "", err
	}
	return d.client.CreateCall(ctx, telephony.TelnyxCallRequest{
		ConnectionID: d.cfg.ConnectionID,
		To:           call.To,
		From:         d.cfg.FromNumber,
		WebhookURL:   webhookURL,
		ClientState:  clientstate.EncodeIDs(call.IDs),
	})
}

type twilioCaller interface {
	CreateCall(ctx context.Context, req telephony.TwilioCallRequest) (string, error)
}

// TwilioDialer dials through the REST API. Twilio fetches TwiML from the
// voice webhook once the callee answers.
type TwilioDialer struct {
	client twilioCaller
	cfg    config.TwilioConfig
}

func NewTwilioDialer(client twilioCaller, cfg config.TwilioConfig) *TwilioDialer {
	return &TwilioDialer{client: client, cfg: cfg}
}

func (d *TwilioDialer) Provider() string { return telephony.ProviderTwilio }

func (d *TwilioDialer) Ready() bool { return d.client != nil && d.cfg.CanDial() }

func (d *TwilioDialer) Dial(ctx context.Context, call Outbound) (string, error) {
	base := strings.TrimRight(d.cfg.WebhookBaseURL, "/")
	voiceURL, err := telephony.WithCallIDs(base+telephony.TwilioVoicePath, call.IDs)
	if err != nil {
		return "", err
	}
	statusURL, err := telephony.WithCallIDs(base+telephony.TwilioStatusPath, call.IDs)
	if err != nil {
		return "", err
	}
	return d.client.CreateCall(ctx, telephony.TwilioCallRequest{
		To:             call.To,
		From:           d.cfg.FromNumber,
		URL:            voiceURL,
		StatusCallback: statusURL,
	})
}

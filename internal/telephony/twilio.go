package telephony

import (
	"context"
	"errors"
	"fmt"

	"github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"callbridge/internal/config"
)

// TwilioClient places calls through the Twilio REST API.
type TwilioClient struct {
	rest *twilio.RestClient
}

func NewTwilioClient(cfg config.TwilioConfig) *TwilioClient {
	return &TwilioClient{
		rest: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
	}
}

// TwilioCallRequest places an outbound call whose TwiML is fetched from URL.
type TwilioCallRequest struct {
	To             string
	From           string
	URL            string
	StatusCallback string
}

// CreateCall returns the new CallSid. The SDK call takes no context, so ctx
// is only checked before dialing.
func (c *TwilioClient) CreateCall(ctx context.Context, req TwilioCallRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	params.SetUrl(req.URL)
	params.SetMethod("POST")
	if req.StatusCallback != "" {
		params.SetStatusCallback(req.StatusCallback)
		params.SetStatusCallbackMethod("POST")
	}

	resp, err := c.rest.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("twilio create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return "", errors.New("twilio create call: empty call sid")
	}
	return *resp.Sid, nil
}

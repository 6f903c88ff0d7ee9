package telephony

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/twilio/twilio-go/client"

	"callbridge/internal/config"
	"callbridge/pkg/logger"
)

// TwilioCallForm captures the voice and status webhook fields we use.
// Twilio posts application/x-www-form-urlencoded.
// Ref: https://www.twilio.com/docs/voice/twiml#request-parameters
type TwilioCallForm struct {
	CallSid      string
	AccountSid   string
	From         string
	To           string
	Direction    string
	CallStatus   string
	CallDuration string
}

func ParseTwilioCallForm(r *http.Request) (TwilioCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioCallForm{}, err
	}
	return TwilioCallForm{
		CallSid:      r.PostFormValue("CallSid"),
		AccountSid:   r.PostFormValue("AccountSid"),
		From:         strings.TrimSpace(r.PostFormValue("From")),
		To:           strings.TrimSpace(r.PostFormValue("To")),
		Direction:    r.PostFormValue("Direction"),
		CallStatus:   r.PostFormValue("CallStatus"),
		CallDuration: r.PostFormValue("CallDuration"),
	}, nil
}

// Twilio CallStatus values that end a call.
const (
	TwilioStatusCompleted = "completed"
	TwilioStatusFailed    = "failed"
	TwilioStatusBusy      = "busy"
	TwilioStatusNoAnswer  = "no-answer"
	TwilioStatusCanceled  = "canceled"
)

const twilioSignatureHeader = "X-Twilio-Signature"

// RequireTwilioSignature checks X-Twilio-Signature against the public URL
// Twilio called (webhook base URL plus request URI) and the posted form.
//
// Without an auth token and base URL the check cannot run: production
// refuses the request, other environments let it through with a warning.
func RequireTwilioSignature(cfg config.TwilioConfig, production bool) gin.HandlerFunc {
	validator := client.NewRequestValidator(cfg.AuthToken)
	base := strings.TrimRight(cfg.WebhookBaseURL, "/")
	enabled := cfg.CanValidate()

	return func(c *gin.Context) {
		log := logger.FromGin(c)
		if !enabled {
			if production {
				log.Error("twilio signature validation not configured")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "webhook validation not configured"})
				return
			}
			log.Warn("twilio signature validation skipped: not configured")
			c.Next()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
			return
		}
		params := make(map[string]string, len(c.Request.PostForm))
		for k, v := range c.Request.PostForm {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}

		sig := c.GetHeader(twilioSignatureHeader)
		if sig == "" || !validator.Validate(base+c.Request.URL.RequestURI(), params, sig) {
			log.Warn("twilio signature mismatch", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

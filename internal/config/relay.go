package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// RelayConfig holds configuration for the media relay process.
type RelayConfig struct {
	App      AppConfig
	Realtime RealtimeConfig
	Backend  BackendConfig
}

const (
	RealtimeModeOpenAI = "openai"
	RealtimeModeStub   = "stub"
)

type RealtimeConfig struct {
	// Mode selects the AI client implementation: openai or stub.
	Mode string

	APIKey             string
	URL                string
	Model              string
	Voice              string
	TranscriptionModel string
	Instructions       string
	ConnectTimeout     time.Duration

	VADThreshold       float64
	VADPrefixPaddingMS int
	VADSilenceMS       int
}

// BackendConfig points the status reporter at the dashboard API.
// Without a shared secret, status reporting is disabled.
type BackendConfig struct {
	APIURL       string
	SharedSecret string
	Timeout      time.Duration
}

func (b BackendConfig) Enabled() bool {
	return b.SharedSecret != "" && b.APIURL != ""
}

const (
	defaultRealtimeURL         = "wss://api.openai.com/v1/realtime"
	defaultRealtimeModel       = "gpt-4o-realtime-preview"
	defaultRealtimeVoice       = "alloy"
	defaultTranscriptionModel  = "whisper-1"
	defaultRealtimeConnTimeout = 10 * time.Second
	defaultBackendTimeout      = 5 * time.Second
)

func LoadRelay() (RelayConfig, error) {
	c := RelayConfig{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("RELAY_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Realtime.Mode = strings.ToLower(strings.TrimSpace(os.Getenv("REALTIME_MODE")))
	c.Realtime.APIKey = os.Getenv("OPENAI_API_KEY")
	c.Realtime.URL = trimURL(os.Getenv("OPENAI_REALTIME_URL"))
	c.Realtime.Model = strings.TrimSpace(os.Getenv("OPENAI_REALTIME_MODEL"))
	c.Realtime.Voice = strings.TrimSpace(os.Getenv("OPENAI_VOICE"))
	c.Realtime.TranscriptionModel = strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIPTION_MODEL"))
	c.Realtime.Instructions = strings.TrimSpace(os.Getenv("OPENAI_INSTRUCTIONS"))
	c.Realtime.ConnectTimeout = mustDuration("REALTIME_CONNECT_TIMEOUT")
	{
		f, err := optionalFloat("REALTIME_VAD_THRESHOLD", 0.5)
		f, parseErrs = appendParseErr(parseErrs, f, err)
		c.Realtime.VADThreshold = f
	}
	{
		n, err := optionalInt("REALTIME_VAD_PREFIX_PADDING_MS", 300)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Realtime.VADPrefixPaddingMS = n
	}
	{
		n, err := optionalInt("REALTIME_VAD_SILENCE_MS", 500)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Realtime.VADSilenceMS = n
	}

	c.Backend.APIURL = trimURL(os.Getenv("BACKEND_API_URL"))
	c.Backend.SharedSecret = os.Getenv("BACKEND_SHARED_SECRET")
	c.Backend.Timeout = mustDuration("BACKEND_TIMEOUT")

	if err := joinErrors(parseErrs); err != nil {
		return RelayConfig{}, err
	}
	if err := c.Validate(); err != nil {
		return RelayConfig{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *RelayConfig) Validate() error {
	errs := validateApp(c.App, "RELAY_PORT")

	if c.Realtime.Mode == "" {
		// An unset mode follows the key, so local runs work without credentials.
		c.Realtime.Mode = RealtimeModeStub
		if c.Realtime.APIKey != "" || c.IsProduction() {
			c.Realtime.Mode = RealtimeModeOpenAI
		}
	}
	switch c.Realtime.Mode {
	case RealtimeModeOpenAI:
		if c.Realtime.APIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when REALTIME_MODE=openai"))
		}
	case RealtimeModeStub:
		if c.IsProduction() {
			errs = append(errs, errors.New("REALTIME_MODE=stub is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("REALTIME_MODE must be one of openai, stub, got %q", c.Realtime.Mode))
	}
	if c.Realtime.URL == "" {
		c.Realtime.URL = defaultRealtimeURL
	}
	if !strings.HasPrefix(c.Realtime.URL, "ws://") && !strings.HasPrefix(c.Realtime.URL, "wss://") {
		errs = append(errs, fmt.Errorf("OPENAI_REALTIME_URL must be a ws(s) URL, got %q", c.Realtime.URL))
	}
	if c.Realtime.Model == "" {
		c.Realtime.Model = defaultRealtimeModel
	}
	if c.Realtime.Voice == "" {
		c.Realtime.Voice = defaultRealtimeVoice
	}
	if c.Realtime.TranscriptionModel == "" {
		c.Realtime.TranscriptionModel = defaultTranscriptionModel
	}
	if c.Realtime.ConnectTimeout <= 0 {
		c.Realtime.ConnectTimeout = defaultRealtimeConnTimeout
	}
	if c.Realtime.VADThreshold <= 0 || c.Realtime.VADThreshold > 1 {
		errs = append(errs, fmt.Errorf("REALTIME_VAD_THRESHOLD must be in (0, 1], got %v", c.Realtime.VADThreshold))
	}
	if c.Realtime.VADPrefixPaddingMS < 0 || c.Realtime.VADSilenceMS <= 0 {
		errs = append(errs, errors.New("REALTIME_VAD_PREFIX_PADDING_MS must be >= 0 and REALTIME_VAD_SILENCE_MS > 0"))
	}

	if c.Backend.SharedSecret != "" && c.Backend.APIURL == "" {
		errs = append(errs, errors.New("BACKEND_API_URL is required when BACKEND_SHARED_SECRET is set"))
	}
	if c.IsProduction() && c.Backend.SharedSecret == "" {
		errs = append(errs, errors.New("BACKEND_SHARED_SECRET is required in production"))
	}
	if c.Backend.Timeout <= 0 {
		c.Backend.Timeout = defaultBackendTimeout
	}

	return joinErrors(errs)
}

func (c RelayConfig) IsProduction() bool {
	return c.App.Env == "production"
}

func (c RelayConfig) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process (webhooks and
// the outbound initiator). All values come from env; cmd/api loads a .env file
// first when one exists.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Telnyx   TelnyxConfig
	Twilio   TwilioConfig
	Webhooks WebhookConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without a host, webhook replay dedupe is disabled.
type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TelnyxConfig struct {
	APIKey       string
	ConnectionID string
	FromNumber   string
	APIBaseURL   string

	// WebhookBaseURL is the public origin Telnyx posts call events to.
	WebhookBaseURL string
	// MediaStreamURL is the relay's public wss:// endpoint for Telnyx streams.
	MediaStreamURL string
}

// CanDial reports whether outbound Telnyx calls can be placed.
func (t TelnyxConfig) CanDial() bool {
	return t.APIKey != "" && t.ConnectionID != "" && t.FromNumber != "" && t.WebhookBaseURL != ""
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	WebhookBaseURL string
	MediaStreamURL string
}

// CanValidate reports whether inbound webhook signatures can be checked.
func (t TwilioConfig) CanValidate() bool {
	return t.AuthToken != "" && t.WebhookBaseURL != ""
}

func (t TwilioConfig) CanDial() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.FromNumber != "" && t.WebhookBaseURL != ""
}

type WebhookConfig struct {
	// DedupeTTL bounds how long a provider event id is remembered.
	DedupeTTL time.Duration
}

const defaultTelnyxAPIBaseURL = "https://api.telnyx.com/v2"

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	if c.Redis.Host != "" {
		n, err := optionalInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Telnyx.APIKey = os.Getenv("TELNYX_API_KEY")
	c.Telnyx.ConnectionID = strings.TrimSpace(os.Getenv("TELNYX_CONNECTION_ID"))
	c.Telnyx.FromNumber = strings.TrimSpace(os.Getenv("TELNYX_FROM_NUMBER"))
	c.Telnyx.APIBaseURL = trimURL(os.Getenv("TELNYX_API_BASE_URL"))
	c.Telnyx.WebhookBaseURL = trimURL(os.Getenv("TELNYX_WEBHOOK_BASE_URL"))
	c.Telnyx.MediaStreamURL = trimURL(os.Getenv("TELNYX_MEDIA_STREAM_URL"))

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.WebhookBaseURL = trimURL(os.Getenv("TWILIO_WEBHOOK_BASE_URL"))
	c.Twilio.MediaStreamURL = trimURL(os.Getenv("TWILIO_MEDIA_STREAM_URL"))

	c.Webhooks.DedupeTTL = mustDuration("WEBHOOK_DEDUPE_TTL")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, validateApp(c.App, "APP_PORT")...)

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		// Unsigned Twilio webhooks are only tolerated outside production.
		if c.Twilio.AccountSID != "" && !c.Twilio.CanValidate() {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN and TWILIO_WEBHOOK_BASE_URL are required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Telnyx.APIBaseURL == "" {
		c.Telnyx.APIBaseURL = defaultTelnyxAPIBaseURL
	}
	for key, v := range map[string]string{
		"TELNYX_WEBHOOK_BASE_URL": c.Telnyx.WebhookBaseURL,
		"TWILIO_WEBHOOK_BASE_URL": c.Twilio.WebhookBaseURL,
	} {
		if v != "" && !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			errs = append(errs, fmt.Errorf("%s must be an http(s) URL, got %q", key, v))
		}
	}
	for key, v := range map[string]string{
		"TELNYX_MEDIA_STREAM_URL": c.Telnyx.MediaStreamURL,
		"TWILIO_MEDIA_STREAM_URL": c.Twilio.MediaStreamURL,
	} {
		if v != "" && !strings.HasPrefix(v, "ws://") && !strings.HasPrefix(v, "wss://") {
			errs = append(errs, fmt.Errorf("%s must be a ws(s) URL, got %q", key, v))
		}
	}

	if c.Webhooks.DedupeTTL <= 0 {
		c.Webhooks.DedupeTTL = 24 * time.Hour
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// RedisAddr is empty when Redis is not configured.
func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func validateApp(a AppConfig, portKey string) []error {
	var errs []error
	if a.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(a.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", a.Env))
	}
	if a.Port <= 0 || a.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be a valid port, got %d", portKey, a.Port))
	}
	return errs
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def, nil
	}
	return mustInt(key)
}

func optionalFloat(key string, def float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr[T any](errs []error, n T, err error) (T, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

// trimURL drops surrounding space and a trailing slash so paths can be appended.
func trimURL(v string) string {
	return strings.TrimRight(strings.TrimSpace(v), "/")
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}

package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig(env string) Config {
	return Config{
		App:   AppConfig{Env: env, Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callbridge"},
		Auth:  AuthConfig{JWTSecret: "secret"},
		Redis: RedisConfig{},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %v", want, err)
		}
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig("production")
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validConfig("local")
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("expected access ttl default, got %v", c.Auth.AccessTokenTTL)
	}
	if c.Telnyx.APIBaseURL != defaultTelnyxAPIBaseURL {
		t.Fatalf("expected telnyx api default, got %q", c.Telnyx.APIBaseURL)
	}
	if c.RedisAddr() != "" {
		t.Fatalf("expected redis disabled")
	}
}

func TestValidate_RejectsWrongSchemes(t *testing.T) {
	c := validConfig("local")
	c.Twilio.WebhookBaseURL = "wss://example.com"
	c.Telnyx.MediaStreamURL = "https://relay.example.com/media/telnyx"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected scheme errors")
	}
	if !strings.Contains(err.Error(), "TWILIO_WEBHOOK_BASE_URL") || !strings.Contains(err.Error(), "TELNYX_MEDIA_STREAM_URL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_ProductionTwilioNeedsSigningConfig(t *testing.T) {
	c := validConfig("production")
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	c.Twilio.AccountSID = "AC123"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected twilio signing config error")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_NAME", "n")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("TELNYX_WEBHOOK_BASE_URL", "https://api.example.com/")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.RedisAddr() != "cache:6379" {
		t.Fatalf("expected default redis port, got %q", c.RedisAddr())
	}
	if c.Telnyx.WebhookBaseURL != "https://api.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Telnyx.WebhookBaseURL)
	}
}

func TestTwilioConfig_Capabilities(t *testing.T) {
	tw := TwilioConfig{AuthToken: "t", WebhookBaseURL: "https://x"}
	if !tw.CanValidate() || tw.CanDial() {
		t.Fatalf("unexpected capabilities %+v", tw)
	}
	tw.AccountSID, tw.FromNumber = "AC1", "+1555"
	if !tw.CanDial() {
		t.Fatalf("expected CanDial")
	}
}

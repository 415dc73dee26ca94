package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Tolerance time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
	// AllowUnsigned accepts deliveries that carry no signature headers.
	// It is an explicit opt-in for local development; Validate refuses
	// it in production so a misconfigured flag cannot open the gate.
	AllowUnsigned bool `koanf:"allow_unsigned" mapstructure:"allow_unsigned"`
}

type CookieConfig struct {
	Name string        `koanf:"name" mapstructure:"name"`
	TTL  time.Duration `koanf:"ttl" mapstructure:"ttl"`
	// Secrets is the ordered signing secret list, newest first. New
	// cookies sign with the head; verification walks the whole list so
	// rotation never invalidates live sessions.
	Secrets []string `koanf:"secrets" mapstructure:"secrets"`
}

type OriginConfig struct {
	CacheTTL        time.Duration `koanf:"cache_ttl" mapstructure:"cache_ttl"`
	AllowDevOrigins bool          `koanf:"allow_dev_origins" mapstructure:"allow_dev_origins"`
}

type Config struct {
	ServiceName   string        `koanf:"service_name" mapstructure:"service_name"`
	ClientID      string        `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret  string        `koanf:"client_secret" mapstructure:"client_secret"`
	RedirectURI   string        `koanf:"redirect_uri" mapstructure:"redirect_uri"`
	AdminEntryURL string        `koanf:"admin_entry_url" mapstructure:"admin_entry_url"`
	ReauthURL     string        `koanf:"reauth_url" mapstructure:"reauth_url"`
	Production    bool          `koanf:"production" mapstructure:"production"`
	Webhooks      WebhookConfig `koanf:"webhooks" mapstructure:"webhooks"`
	Cookie        CookieConfig  `koanf:"cookie" mapstructure:"cookie"`
	Origins       OriginConfig  `koanf:"origins" mapstructure:"origins"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:   "storegate",
		AdminEntryURL: "/admin",
		ReauthURL:     "/auth/reauth",
		Webhooks: WebhookConfig{
			Tolerance: 5 * time.Minute,
		},
		Cookie: CookieConfig{
			Name: "storegate_session",
			TTL:  24 * time.Hour,
		},
		Origins: OriginConfig{
			CacheTTL: 5 * time.Minute,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.ClientID) == "" {
		return fmt.Errorf("core: client_id is required")
	}
	if strings.TrimSpace(c.ClientSecret) == "" {
		return fmt.Errorf("core: client_secret is required")
	}
	if c.Production && c.Webhooks.AllowUnsigned {
		return fmt.Errorf("core: webhooks.allow_unsigned is not allowed in production")
	}
	if c.Cookie.TTL <= 0 {
		return fmt.Errorf("core: cookie.ttl must be positive")
	}
	return nil
}

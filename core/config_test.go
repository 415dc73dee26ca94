package core

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := DefaultConfig()
	cfg.ClientID = "client_1"
	cfg.ClientSecret = "secret_1"
	return cfg
}

func TestConfigValidate(t *testing.T) {
	if err := validTestConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	t.Run("missing credentials", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected missing client id rejection")
		}
		cfg.ClientID = "client_1"
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected missing client secret rejection")
		}
	})

	t.Run("unsigned webhooks refused in production", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Webhooks.AllowUnsigned = true
		if err := cfg.Validate(); err != nil {
			t.Fatalf("allow_unsigned outside production should pass: %v", err)
		}
		cfg.Production = true
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("expected allow_unsigned rejection in production")
		}
		if !strings.Contains(err.Error(), "allow_unsigned") {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("cookie ttl must be positive", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Cookie.TTL = 0
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected cookie ttl rejection")
		}
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Webhooks.Tolerance != 5*time.Minute {
		t.Fatalf("unexpected webhook tolerance: %v", cfg.Webhooks.Tolerance)
	}
	if cfg.Cookie.TTL != 24*time.Hour {
		t.Fatalf("unexpected cookie ttl: %v", cfg.Cookie.TTL)
	}
	if cfg.Origins.CacheTTL != 5*time.Minute {
		t.Fatalf("unexpected origin cache ttl: %v", cfg.Origins.CacheTTL)
	}
	if cfg.Webhooks.AllowUnsigned {
		t.Fatalf("unsigned webhooks must be off by default")
	}
}

func TestGoOptionsResolver_RuntimeOverridesLoaded(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{ClientID: "from_config", ClientSecret: "secret_config"}
	runtime := Config{ClientID: "from_runtime", ClientSecret: "secret_runtime"}

	resolved, err := (GoOptionsResolver{}).Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ClientID != "from_runtime" {
		t.Fatalf("runtime layer should win, got %q", resolved.ClientID)
	}
	if resolved.Cookie.Name != defaults.Cookie.Name {
		t.Fatalf("defaults should fill gaps, got %q", resolved.Cookie.Name)
	}
}

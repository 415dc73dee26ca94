package setup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-storegate/core"
)

const (
	defaultProvisionTimeout      = 30 * time.Second
	maxProvisionResponseBodySize = 1 << 20
)

// ProvisionClient performs the per-tenant platform API calls the app
// needs right after install: webhook destinations and storefront
// scripts.
type ProvisionClient interface {
	RegisterWebhooks(ctx context.Context, session core.TenantSession) error
	SyncScripts(ctx context.Context, session core.TenantSession) error
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type APIClientConfig struct {
	// BaseURL is the platform API root; the tenant id is interpolated
	// into per-tenant paths.
	BaseURL string
	// CallbackURL is where registered webhooks will deliver.
	CallbackURL string
	// ScriptURL is the storefront script source to install.
	ScriptURL  string
	Timeout    time.Duration
	HTTPClient HTTPDoer
}

// APIClient provisions tenants over the platform REST API using the
// tenant's own access token. A conflict response means a previous
// attempt already provisioned the resource and counts as success.
type APIClient struct {
	config     APIClientConfig
	httpClient HTTPDoer
}

func NewAPIClient(cfg APIClientConfig) (*APIClient, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("setup: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultProvisionTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &APIClient{
		config: APIClientConfig{
			BaseURL:     baseURL,
			CallbackURL: strings.TrimSpace(cfg.CallbackURL),
			ScriptURL:   strings.TrimSpace(cfg.ScriptURL),
			Timeout:     timeout,
		},
		httpClient: httpClient,
	}, nil
}

func (c *APIClient) RegisterWebhooks(ctx context.Context, session core.TenantSession) error {
	return c.provision(ctx, session, "hooks", map[string]any{
		"scope":       "store/app/uninstalled",
		"destination": c.config.CallbackURL,
		"is_active":   true,
	})
}

func (c *APIClient) SyncScripts(ctx context.Context, session core.TenantSession) error {
	return c.provision(ctx, session, "content/scripts", map[string]any{
		"name":           "storegate",
		"src":            c.config.ScriptURL,
		"auto_uninstall": true,
		"load_method":    "defer",
		"location":       "footer",
		"kind":           "src",
	})
}

func (c *APIClient) provision(ctx context.Context, session core.TenantSession, path string, payload map[string]any) error {
	if c == nil || c.httpClient == nil {
		return fmt.Errorf("setup: api client is not configured")
	}
	if session.TenantID == "" || strings.TrimSpace(session.AccessToken) == "" {
		return fmt.Errorf("setup: tenant session with access token is required")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("setup: encode provision payload: %w", err)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/stores/%s/v3/%s", c.config.BaseURL, session.TenantID, path)
	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("setup: build provision request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Auth-Token", session.AccessToken)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("setup: provision request failed: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxProvisionResponseBodySize))

	switch {
	case response.StatusCode >= http.StatusOK && response.StatusCode < http.StatusMultipleChoices:
		return nil
	case response.StatusCode == http.StatusConflict || response.StatusCode == http.StatusUnprocessableEntity:
		// Already provisioned by an earlier attempt.
		return nil
	default:
		return fmt.Errorf("setup: provision %s returned status %d", path, response.StatusCode)
	}
}

var _ ProvisionClient = (*APIClient)(nil)

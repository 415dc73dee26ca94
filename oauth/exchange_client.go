package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/platform"
)

const (
	defaultExchangeRequestTimeout = 30 * time.Second
	maxExchangeResponseBodyBytes  = 1 << 20

	authorizationCodeGrantType = "authorization_code"
)

// ErrTokenExchangeFailed marks exchange failures that carry no more
// specific upstream cause.
var ErrTokenExchangeFailed = errors.New("oauth: token exchange failed")

// ExchangeError captures what the token endpoint returned. The
// response body may echo merchant data, so only the status code and
// the upstream error fields travel on the error.
type ExchangeError struct {
	StatusCode int
	ErrorCode  string
	Message    string
	Cause      error
}

func (e *ExchangeError) Error() string {
	if e == nil {
		return "oauth: token exchange failed"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("oauth: token exchange failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "oauth: token exchange failed: " + e.Message
}

func (e *ExchangeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ExchangeClientConfig struct {
	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Profile             platform.Profile
	TokenRequestTimeout time.Duration
	HTTPClient          HTTPDoer
	Logger              core.Logger
}

// ExchangeClient swaps an install-flow authorization code for a
// permanent tenant access token at the platform token endpoint.
type ExchangeClient struct {
	config     ExchangeClientConfig
	httpClient HTTPDoer
	logger     core.Logger
}

func NewExchangeClient(cfg ExchangeClientConfig) *ExchangeClient {
	timeout := cfg.TokenRequestTimeout
	if timeout <= 0 {
		timeout = defaultExchangeRequestTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &ExchangeClient{
		config: ExchangeClientConfig{
			ClientID:            strings.TrimSpace(cfg.ClientID),
			ClientSecret:        strings.TrimSpace(cfg.ClientSecret),
			RedirectURI:         strings.TrimSpace(cfg.RedirectURI),
			Profile:             cfg.Profile,
			TokenRequestTimeout: timeout,
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

type exchangeRequestBody struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
	Context      string `json:"context,omitempty"`
	Scope        string `json:"scope,omitempty"`
	GrantType    string `json:"grant_type"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
}

type exchangeResponseBody struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
	User        struct {
		ID    int64  `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Context          string `json:"context"`
	AccountUUID      string `json:"account_uuid"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *ExchangeClient) ExchangeCode(ctx context.Context, code, tenantContext, scope string) (core.ExchangeResult, error) {
	if c == nil || c.httpClient == nil {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "http client is not configured",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "client id and client secret are required",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "authorization code is required",
			Cause:   ErrTokenExchangeFailed,
		}
	}
	tokenURL := strings.TrimSpace(c.config.Profile.TokenEndpoint)
	if tokenURL == "" {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "platform profile has no token endpoint",
			Cause:   ErrTokenExchangeFailed,
		}
	}

	payload, err := json.Marshal(exchangeRequestBody{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		Code:         code,
		Context:      strings.TrimSpace(tenantContext),
		Scope:        strings.TrimSpace(scope),
		GrantType:    authorizationCodeGrantType,
		RedirectURI:  c.config.RedirectURI,
	})
	if err != nil {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "encode exchange request",
			Cause:   err,
		}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx, cancel := context.WithTimeout(ctx, c.config.TokenRequestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "build exchange request",
			Cause:   err,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.ExchangeResult{}, &ExchangeError{
			Message: "exchange request failed",
			Cause:   err,
		}
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxExchangeResponseBodyBytes+1))
	if readErr != nil {
		return core.ExchangeResult{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "read exchange response",
			Cause:      readErr,
		}
	}
	if int64(len(body)) > maxExchangeResponseBodyBytes {
		return core.ExchangeResult{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    fmt.Sprintf("exchange response exceeds %d bytes", maxExchangeResponseBodyBytes),
			Cause:      ErrTokenExchangeFailed,
		}
	}

	decoded := exchangeResponseBody{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &decoded); err != nil {
			return core.ExchangeResult{}, &ExchangeError{
				StatusCode: response.StatusCode,
				Message:    "decode exchange response",
				Cause:      err,
			}
		}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || decoded.ErrorCode != "" {
		c.logger.Error("token exchange rejected",
			"status", strconv.Itoa(response.StatusCode),
			"error_code", decoded.ErrorCode,
		)
		message := strings.TrimSpace(decoded.ErrorDescription)
		if message == "" {
			message = "token endpoint rejected the exchange"
		}
		return core.ExchangeResult{}, &ExchangeError{
			StatusCode: response.StatusCode,
			ErrorCode:  decoded.ErrorCode,
			Message:    message,
			Cause:      ErrTokenExchangeFailed,
		}
	}

	accessToken := strings.TrimSpace(decoded.AccessToken)
	if accessToken == "" {
		return core.ExchangeResult{}, &ExchangeError{
			StatusCode: response.StatusCode,
			Message:    "exchange response missing access token",
			Cause:      ErrTokenExchangeFailed,
		}
	}

	return core.ExchangeResult{
		AccessToken: accessToken,
		Scope:       parseScopeList(decoded.Scope),
		UserID:      decoded.User.ID,
		UserEmail:   strings.TrimSpace(decoded.User.Email),
		Context:     strings.TrimSpace(decoded.Context),
		AccountUUID: strings.TrimSpace(decoded.AccountUUID),
	}, nil
}

func parseScopeList(value string) []string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return []string{}
	}
	parts := strings.Fields(strings.ReplaceAll(trimmed, ",", " "))
	set := map[string]struct{}{}
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if _, ok := set[part]; ok {
			continue
		}
		set[part] = struct{}{}
		out = append(out, part)
	}
	sort.Strings(out)
	return out
}

var _ core.TokenExchanger = (*ExchangeClient)(nil)

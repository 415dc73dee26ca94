package resolver

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-storegate/core"
)

const defaultCookieTTL = 24 * time.Hour

type CookieCodecConfig struct {
	Name string
	// Secrets is ordered newest first. The first entry signs new
	// cookies; every entry verifies, so rotation never logs anyone out.
	Secrets []string
	TTL     time.Duration
	Now     func() time.Time
}

// CookieCodec signs and reads the tenant session cookie. The cookie
// carries only the tenant id and an issue timestamp, never the access
// token.
type CookieCodec struct {
	name    string
	secrets [][]byte
	ttl     time.Duration
	now     func() time.Time
}

func NewCookieCodec(cfg CookieCodecConfig) (*CookieCodec, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("resolver: cookie name is required")
	}
	secrets := make([][]byte, 0, len(cfg.Secrets))
	for _, secret := range cfg.Secrets {
		if strings.TrimSpace(secret) == "" {
			continue
		}
		secrets = append(secrets, []byte(secret))
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("resolver: at least one cookie secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCookieTTL
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CookieCodec{name: name, secrets: secrets, ttl: ttl, now: now}, nil
}

func (c *CookieCodec) Name() string {
	return c.name
}

// Encode builds the session cookie for a tenant, signed with the
// newest secret.
func (c *CookieCodec) Encode(tenantID core.TenantID) (*http.Cookie, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("resolver: tenant id is required")
	}
	payload := string(tenantID) + "|" + strconv.FormatInt(c.now().Unix(), 10)
	signature := signCookiePayload(c.secrets[0], payload)
	value := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + signature
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(c.ttl / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}, nil
}

// Expire builds the clearing counterpart of the session cookie.
func (c *CookieCodec) Expire() *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}
}

// Decode reads the tenant id from the request's session cookie. A
// missing cookie, a bad signature under every secret, or an issue
// timestamp older than the TTL all yield false.
func (c *CookieCodec) Decode(req *http.Request) (core.TenantID, bool) {
	cookie, err := req.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	encodedPayload, signature, found := strings.Cut(cookie.Value, ".")
	if !found {
		return "", false
	}
	rawPayload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return "", false
	}
	payload := string(rawPayload)
	if !c.signatureValid(payload, signature) {
		return "", false
	}

	value, issuedRaw, found := strings.Cut(payload, "|")
	if !found {
		return "", false
	}
	issuedUnix, err := strconv.ParseInt(issuedRaw, 10, 64)
	if err != nil {
		return "", false
	}
	issuedAt := time.Unix(issuedUnix, 0)
	now := c.now()
	if issuedAt.After(now) || now.Sub(issuedAt) > c.ttl {
		return "", false
	}
	return core.NormalizeTenantID(value)
}

func (c *CookieCodec) signatureValid(payload, signature string) bool {
	for _, secret := range c.secrets {
		expected := signCookiePayload(secret, payload)
		if len(expected) == len(signature) &&
			subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1 {
			return true
		}
	}
	return false
}

func signCookiePayload(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Package signedpayload verifies the JWTs the platform attaches to
// load, uninstall, and remove-user callbacks. Verification is stateless
// and every failure collapses to the one generic kind in core, so a
// remote caller cannot probe which check rejected a token.
package signedpayload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/platform"
)

var acceptedMethods = []string{"HS256", "HS384", "HS512"}

const defaultLeeway = 30 * time.Second

type Config struct {
	ClientID     string
	ClientSecret string
	Profile      platform.Profile
	Leeway       time.Duration
	Now          func() time.Time
}

type Verifier struct {
	config Config
	parser *jwt.Parser
}

func New(cfg Config) *Verifier {
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	cfg.Leeway = leeway
	cfg.Now = now
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods(acceptedMethods),
		jwt.WithLeeway(leeway),
		jwt.WithTimeFunc(now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Profile.EnforceAudienceIssuer {
		parserOptions = append(parserOptions,
			jwt.WithAudience(cfg.ClientID),
			jwt.WithIssuer(cfg.Profile.Issuer),
		)
	}

	return &Verifier{
		config: cfg,
		parser: jwt.NewParser(parserOptions...),
	}
}

// Verify authenticates a callback token and resolves the tenant it
// belongs to. Resolution priority: the explicit tenant claim, then the
// subject claim, then the context claim (the last two both carry
// "stores/{id}"-shaped values).
func (v *Verifier) Verify(token string) (core.SignedPayload, error) {
	if v == nil || v.parser == nil {
		return core.SignedPayload{}, verificationFailed(fmt.Errorf("verifier is not configured"))
	}
	secret := v.config.ClientSecret
	if secret == "" {
		return core.SignedPayload{}, verificationFailed(fmt.Errorf("client secret is required"))
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return core.SignedPayload{}, verificationFailed(fmt.Errorf("token is required"))
	}

	claims := jwt.MapClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return core.SignedPayload{}, verificationFailed(err)
	}
	if parsed == nil || !parsed.Valid {
		return core.SignedPayload{}, verificationFailed(fmt.Errorf("token is not valid"))
	}

	tenantID, err := v.resolveTenantID(claims)
	if err != nil {
		return core.SignedPayload{}, verificationFailed(err)
	}

	payload := core.SignedPayload{TenantID: tenantID}
	if user, ok := claims["user"].(map[string]any); ok {
		payload.UserID = readInt64(user["id"])
		payload.UserEmail = readString(user["email"])
	}
	if owner, ok := claims["owner"].(map[string]any); ok {
		payload.OwnerID = readInt64(owner["id"])
		payload.OwnerEmail = readString(owner["email"])
	}
	if issuedAt, iatErr := claims.GetIssuedAt(); iatErr == nil && issuedAt != nil {
		payload.IssuedAt = issuedAt.Time.UTC()
	}
	if payload.UserID <= 0 {
		return core.SignedPayload{}, verificationFailed(fmt.Errorf("user claim is missing"))
	}
	return payload, nil
}

func (v *Verifier) resolveTenantID(claims jwt.MapClaims) (core.TenantID, error) {
	profile := v.config.Profile

	if claim := strings.TrimSpace(profile.TenantClaim); claim != "" {
		if raw := readString(claims[claim]); raw != "" {
			if tenantID, ok := core.NormalizeTenantID(raw); ok {
				return tenantID, nil
			}
			return "", fmt.Errorf("tenant claim %q is malformed", claim)
		}
	}

	subjectClaim := strings.TrimSpace(profile.SubjectClaim)
	if subjectClaim == "" {
		subjectClaim = "sub"
	}
	if raw := readString(claims[subjectClaim]); raw != "" {
		if tenantID, err := core.ExtractTenantID(raw); err == nil {
			return tenantID, nil
		}
	}

	contextClaim := strings.TrimSpace(profile.ContextClaim)
	if contextClaim == "" {
		contextClaim = "context"
	}
	if raw := readString(claims[contextClaim]); raw != "" {
		if tenantID, err := core.ExtractTenantID(raw); err == nil {
			return tenantID, nil
		}
	}

	return "", fmt.Errorf("no tenant id claim resolved")
}

func verificationFailed(cause error) error {
	if cause == nil {
		return core.ErrVerificationFailed
	}
	return fmt.Errorf("%w: %v", core.ErrVerificationFailed, cause)
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	default:
		return ""
	}
}

func readInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		parsed, err := typed.Int64()
		if err == nil {
			return parsed
		}
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.SignedPayloadVerifier = (*Verifier)(nil)

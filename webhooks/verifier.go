package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-storegate/adapters/gologger"
	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/platform"
)

const (
	defaultTolerance   = 5 * time.Minute
	secretPrefixMarker = "whsec_"
)

var (
	ErrMissingSignature        = errors.New("webhooks: signature headers are missing")
	ErrInvalidTimestamp        = errors.New("webhooks: timestamp is not numeric")
	ErrTimestampOutOfTolerance = errors.New("webhooks: timestamp outside tolerance window")
	ErrSignatureMismatch       = errors.New("webhooks: no signature candidate matched")
)

type VerifierConfig struct {
	Secret     string
	Tolerance  time.Duration
	HeaderSets []platform.HeaderAliasSet
	// AllowUnsigned accepts deliveries with no signature header triple
	// at all. Config validation refuses this in production; when it is
	// on, every unsigned acceptance is logged.
	AllowUnsigned bool

	// LoggerProvider wins over Logger when both are set; the verifier
	// logs under the webhooks component channel either way.
	LoggerProvider core.LoggerProvider
	Logger         core.Logger

	Now func() time.Time
}

// Verifier checks webhook deliveries against the Standard Webhooks
// signing convention: base64(HMAC-SHA256(secret, "{id}.{timestamp}.{body}")).
// It is a pure function of body, headers, and secret; safe for
// unbounded concurrent use.
type Verifier struct {
	config VerifierConfig
}

func New(cfg VerifierConfig) *Verifier {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = defaultTolerance
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if len(cfg.HeaderSets) == 0 {
		cfg.HeaderSets = platform.StandardWebhookHeaderSets()
	}
	cfg.Logger = gologger.ForComponent(gologger.ComponentWebhooks, cfg.LoggerProvider, cfg.Logger)
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	return &Verifier{config: cfg}
}

// Envelope extracts the delivery triple from request headers, trying
// each configured alias set in order. ok is false when no set is
// present, which callers route through the unsigned policy.
func (v *Verifier) Envelope(header http.Header, body []byte) (core.WebhookEnvelope, bool) {
	sets := platform.StandardWebhookHeaderSets()
	if v != nil && len(v.config.HeaderSets) > 0 {
		sets = v.config.HeaderSets
	}
	for _, set := range sets {
		id := strings.TrimSpace(header.Get(set.ID))
		timestamp := strings.TrimSpace(header.Get(set.Timestamp))
		signature := strings.TrimSpace(header.Get(set.Signature))
		if id == "" && timestamp == "" && signature == "" {
			continue
		}
		return core.WebhookEnvelope{
			ID:              id,
			Timestamp:       timestamp,
			SignatureHeader: signature,
			RawBody:         body,
		}, true
	}
	return core.WebhookEnvelope{RawBody: body}, false
}

// Verify authenticates one delivery. The signed content is the exact
// byte string "{id}.{timestamp}.{rawBody}" over the untouched body; a
// re-serialized body need not byte-match what the sender signed.
func (v *Verifier) Verify(envelope core.WebhookEnvelope) error {
	if v == nil {
		return verificationFailed(fmt.Errorf("webhooks: verifier is not configured"))
	}

	if envelope.ID == "" && envelope.Timestamp == "" && envelope.SignatureHeader == "" {
		if v.config.AllowUnsigned {
			v.config.Logger.Warn("accepting unsigned webhook delivery",
				"allow_unsigned", true,
			)
			return nil
		}
		return verificationFailed(ErrMissingSignature)
	}
	if envelope.ID == "" || envelope.Timestamp == "" || envelope.SignatureHeader == "" {
		return verificationFailed(ErrMissingSignature)
	}

	timestamp, err := strconv.ParseInt(envelope.Timestamp, 10, 64)
	if err != nil {
		return verificationFailed(fmt.Errorf("%w: %q", ErrInvalidTimestamp, envelope.Timestamp))
	}
	now := v.config.Now().UTC().Unix()
	skew := now - timestamp
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Second > v.config.Tolerance {
		return verificationFailed(fmt.Errorf("%w: skew %ds", ErrTimestampOutOfTolerance, skew))
	}

	secretBytes, err := DecodeSecret(v.config.Secret)
	if err != nil {
		return verificationFailed(err)
	}

	signedContent := make([]byte, 0, len(envelope.ID)+len(envelope.Timestamp)+len(envelope.RawBody)+2)
	signedContent = append(signedContent, envelope.ID...)
	signedContent = append(signedContent, '.')
	signedContent = append(signedContent, envelope.Timestamp...)
	signedContent = append(signedContent, '.')
	signedContent = append(signedContent, envelope.RawBody...)

	mac := hmac.New(sha256.New, secretBytes)
	_, _ = mac.Write(signedContent)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// space-separated candidates support rotation: the sender may sign
	// under both old and new secret during a rotation window
	for _, candidate := range strings.Fields(envelope.SignatureHeader) {
		candidate = signaturePayload(candidate)
		if candidate == "" {
			continue
		}
		if len(candidate) != len(expected) {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1 {
			return nil
		}
	}
	return verificationFailed(ErrSignatureMismatch)
}

// signaturePayload strips an optional "scheme," tag from a candidate:
// the payload is everything after the first comma, or the whole token
// when no comma is present.
func signaturePayload(candidate string) string {
	if idx := strings.IndexByte(candidate, ','); idx >= 0 {
		return candidate[idx+1:]
	}
	return candidate
}

// DecodeSecret recovers raw key bytes from the three encodings secrets
// arrive in: a "whsec_"-prefixed base64 value, a bare base64 value, or
// plain UTF-8 bytes. No configuration decides; the shape does.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("webhooks: signing secret is required")
	}
	if strings.HasPrefix(secret, secretPrefixMarker) {
		decoded, err := base64.StdEncoding.DecodeString(secret[len(secretPrefixMarker):])
		if err != nil {
			return nil, fmt.Errorf("webhooks: decode prefixed secret: %w", err)
		}
		return decoded, nil
	}
	if looksLikeBase64(secret) {
		if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil {
			return decoded, nil
		}
	}
	return []byte(secret), nil
}

func looksLikeBase64(value string) bool {
	if len(value) == 0 || len(value)%4 != 0 {
		return false
	}
	padding := 0
	for i, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/':
		case r == '=':
			padding++
			if i < len(value)-2 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func verificationFailed(cause error) error {
	if cause == nil {
		return core.ErrVerificationFailed
	}
	return fmt.Errorf("%w: %v", core.ErrVerificationFailed, cause)
}

var _ core.WebhookVerifier = (*Verifier)(nil)

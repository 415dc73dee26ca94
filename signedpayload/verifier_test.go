package signedpayload

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/platform"
)

const (
	testSecret   = "client_secret"
	testClientID = "client_id"
)

func testNow() time.Time {
	return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
}

func newTestVerifier(t *testing.T, profile platform.Profile) *Verifier {
	t.Helper()
	return New(Config{
		ClientID:     testClientID,
		ClientSecret: testSecret,
		Profile:      profile,
		Now:          testNow,
	})
}

func signToken(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func baseClaims(now time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"aud":   testClientID,
		"iss":   "bc",
		"iat":   now.Add(-time.Minute).Unix(),
		"exp":   now.Add(time.Hour).Unix(),
		"jti":   "jti_1",
		"sub":   "stores/abc123",
		"user":  map[string]any{"id": float64(42), "email": "user@example.com"},
		"owner": map[string]any{"id": float64(42), "email": "user@example.com"},
	}
}

func TestVerify_ValidToken(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	token := signToken(t, testSecret, jwt.SigningMethodHS256, baseClaims(testNow()))

	payload, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if payload.TenantID != core.TenantID("abc123") {
		t.Fatalf("unexpected tenant id %q", payload.TenantID)
	}
	if payload.UserID != 42 || payload.UserEmail != "user@example.com" {
		t.Fatalf("unexpected user resolution: %+v", payload)
	}
	if payload.OwnerID != 42 {
		t.Fatalf("unexpected owner id %d", payload.OwnerID)
	}
}

func TestVerify_HS384AndHS512Accepted(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	for _, method := range []jwt.SigningMethod{jwt.SigningMethodHS384, jwt.SigningMethodHS512} {
		token := signToken(t, testSecret, method, baseClaims(testNow()))
		if _, err := verifier.Verify(token); err != nil {
			t.Fatalf("verify with %s: %v", method.Alg(), err)
		}
	}
}

func TestVerify_StoreHashClaimWinsOverSubject(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	claims := baseClaims(testNow())
	claims["store_hash"] = "explicit99"
	claims["sub"] = "stores/fallback1"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	payload, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if payload.TenantID != core.TenantID("explicit99") {
		t.Fatalf("expected explicit claim to win, got %q", payload.TenantID)
	}
}

func TestVerify_ContextClaimFallback(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	claims := baseClaims(testNow())
	delete(claims, "sub")
	claims["context"] = "stores/ctx42/orders"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	payload, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if payload.TenantID != core.TenantID("ctx42") {
		t.Fatalf("expected context fallback, got %q", payload.TenantID)
	}
}

func TestVerify_BadSignature(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	token := signToken(t, "different_secret", jwt.SigningMethodHS256, baseClaims(testNow()))

	_, err := verifier.Verify(token)
	if !errors.Is(err, core.ErrVerificationFailed) {
		t.Fatalf("expected generic verification failure, got %v", err)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	claims := baseClaims(testNow())
	claims["exp"] = testNow().Add(-time.Hour).Unix()
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, core.ErrVerificationFailed) {
		t.Fatalf("expected generic verification failure, got %v", err)
	}
}

func TestVerify_AudienceEnforcementPerProfile(t *testing.T) {
	claims := baseClaims(testNow())
	claims["aud"] = "someone_else"
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	enforcing := newTestVerifier(t, platform.BigCommerce())
	if _, err := enforcing.Verify(token); !errors.Is(err, core.ErrVerificationFailed) {
		t.Fatalf("expected audience rejection, got %v", err)
	}

	lenient := newTestVerifier(t, platform.Ecwid())
	if _, err := lenient.Verify(token); err != nil {
		t.Fatalf("lenient profile should skip audience enforcement: %v", err)
	}
}

func TestVerify_MissingUserClaim(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	claims := baseClaims(testNow())
	delete(claims, "user")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, core.ErrVerificationFailed) {
		t.Fatalf("expected generic verification failure, got %v", err)
	}
}

func TestVerify_NoTenantClaim(t *testing.T) {
	verifier := newTestVerifier(t, platform.BigCommerce())
	claims := baseClaims(testNow())
	delete(claims, "sub")
	token := signToken(t, testSecret, jwt.SigningMethodHS256, claims)

	if _, err := verifier.Verify(token); !errors.Is(err, core.ErrVerificationFailed) {
		t.Fatalf("expected generic verification failure, got %v", err)
	}
}

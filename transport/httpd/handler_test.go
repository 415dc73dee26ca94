package httpd

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/events"
	"github.com/goliatone/go-storegate/origins"
	"github.com/goliatone/go-storegate/platform"
	"github.com/goliatone/go-storegate/resolver"
	"github.com/goliatone/go-storegate/webhooks"
)

const testWebhookSecret = "whsec_dGVzdC1zaWduaW5nLXNlY3JldA=="

func testNow() time.Time {
	return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
}

type stubGate struct {
	installFn func(ctx context.Context, req core.InstallRequest) (core.InstallResult, error)
	loadFn    func(ctx context.Context, token string) (core.LoadResult, error)
	sessions  map[core.TenantID]core.TenantSession
}

func (g *stubGate) Install(ctx context.Context, req core.InstallRequest) (core.InstallResult, error) {
	if g.installFn == nil {
		return core.InstallResult{}, fmt.Errorf("install not configured")
	}
	return g.installFn(ctx, req)
}

func (g *stubGate) Load(ctx context.Context, token string) (core.LoadResult, error) {
	if g.loadFn == nil {
		return core.LoadResult{}, fmt.Errorf("load not configured")
	}
	return g.loadFn(ctx, token)
}

func (g *stubGate) Uninstall(_ context.Context, token string) (core.TenantID, error) {
	if token == "valid.jwt.token" {
		return "abc123", nil
	}
	return "", verificationError()
}

func (g *stubGate) RemoveUser(_ context.Context, token string) (core.TenantID, error) {
	if token == "valid.jwt.token" {
		return "abc123", nil
	}
	return "", verificationError()
}

func (g *stubGate) GetTenantSession(_ context.Context, tenantID core.TenantID) (core.TenantSession, error) {
	if session, ok := g.sessions[tenantID]; ok {
		return session, nil
	}
	return core.TenantSession{}, goerrors.New("core: tenant session not found", goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.GateErrorTenantNotFound)
}

func verificationError() error {
	return goerrors.New("verification failed", goerrors.CategoryAuth).
		WithCode(http.StatusUnauthorized).
		WithTextCode(core.GateErrorUnauthorized)
}

func newTestCookies(t *testing.T) *resolver.CookieCodec {
	t.Helper()
	codec, err := resolver.NewCookieCodec(resolver.CookieCodecConfig{
		Name:    "storegate_session",
		Secrets: []string{"cookie-secret-current"},
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("new cookie codec: %v", err)
	}
	return codec
}

func newTestHandler(t *testing.T, gate *stubGate) *Handler {
	t.Helper()
	cookies := newTestCookies(t)

	sessions := core.NewMemorySessionStore()
	for tenantID := range gate.sessions {
		if _, err := sessions.Upsert(context.Background(), core.UpsertSessionInput{
			TenantID:    tenantID,
			AccessToken: "tok_" + string(tenantID),
			State:       core.SessionStateInstalled,
		}); err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}
	res, err := resolver.New(resolver.Config{
		Sessions:  sessions,
		Cookies:   cookies,
		ReauthURL: "https://app.example.com/reauth",
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}

	cache, err := origins.NewCacheService(origins.DefaultCacheTTL)
	if err != nil {
		t.Fatalf("new origin cache: %v", err)
	}
	allowlist, err := origins.New(origins.Config{
		Profile: platform.BigCommerce(),
		Cache:   cache,
	})
	if err != nil {
		t.Fatalf("new allowlist: %v", err)
	}

	handler, err := NewHandler(Config{
		Gate: gate,
		Webhooks: webhooks.New(webhooks.VerifierConfig{
			Secret: testWebhookSecret,
			Now:    testNow,
		}),
		Cookies:       cookies,
		Resolver:      res,
		Origins:       allowlist,
		AdminEntryURL: "https://app.example.com/admin",
	})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func signWebhook(t *testing.T, id, timestamp string, body []byte) string {
	t.Helper()
	secret, err := webhooks.DecodeSecret(testWebhookSecret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHandleInstall(t *testing.T) {
	gate := &stubGate{
		installFn: func(_ context.Context, req core.InstallRequest) (core.InstallResult, error) {
			if req.Code != "auth_code_1" || req.Context != "stores/abc123" {
				t.Fatalf("unexpected install request: %#v", req)
			}
			return core.InstallResult{TenantID: "abc123"}, nil
		},
	}
	handler := newTestHandler(t, gate)
	router := handler.Router()

	t.Run("missing parameters rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/install?code=auth_code_1", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("success sets cookie and redirects", func(t *testing.T) {
		target := "/auth/install?code=auth_code_1&scope=store_v2_orders&context=" + url.QueryEscape("stores/abc123")
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d: %s", rec.Code, rec.Body.String())
		}
		if got := rec.Header().Get("Location"); got != "https://app.example.com/admin" {
			t.Fatalf("unexpected redirect target: %q", got)
		}
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != "storegate_session" {
			t.Fatalf("expected session cookie, got %#v", cookies)
		}
		if !cookies[0].HttpOnly || !cookies[0].Secure || cookies[0].SameSite != http.SameSiteNoneMode {
			t.Fatalf("cookie attributes wrong: %#v", cookies[0])
		}
	})
}

func TestHandleLoad(t *testing.T) {
	gate := &stubGate{
		loadFn: func(_ context.Context, token string) (core.LoadResult, error) {
			if token != "valid.jwt.token" {
				return core.LoadResult{}, verificationError()
			}
			return core.LoadResult{TenantID: "abc123"}, nil
		},
	}
	handler := newTestHandler(t, gate)
	router := handler.Router()

	t.Run("missing token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/load", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("verification failure yields 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/load?signed_payload_jwt=tampered.jwt.token", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		var body errorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body.Code != core.GateErrorUnauthorized {
			t.Fatalf("unexpected error code: %q", body.Code)
		}
	})

	t.Run("success redirects with tenant context fallback", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/load?signed_payload_jwt=valid.jwt.token", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rec.Code)
		}
		location := rec.Header().Get("Location")
		if !strings.Contains(location, "context="+url.QueryEscape("stores/abc123")) {
			t.Fatalf("redirect is missing tenant context fallback: %q", location)
		}
		if len(rec.Result().Cookies()) != 1 {
			t.Fatalf("expected session cookie on load")
		}
	})
}

func TestHandleUninstallAndRemoveUser(t *testing.T) {
	handler := newTestHandler(t, &stubGate{})
	router := handler.Router()

	for _, path := range []string{"/auth/uninstall", "/auth/remove-user"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path+"?signed_payload_jwt=valid.jwt.token", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			req = httptest.NewRequest(http.MethodGet, path+"?signed_payload_jwt=bad.jwt.token", nil)
			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401 for bad token, got %d", rec.Code)
			}

			req = httptest.NewRequest(http.MethodGet, path, nil)
			rec = httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 for missing token, got %d", rec.Code)
			}
		})
	}
}

func TestHandleWebhook(t *testing.T) {
	gate := &stubGate{sessions: map[core.TenantID]core.TenantSession{
		"abc123": {TenantID: "abc123", State: core.SessionStateLoaded},
	}}
	handler := newTestHandler(t, gate)
	router := handler.Router()

	timestamp := fmt.Sprintf("%d", testNow().Unix())
	deliver := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", strings.NewReader(string(body)))
		req.Header.Set("webhook-id", "msg_1")
		req.Header.Set("webhook-timestamp", timestamp)
		req.Header.Set("webhook-signature", signature)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid delivery accepted", func(t *testing.T) {
		body := []byte(`{"producer":"stores/abc123","scope":"store/order/created","data":{"id":101}}`)
		rec := deliver(body, signWebhook(t, "msg_1", timestamp, body))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
	})

	t.Run("bad signature rejected", func(t *testing.T) {
		body := []byte(`{"producer":"stores/abc123","scope":"store/order/created"}`)
		rec := deliver(body, signWebhook(t, "msg_other", timestamp, body))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("unsigned rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", strings.NewReader(`{"producer":"stores/abc123"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for unsigned delivery, got %d", rec.Code)
		}
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		body := []byte(`{"producer":`)
		rec := deliver(body, signWebhook(t, "msg_1", timestamp, body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("missing producer rejected", func(t *testing.T) {
		body := []byte(`{"scope":"store/order/created"}`)
		rec := deliver(body, signWebhook(t, "msg_1", timestamp, body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("malformed producer rejected", func(t *testing.T) {
		body := []byte(`{"producer":"garbage"}`)
		rec := deliver(body, signWebhook(t, "msg_1", timestamp, body))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown tenant yields 404", func(t *testing.T) {
		body := []byte(`{"producer":"stores/zzz999"}`)
		rec := deliver(body, signWebhook(t, "msg_1", timestamp, body))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestRequireSession(t *testing.T) {
	gate := &stubGate{sessions: map[core.TenantID]core.TenantSession{
		"abc123": {TenantID: "abc123", State: core.SessionStateLoaded},
	}}
	handler := newTestHandler(t, gate)

	var seen resolver.Result
	protected := handler.RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, ok := SessionFromContext(r.Context())
		if !ok {
			t.Fatalf("expected session on request context")
		}
		seen = result
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("resolved session passes through", func(t *testing.T) {
		cookie, err := newTestCookies(t).Encode("abc123")
		if err != nil {
			t.Fatalf("encode cookie: %v", err)
		}
		req := httptest.NewRequest(http.MethodGet, "/admin/settings", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if seen.TenantID != "abc123" {
			t.Fatalf("unexpected resolved tenant: %q", seen.TenantID)
		}
	})

	t.Run("unresolved API request gets 401 JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/settings", nil)
		req.Header.Set("Accept", "application/json")
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
			t.Fatalf("expected JSON challenge, got %q", ct)
		}
	})
}

func TestStorefrontCORS(t *testing.T) {
	handler := newTestHandler(t, &stubGate{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	guarded := handler.StorefrontCORS(next)

	t.Run("derived origin is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/storefront/recommendations?tenant_id=abc123", nil)
		req.Header.Set("Origin", "https://store-abc123.mybigcommerce.com")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://store-abc123.mybigcommerce.com" {
			t.Fatalf("expected echoed origin, got %q", got)
		}
		if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
			t.Fatalf("expected credentials header")
		}
	})

	t.Run("preflight for allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/storefront/recommendations?tenant_id=abc123", nil)
		req.Header.Set("Origin", "https://store-abc123.mybigcommerce.com")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 preflight, got %d", rec.Code)
		}
		if rec.Header().Get("Access-Control-Allow-Methods") == "" {
			t.Fatalf("expected preflight method list")
		}
	})

	t.Run("foreign origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/storefront/recommendations?tenant_id=abc123", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("rejected origin must not be echoed")
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("non-preflight request should still reach the handler, got %d", rec.Code)
		}
	})

	t.Run("missing tenant id gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/storefront/recommendations", nil)
		req.Header.Set("Origin", "https://store-abc123.mybigcommerce.com")
		rec := httptest.NewRecorder()
		guarded.ServeHTTP(rec, req)
		if rec.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Fatalf("unkeyed request must not get CORS headers")
		}
	})
}

func TestHandleWebhook_DispatchesEvents(t *testing.T) {
	gate := &stubGate{sessions: map[core.TenantID]core.TenantSession{
		"abc123": {TenantID: "abc123", State: core.SessionStateLoaded},
	}}
	handler := newTestHandler(t, gate)

	dispatcher := events.NewDispatcher(events.NewMemoryClaimStore())
	var handled []events.Event
	err := dispatcher.Register(events.OnScope("store/app/uninstalled", func(_ context.Context, evt events.Event) error {
		handled = append(handled, evt)
		return nil
	}))
	if err != nil {
		t.Fatalf("register handler: %v", err)
	}
	handler.config.Events = dispatcher
	router := handler.Router()

	timestamp := fmt.Sprintf("%d", testNow().Unix())
	body := []byte(`{"producer":"stores/abc123","scope":"store/app/uninstalled","data":{"user":{"id":42}}}`)
	deliver := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", strings.NewReader(string(body)))
		req.Header.Set("webhook-id", "msg_evt_1")
		req.Header.Set("webhook-timestamp", timestamp)
		req.Header.Set("webhook-signature", signWebhook(t, "msg_evt_1", timestamp, body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := deliver(); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(handled) != 1 {
		t.Fatalf("expected one handled event, got %d", len(handled))
	}
	if handled[0].TenantID != "abc123" || handled[0].DeliveryID != "msg_evt_1" {
		t.Fatalf("unexpected event: %+v", handled[0])
	}

	if rec := deliver(); rec.Code != http.StatusOK {
		t.Fatalf("expected redelivery acked, got %d", rec.Code)
	}
	if len(handled) != 1 {
		t.Fatalf("expected redelivery suppressed, got %d handled events", len(handled))
	}
}

func TestHandleWebhook_DispatchErrorKeepsEnvelopeStatus(t *testing.T) {
	// A delivery the dispatcher rejects as bad input must answer 400,
	// not a blanket 500.
	gate := &stubGate{sessions: map[core.TenantID]core.TenantSession{
		"abc123": {TenantID: "abc123", State: core.SessionStateLoaded},
	}}
	handler := newTestHandler(t, gate)
	handler.config.Events = events.NewDispatcher(events.NewMemoryClaimStore())
	router := handler.Router()

	timestamp := fmt.Sprintf("%d", testNow().Unix())
	body := []byte(`{"producer":"stores/abc123","data":{"user":{"id":42}}}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/platform", strings.NewReader(string(body)))
	req.Header.Set("webhook-id", "msg_evt_noscope")
	req.Header.Set("webhook-timestamp", timestamp)
	req.Header.Set("webhook-signature", signWebhook(t, "msg_evt_noscope", timestamp, body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var errResp errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Code != core.GateErrorBadInput {
		t.Fatalf("unexpected error code %q", errResp.Code)
	}
}

package httpd

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/resolver"
)

type sessionContextKey struct{}

// SessionFromContext returns the resolved admin session placed on the
// request context by RequireSession.
func SessionFromContext(ctx context.Context) (resolver.Result, bool) {
	result, ok := ctx.Value(sessionContextKey{}).(resolver.Result)
	return result, ok
}

// RequireSession authenticates admin requests through the resolution
// ladder. Unresolved requests get the resolver's challenge: 401 JSON
// for API-like calls, a redirect for document navigation.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h == nil || h.config.Resolver == nil {
			respondError(w, http.StatusInternalServerError, core.GateErrorInternal, "An unexpected error occurred")
			return
		}
		result, err := h.config.Resolver.Resolve(r)
		if err != nil {
			h.config.Resolver.Challenge(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, result)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StorefrontCORS gates cross-origin storefront calls on the per-tenant
// origin allowlist. Rejected origins get no CORS headers at all; the
// allowed origin is echoed back, never a wildcard.
func (h *Handler) StorefrontCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" || h == nil || h.config.Origins == nil {
			h.passthrough(next, w, r)
			return
		}

		tenantID, ok := corsTenantID(r)
		if !ok {
			h.passthrough(next, w, r)
			return
		}

		allowed, ok := h.config.Origins.Allow(r.Context(), tenantID, origin)
		if !ok {
			h.passthrough(next, w, r)
			return
		}

		header := w.Header()
		header.Set("Access-Control-Allow-Origin", allowed)
		header.Set("Access-Control-Allow-Credentials", "true")
		header.Add("Vary", "Origin")
		if r.Method == http.MethodOptions {
			header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, X-Store-Context")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) passthrough(next http.Handler, w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	next.ServeHTTP(w, r)
}

func corsTenantID(r *http.Request) (core.TenantID, bool) {
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("tenant_id")); raw != "" {
		return core.NormalizeTenantID(raw)
	}
	if raw := strings.TrimSpace(q.Get(queryParamContext)); raw != "" {
		if tenantID, err := core.ExtractTenantID(raw); err == nil {
			return tenantID, true
		}
		return core.NormalizeTenantID(raw)
	}
	if raw := strings.TrimSpace(r.Header.Get(resolver.TenantHeader)); raw != "" {
		return core.NormalizeTenantID(raw)
	}
	return "", false
}

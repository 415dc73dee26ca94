package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-storegate/adapters/gologger"
	"github.com/goliatone/go-storegate/core"
)

const (
	// ContextQueryParam carries the tenant context on embedded admin
	// navigations where third-party cookies are blocked.
	ContextQueryParam = "context"

	// TenantHeader is set by the embedded admin UI's own fetch calls.
	TenantHeader = "X-Store-Context"

	xhrMarkerHeader = "X-Requested-With"
	xhrMarkerValue  = "XMLHttpRequest"
)

// Source names the ladder rung that produced a tenant id.
type Source string

const (
	SourceCookie  Source = "cookie"
	SourceQuery   Source = "query"
	SourceHeader  Source = "header"
	SourceReferer Source = "referer"
)

type Config struct {
	Sessions        core.SessionStore
	Cookies         *CookieCodec
	ReauthURL       string
	APIPathPrefixes []string

	// LoggerProvider wins over Logger when both are set; the resolver
	// logs under its own component channel either way.
	LoggerProvider core.LoggerProvider
	Logger         core.Logger
}

// Result is a successfully authenticated admin request.
type Result struct {
	Session  core.TenantSession
	TenantID core.TenantID
	Source   Source
}

// Resolver authenticates ordinary admin requests by walking a ladder
// of tenant id carriers, first success wins. It only reads; resolving
// the same request concurrently is harmless.
type Resolver struct {
	sessions        core.SessionStore
	cookies         *CookieCodec
	reauthURL       string
	apiPathPrefixes []string
	logger          core.Logger
}

func New(cfg Config) (*Resolver, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("resolver: session store is required")
	}
	if cfg.Cookies == nil {
		return nil, fmt.Errorf("resolver: cookie codec is required")
	}
	prefixes := cfg.APIPathPrefixes
	if len(prefixes) == 0 {
		prefixes = []string{"/api/"}
	}
	logger := gologger.ForComponent(gologger.ComponentResolver, cfg.LoggerProvider, cfg.Logger)
	return &Resolver{
		sessions:        cfg.Sessions,
		cookies:         cfg.Cookies,
		reauthURL:       strings.TrimSpace(cfg.ReauthURL),
		apiPathPrefixes: prefixes,
		logger:          logger,
	}, nil
}

type candidate struct {
	tenantID core.TenantID
	source   Source
}

// Resolve walks the ladder: signed cookie, context query parameter,
// custom header, then the Referer's query string. Every candidate is
// normalized before use; a candidate that normalizes but has no stored
// session falls through to the next rung. A store failure is not a
// missing session and is returned as-is.
func (r *Resolver) Resolve(req *http.Request) (Result, error) {
	for _, cand := range r.candidates(req) {
		session, err := r.sessions.Get(req.Context(), cand.tenantID)
		if err != nil {
			if errors.Is(err, core.ErrSessionNotFound) {
				continue
			}
			return Result{}, err
		}
		return Result{Session: session, TenantID: cand.tenantID, Source: cand.source}, nil
	}
	return Result{}, core.ErrSessionNotFound
}

func (r *Resolver) candidates(req *http.Request) []candidate {
	out := make([]candidate, 0, 4)
	if tenantID, ok := r.cookies.Decode(req); ok {
		out = append(out, candidate{tenantID: tenantID, source: SourceCookie})
	}
	if tenantID, ok := tenantFromValue(req.URL.Query().Get(ContextQueryParam)); ok {
		out = append(out, candidate{tenantID: tenantID, source: SourceQuery})
	}
	if tenantID, ok := tenantFromValue(req.Header.Get(TenantHeader)); ok {
		out = append(out, candidate{tenantID: tenantID, source: SourceHeader})
	}
	if tenantID, ok := tenantFromReferer(req.Header.Get("Referer")); ok {
		out = append(out, candidate{tenantID: tenantID, source: SourceReferer})
	}
	return out
}

// tenantFromValue accepts a bare tenant id or a "stores/{id}" context
// path, normalizing either form.
func tenantFromValue(raw string) (core.TenantID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if strings.Contains(raw, "/") {
		tenantID, err := core.ExtractTenantID(raw)
		if err != nil {
			return "", false
		}
		return tenantID, true
	}
	return core.NormalizeTenantID(raw)
}

func tenantFromReferer(referer string) (core.TenantID, bool) {
	if strings.TrimSpace(referer) == "" {
		return "", false
	}
	parsed, err := url.Parse(referer)
	if err != nil {
		return "", false
	}
	return tenantFromValue(parsed.Query().Get(ContextQueryParam))
}

// IsAPILike classifies a request as programmatic rather than a
// document navigation: non-GET method, a JSON Accept header, the XHR
// marker header, or an API path prefix.
func (r *Resolver) IsAPILike(req *http.Request) bool {
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		return true
	}
	if strings.Contains(req.Header.Get("Accept"), "application/json") {
		return true
	}
	if req.Header.Get(xhrMarkerHeader) == xhrMarkerValue {
		return true
	}
	for _, prefix := range r.apiPathPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return true
		}
	}
	return false
}

type challengeBody struct {
	Error        string `json:"error"`
	NeedsRefresh bool   `json:"needsRefresh"`
}

// Challenge answers an unresolvable request. API-like callers get a
// machine-readable 401 so the embedded client can self-recover;
// navigations are redirected to the re-auth entry point.
func (r *Resolver) Challenge(w http.ResponseWriter, req *http.Request) {
	if r.IsAPILike(req) || r.reauthURL == "" {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(challengeBody{
			Error:        "session could not be resolved",
			NeedsRefresh: true,
		})
		return
	}
	http.Redirect(w, req, r.reauthURL, http.StatusFound)
}

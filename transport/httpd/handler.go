package httpd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi"

	"github.com/goliatone/go-storegate/adapters/gologger"
	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/events"
	"github.com/goliatone/go-storegate/origins"
	"github.com/goliatone/go-storegate/resolver"
	"github.com/goliatone/go-storegate/webhooks"
)

const (
	defaultMaxWebhookBodyBytes = 1 << 20

	queryParamCode        = "code"
	queryParamScope       = "scope"
	queryParamContext     = "context"
	queryParamSignedToken = "signed_payload_jwt"
)

// GateService is the lifecycle surface the HTTP handlers drive. The
// concrete implementation is core.Gate; handlers never touch stores or
// verifiers directly.
type GateService interface {
	Install(ctx context.Context, req core.InstallRequest) (core.InstallResult, error)
	Load(ctx context.Context, token string) (core.LoadResult, error)
	Uninstall(ctx context.Context, token string) (core.TenantID, error)
	RemoveUser(ctx context.Context, token string) (core.TenantID, error)
	GetTenantSession(ctx context.Context, tenantID core.TenantID) (core.TenantSession, error)
}

type Config struct {
	Gate     GateService
	Webhooks *webhooks.Verifier
	Cookies  *resolver.CookieCodec
	Resolver *resolver.Resolver
	Origins  *origins.Allowlist

	// Events, when set, receives verified deliveries after the tenant
	// session check. Without it deliveries are acked unprocessed.
	Events *events.Dispatcher

	// AdminEntryURL is where install and load callbacks redirect once
	// the tenant session is established.
	AdminEntryURL string

	MaxWebhookBodyBytes int64

	// LoggerProvider wins over Logger when both are set; handlers log
	// under the http component channel either way.
	LoggerProvider core.LoggerProvider
	Logger         core.Logger
}

type Handler struct {
	config Config
	logger core.Logger
}

// NewHandler wires the external interface: platform callbacks, webhook
// deliveries, and the admin/CORS middleware exposed for caller routes.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Gate == nil {
		return nil, fmt.Errorf("httpd: gate service is required")
	}
	if cfg.Webhooks == nil {
		return nil, fmt.Errorf("httpd: webhook verifier is required")
	}
	if cfg.Cookies == nil {
		return nil, fmt.Errorf("httpd: cookie codec is required")
	}
	if strings.TrimSpace(cfg.AdminEntryURL) == "" {
		return nil, fmt.Errorf("httpd: admin entry url is required")
	}
	if cfg.MaxWebhookBodyBytes <= 0 {
		cfg.MaxWebhookBodyBytes = defaultMaxWebhookBodyBytes
	}
	cfg.Logger = gologger.ForComponent(gologger.ComponentHTTP, cfg.LoggerProvider, cfg.Logger)
	return &Handler{config: cfg, logger: cfg.Logger}, nil
}

func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/auth/install", h.handleInstall)
	r.Get("/auth/load", h.handleLoad)
	r.Get("/auth/uninstall", h.handleUninstall)
	r.Get("/auth/remove-user", h.handleRemoveUser)
	r.Post("/webhooks/platform", h.handleWebhook)
	return r
}

func (h *Handler) handleInstall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := strings.TrimSpace(q.Get(queryParamCode))
	scope := strings.TrimSpace(q.Get(queryParamScope))
	tenantContext := strings.TrimSpace(q.Get(queryParamContext))
	if code == "" || scope == "" || tenantContext == "" {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "code, scope, and context are required")
		return
	}

	result, err := h.config.Gate.Install(r.Context(), core.InstallRequest{
		Code:    code,
		Scope:   scope,
		Context: tenantContext,
	})
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if !h.setSessionCookie(w, result.TenantID) {
		respondError(w, http.StatusInternalServerError, core.GateErrorInternal, "An unexpected error occurred")
		return
	}
	http.Redirect(w, r, h.config.AdminEntryURL, http.StatusFound)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get(queryParamSignedToken))
	if token == "" {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "signed_payload_jwt is required")
		return
	}

	result, err := h.config.Gate.Load(r.Context(), token)
	if err != nil {
		h.renderError(w, r, err)
		return
	}

	if !h.setSessionCookie(w, result.TenantID) {
		respondError(w, http.StatusInternalServerError, core.GateErrorInternal, "An unexpected error occurred")
		return
	}
	// the context query parameter rides along as the iframe fallback:
	// embedded admin clients that drop third-party cookies recover the
	// tenant from it on the next request
	target := h.config.AdminEntryURL
	separator := "?"
	if strings.Contains(target, "?") {
		separator = "&"
	}
	target += separator + queryParamContext + "=" + url.QueryEscape("stores/"+string(result.TenantID))
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) handleUninstall(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get(queryParamSignedToken))
	if token == "" {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "signed_payload_jwt is required")
		return
	}
	if _, err := h.config.Gate.Uninstall(r.Context(), token); err != nil {
		h.renderError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (h *Handler) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get(queryParamSignedToken))
	if token == "" {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "signed_payload_jwt is required")
		return
	}
	if _, err := h.config.Gate.RemoveUser(r.Context(), token); err != nil {
		h.renderError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

type webhookBody struct {
	Producer string          `json:"producer"`
	Scope    string          `json:"scope"`
	Data     json.RawMessage `json:"data"`
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r, h.config.MaxWebhookBodyBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "request body is unreadable")
		return
	}

	envelope, _ := h.config.Webhooks.Envelope(r.Header, body)
	if err := h.config.Webhooks.Verify(envelope); err != nil {
		h.logger.Error("webhook signature verification failed",
			"delivery_id", envelope.ID,
			"error", err,
		)
		respondError(w, http.StatusUnauthorized, core.GateErrorUnauthorized, "verification failed")
		return
	}

	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "request body is not valid JSON")
		return
	}
	if strings.TrimSpace(payload.Producer) == "" {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "producer is required")
		return
	}
	tenantID, err := core.ExtractTenantID(payload.Producer)
	if err != nil {
		respondError(w, http.StatusBadRequest, core.GateErrorBadInput, "producer is malformed")
		return
	}

	if _, err := h.config.Gate.GetTenantSession(r.Context(), tenantID); err != nil {
		if httpStatus(err) == http.StatusNotFound {
			respondError(w, http.StatusNotFound, core.GateErrorTenantNotFound, "unknown tenant")
			return
		}
		h.renderError(w, r, err)
		return
	}

	if h.config.Events != nil {
		result, err := h.config.Events.Dispatch(r.Context(), events.Event{
			DeliveryID: envelope.ID,
			TenantID:   tenantID,
			Producer:   payload.Producer,
			Scope:      payload.Scope,
			Data:       payload.Data,
			ReceivedAt: time.Now().UTC(),
		})
		if err != nil {
			h.renderError(w, r, err)
			return
		}
		if result.Deduped {
			respondJSON(w, http.StatusOK, statusBody{Status: "ok"})
			return
		}
	}

	h.logger.Info("webhook delivery accepted",
		"tenant_id", tenantID,
		"delivery_id", envelope.ID,
		"scope", payload.Scope,
	)
	respondJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, tenantID core.TenantID) bool {
	cookie, err := h.config.Cookies.Encode(tenantID)
	if err != nil {
		h.logger.Error("session cookie encode failed", "tenant_id", tenantID, "error", err)
		return false
	}
	http.SetCookie(w, cookie)
	return true
}

func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

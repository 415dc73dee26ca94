package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-storegate/core"
)

// ScopeAll registers a handler for every delivery scope that has no
// dedicated handler.
const ScopeAll = "*"

// DefaultClaimTTL bounds how long a completed delivery id keeps
// suppressing platform redeliveries.
const DefaultClaimTTL = 10 * time.Minute

// Event is a verified webhook delivery ready for domain processing.
type Event struct {
	DeliveryID string
	TenantID   core.TenantID
	Producer   string
	Scope      string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// Handler consumes deliveries for a single scope.
type Handler interface {
	Scope() string
	Handle(ctx context.Context, evt Event) error
}

// ClaimStore coordinates at-most-once processing per delivery id.
// Claim returns accepted=false when the key is already held or done.
type ClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

// Result reports what Dispatch did with a delivery.
type Result struct {
	Handled bool
	Deduped bool
	Scope   string
}

type scopeHandler struct {
	scope string
	fn    func(ctx context.Context, evt Event) error
}

func (h scopeHandler) Scope() string { return h.scope }

func (h scopeHandler) Handle(ctx context.Context, evt Event) error { return h.fn(ctx, evt) }

// OnScope wraps a func as a Handler for the given scope.
func OnScope(scope string, fn func(ctx context.Context, evt Event) error) Handler {
	return scopeHandler{scope: scope, fn: fn}
}

type Dispatcher struct {
	Store    ClaimStore
	ClaimTTL time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher(store ClaimStore) *Dispatcher {
	return &Dispatcher{
		Store:    store,
		ClaimTTL: DefaultClaimTTL,
		handlers: map[string]Handler{},
	}
}

func (d *Dispatcher) Register(handler Handler) error {
	if d == nil {
		return eventsInternal("events: dispatcher is nil", nil)
	}
	if handler == nil {
		return eventsBadInput("events: handler is nil", nil)
	}
	scope := normalizeScope(handler.Scope())
	if scope == "" {
		return eventsBadInput("events: handler scope is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.handlers[scope]; exists {
		return eventsError(
			fmt.Sprintf("events: handler already registered for scope %q", scope),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.GateErrorBadInput,
			map[string]any{"scope": scope},
		)
	}
	d.handlers[scope] = handler
	return nil
}

// Dispatch routes a verified delivery to its scope handler. Redelivered
// ids short-circuit with Deduped set. Handler failures release the
// claim so the platform retry can be reprocessed.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) (Result, error) {
	if d == nil {
		return Result{}, eventsInternal("events: dispatcher is nil", nil)
	}
	evt.DeliveryID = strings.TrimSpace(evt.DeliveryID)
	evt.Scope = normalizeScope(evt.Scope)
	if evt.DeliveryID == "" {
		return Result{}, eventsBadInput("events: delivery id is required", map[string]any{
			"scope": evt.Scope,
		})
	}
	if evt.TenantID == "" {
		return Result{}, eventsBadInput("events: tenant id is required", map[string]any{
			"delivery_id": evt.DeliveryID,
			"scope":       evt.Scope,
		})
	}
	if evt.Scope == "" {
		return Result{}, eventsBadInput("events: delivery scope is required", map[string]any{
			"delivery_id": evt.DeliveryID,
		})
	}

	claimID := ""
	if d.Store != nil {
		var accepted bool
		var err error
		key := string(evt.TenantID) + ":" + evt.DeliveryID
		claimID, accepted, err = d.Store.Claim(ctx, key, d.claimTTL())
		if err != nil {
			return Result{}, eventsWrapError(
				err,
				goerrors.CategoryOperation,
				"events: delivery claim failed",
				http.StatusInternalServerError,
				core.GateErrorInternal,
				map[string]any{"delivery_id": evt.DeliveryID, "scope": evt.Scope},
			)
		}
		if !accepted {
			return Result{Deduped: true, Scope: evt.Scope}, nil
		}
	}

	handler := d.handlerFor(evt.Scope)
	if handler == nil {
		// Ack unconsumed scopes so the platform stops redelivering.
		if err := d.completeClaim(ctx, evt, claimID); err != nil {
			return Result{}, err
		}
		return Result{Scope: evt.Scope}, nil
	}

	if err := handler.Handle(ctx, evt); err != nil {
		handlerErr := eventsWrapError(
			err,
			goerrors.CategoryOperation,
			"events: delivery handler failed",
			http.StatusInternalServerError,
			core.GateErrorInternal,
			map[string]any{"delivery_id": evt.DeliveryID, "scope": evt.Scope},
		)
		if d.Store != nil && claimID != "" {
			if failErr := d.Store.Fail(ctx, claimID, err, time.Time{}); failErr != nil {
				return Result{}, errors.Join(handlerErr, eventsWrapError(
					failErr,
					goerrors.CategoryOperation,
					"events: release delivery claim",
					http.StatusInternalServerError,
					core.GateErrorInternal,
					map[string]any{"delivery_id": evt.DeliveryID, "claim_id": claimID},
				))
			}
		}
		return Result{Scope: evt.Scope}, handlerErr
	}

	if err := d.completeClaim(ctx, evt, claimID); err != nil {
		return Result{}, err
	}
	return Result{Handled: true, Scope: evt.Scope}, nil
}

func (d *Dispatcher) completeClaim(ctx context.Context, evt Event, claimID string) error {
	if d.Store == nil || claimID == "" {
		return nil
	}
	if err := d.Store.Complete(ctx, claimID); err != nil {
		return eventsWrapError(
			err,
			goerrors.CategoryOperation,
			"events: complete delivery claim",
			http.StatusInternalServerError,
			core.GateErrorInternal,
			map[string]any{"delivery_id": evt.DeliveryID, "claim_id": claimID},
		)
	}
	return nil
}

func (d *Dispatcher) claimTTL() time.Duration {
	if d != nil && d.ClaimTTL > 0 {
		return d.ClaimTTL
	}
	return DefaultClaimTTL
}

func (d *Dispatcher) handlerFor(scope string) Handler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if handler, ok := d.handlers[scope]; ok {
		return handler
	}
	return d.handlers[ScopeAll]
}

func normalizeScope(scope string) string {
	return strings.TrimSpace(strings.ToLower(scope))
}

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-storegate/core"
)

func testEvent(deliveryID string) Event {
	return Event{
		DeliveryID: deliveryID,
		TenantID:   core.TenantID("abc123"),
		Producer:   "stores/abc123",
		Scope:      "store/app/uninstalled",
		Data:       []byte(`{}`),
	}
}

func TestDispatcher_RoutesByScopeAndDedupesRedelivery(t *testing.T) {
	store := NewMemoryClaimStore()
	store.Now = func() time.Time {
		return time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	}
	handler := &stubEventHandler{scope: "store/app/uninstalled"}
	dispatcher := NewDispatcher(store)
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	evt := testEvent("msg_1")
	first, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch first delivery: %v", err)
	}
	if !first.Handled || first.Deduped {
		t.Fatalf("expected first delivery handled, got %+v", first)
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handler call, got %d", handler.calls)
	}

	second, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch redelivery: %v", err)
	}
	if !second.Deduped {
		t.Fatalf("expected redelivery deduped, got %+v", second)
	}
	if handler.calls != 1 {
		t.Fatalf("expected handler call count unchanged for redelivery")
	}
}

func TestDispatcher_DedupWindowExpiresByClaimTTL(t *testing.T) {
	store := NewMemoryClaimStore()
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	handler := &stubEventHandler{scope: "store/app/uninstalled"}
	dispatcher := NewDispatcher(store)
	dispatcher.ClaimTTL = time.Minute
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	evt := testEvent("msg_ttl")
	if _, err := dispatcher.Dispatch(context.Background(), evt); err != nil {
		t.Fatalf("dispatch first delivery: %v", err)
	}
	deduped, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch redelivery: %v", err)
	}
	if !deduped.Deduped {
		t.Fatalf("expected dedup before ttl expiry")
	}

	now = now.Add(2 * time.Minute)
	late, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch after ttl expiry: %v", err)
	}
	if !late.Handled {
		t.Fatalf("expected delivery handled again after ttl expiry")
	}
	if handler.calls != 2 {
		t.Fatalf("expected two handler calls, got %d", handler.calls)
	}
}

func TestDispatcher_ReleasesClaimAfterHandlerFailure(t *testing.T) {
	store := NewMemoryClaimStore()
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	handler := &stubEventHandler{
		scope: "store/app/uninstalled",
		err:   errors.New("downstream unavailable"),
	}
	dispatcher := NewDispatcher(store)
	if err := dispatcher.Register(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}

	evt := testEvent("msg_retry")
	if _, err := dispatcher.Dispatch(context.Background(), evt); err == nil {
		t.Fatalf("expected handler failure to bubble")
	}
	if handler.calls != 1 {
		t.Fatalf("expected one handler call after failure, got %d", handler.calls)
	}

	handler.err = nil
	now = now.Add(time.Second)
	result, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("expected platform retry to succeed: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected retry handled, got %+v", result)
	}
	if handler.calls != 2 {
		t.Fatalf("expected handler called again on retry, got %d", handler.calls)
	}
}

func TestDispatcher_AcksUnconsumedScopes(t *testing.T) {
	dispatcher := NewDispatcher(NewMemoryClaimStore())

	evt := testEvent("msg_unconsumed")
	evt.Scope = "store/product/updated"
	result, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch unconsumed scope: %v", err)
	}
	if result.Handled || result.Deduped {
		t.Fatalf("expected unconsumed delivery acked without handling, got %+v", result)
	}

	redelivery, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch redelivery of unconsumed scope: %v", err)
	}
	if !redelivery.Deduped {
		t.Fatalf("expected acked delivery to dedupe, got %+v", redelivery)
	}
}

func TestDispatcher_CatchAllHandlerReceivesUnmatchedScopes(t *testing.T) {
	dispatcher := NewDispatcher(NewMemoryClaimStore())
	var seen []string
	err := dispatcher.Register(OnScope(ScopeAll, func(_ context.Context, evt Event) error {
		seen = append(seen, evt.Scope)
		return nil
	}))
	if err != nil {
		t.Fatalf("register catch-all: %v", err)
	}

	evt := testEvent("msg_any")
	evt.Scope = "store/order/created"
	result, err := dispatcher.Dispatch(context.Background(), evt)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !result.Handled {
		t.Fatalf("expected catch-all to handle delivery")
	}
	if len(seen) != 1 || seen[0] != "store/order/created" {
		t.Fatalf("unexpected scopes seen: %v", seen)
	}
}

func TestDispatcher_ValidatesDeliveries(t *testing.T) {
	dispatcher := NewDispatcher(NewMemoryClaimStore())

	cases := []struct {
		name   string
		mutate func(*Event)
	}{
		{"missing delivery id", func(evt *Event) { evt.DeliveryID = "" }},
		{"missing tenant id", func(evt *Event) { evt.TenantID = "" }},
		{"missing scope", func(evt *Event) { evt.Scope = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evt := testEvent("msg_invalid")
			tc.mutate(&evt)
			_, err := dispatcher.Dispatch(context.Background(), evt)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected structured error, got %T", err)
			}
			if rich.TextCode != core.GateErrorBadInput {
				t.Fatalf("unexpected text code %q", rich.TextCode)
			}
		})
	}
}

func TestDispatcher_RejectsDuplicateScopeRegistration(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	if err := dispatcher.Register(&stubEventHandler{scope: "store/app/uninstalled"}); err != nil {
		t.Fatalf("register first handler: %v", err)
	}
	if err := dispatcher.Register(&stubEventHandler{scope: "Store/App/Uninstalled"}); err == nil {
		t.Fatalf("expected duplicate registration rejected")
	}
}

func TestMemoryClaimStore_RecoversAfterLeaseExpiry(t *testing.T) {
	store := NewMemoryClaimStore()
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	claimID, accepted, err := store.Claim(context.Background(), "abc123:msg_1", time.Minute)
	if err != nil {
		t.Fatalf("claim first: %v", err)
	}
	if !accepted || claimID == "" {
		t.Fatalf("expected first claim accepted")
	}

	if _, accepted, err := store.Claim(context.Background(), "abc123:msg_1", time.Minute); err != nil {
		t.Fatalf("claim while lease active: %v", err)
	} else if accepted {
		t.Fatalf("expected claim rejected while lease is active")
	}

	now = now.Add(2 * time.Minute)
	reclaimID, accepted, err := store.Claim(context.Background(), "abc123:msg_1", time.Minute)
	if err != nil {
		t.Fatalf("claim after lease expiry: %v", err)
	}
	if !accepted || reclaimID == "" {
		t.Fatalf("expected claim recovery after lease expiry")
	}
	if reclaimID == claimID {
		t.Fatalf("expected new claim id after lease-expiry recovery")
	}
}

type stubEventHandler struct {
	scope string
	err   error
	calls int
}

func (h *stubEventHandler) Scope() string { return h.scope }

func (h *stubEventHandler) Handle(context.Context, Event) error {
	h.calls++
	return h.err
}

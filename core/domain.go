package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidSessionStateTransition = errors.New("core: invalid session state transition")
	ErrSessionNotFound               = errors.New("core: tenant session not found")
	ErrTenantUserNotFound            = errors.New("core: tenant user not found")
)

type SessionState string

const (
	SessionStateUninstalled SessionState = "uninstalled"
	SessionStateInstalled   SessionState = "installed"
	SessionStateLoaded      SessionState = "loaded"
	SessionStateRevoked     SessionState = "revoked"
)

// TenantSession is the durable per-tenant record created on install. One
// row exists per tenant; reinstalls update in place under the same key.
type TenantSession struct {
	TenantID            TenantID
	AccessToken         string
	Scope               []string
	InstallingUserID    int64
	InstallingUserEmail string
	StoreDomain         string
	State               SessionState
	IsOnline            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Key returns the upsert key the session is stored under.
func (s TenantSession) Key() string {
	return "tenant_" + string(s.TenantID)
}

func (s *TenantSession) TransitionTo(state SessionState, now time.Time) error {
	if s == nil {
		return nil
	}
	if s.State == state {
		s.UpdatedAt = now
		return nil
	}
	if !sessionTransitionAllowed(s.State, state) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSessionStateTransition, s.State, state)
	}
	s.State = state
	s.UpdatedAt = now
	return nil
}

func sessionTransitionAllowed(current, next SessionState) bool {
	allowed := map[SessionState]map[SessionState]struct{}{
		SessionStateUninstalled: {
			SessionStateInstalled: {},
		},
		SessionStateInstalled: {
			SessionStateLoaded:  {},
			SessionStateRevoked: {},
		},
		SessionStateLoaded: {
			SessionStateRevoked: {},
			// reinstall while an app is still live reuses the same key
			SessionStateInstalled: {},
		},
		SessionStateRevoked: {
			SessionStateInstalled: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

// TenantUser is a platform user seen on a load callback, keyed by
// (tenant id, platform user id). Ownership is resolved at load time.
type TenantUser struct {
	TenantID       TenantID
	PlatformUserID int64
	Email          string
	IsOwner        bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SignedPayload is the verified content of a load/uninstall/remove-user
// callback token. It is ephemeral; nothing here is persisted as-is.
type SignedPayload struct {
	UserID     int64
	UserEmail  string
	OwnerID    int64
	OwnerEmail string
	TenantID   TenantID
	IssuedAt   time.Time
}

// WebhookEnvelope carries the parts of a webhook delivery that
// verification and tenant routing need. RawBody is the untouched wire
// bytes; signing happens over these, never a re-serialized form.
type WebhookEnvelope struct {
	ID              string
	Timestamp       string
	SignatureHeader string
	RawBody         []byte
	Producer        string
}

type UpsertSessionInput struct {
	TenantID            TenantID
	AccessToken         string
	Scope               []string
	InstallingUserID    int64
	InstallingUserEmail string
	StoreDomain         string
	State               SessionState
	IsOnline            bool
}

func (in UpsertSessionInput) Validate() error {
	if strings.TrimSpace(string(in.TenantID)) == "" {
		return fmt.Errorf("core: tenant id is required")
	}
	if strings.TrimSpace(in.AccessToken) == "" {
		return fmt.Errorf("core: access token is required")
	}
	return nil
}

type UpsertUserInput struct {
	TenantID       TenantID
	PlatformUserID int64
	Email          string
	IsOwner        bool
}

func (in UpsertUserInput) Validate() error {
	if strings.TrimSpace(string(in.TenantID)) == "" {
		return fmt.Errorf("core: tenant id is required")
	}
	if in.PlatformUserID <= 0 {
		return fmt.Errorf("core: platform user id is required")
	}
	return nil
}

package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemorySessionStore keeps tenant sessions in process memory. It is the
// default wiring for tests and single-instance deployments; production
// multi-instance installs wire the bun-backed store instead.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[TenantID]TenantSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: map[TenantID]TenantSession{},
	}
}

func (s *MemorySessionStore) Upsert(_ context.Context, in UpsertSessionInput) (TenantSession, error) {
	if s == nil {
		return TenantSession{}, fmt.Errorf("core: session store is not configured")
	}
	if err := in.Validate(); err != nil {
		return TenantSession{}, err
	}
	state := in.State
	if strings.TrimSpace(string(state)) == "" {
		state = SessionStateInstalled
	}

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[in.TenantID]
	if !ok {
		session = TenantSession{
			TenantID:  in.TenantID,
			State:     SessionStateUninstalled,
			CreatedAt: now,
		}
	}
	if err := session.TransitionTo(state, now); err != nil {
		return TenantSession{}, err
	}
	session.AccessToken = in.AccessToken
	session.Scope = append([]string(nil), in.Scope...)
	session.InstallingUserID = in.InstallingUserID
	session.InstallingUserEmail = in.InstallingUserEmail
	session.StoreDomain = in.StoreDomain
	session.IsOnline = in.IsOnline
	s.sessions[in.TenantID] = session
	return session, nil
}

func (s *MemorySessionStore) Get(_ context.Context, tenantID TenantID) (TenantSession, error) {
	if s == nil {
		return TenantSession{}, fmt.Errorf("core: session store is not configured")
	}
	s.mu.RLock()
	session, ok := s.sessions[tenantID]
	s.mu.RUnlock()
	if !ok {
		return TenantSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, tenantID)
	}
	return session, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tenantID TenantID) error {
	if s == nil {
		return fmt.Errorf("core: session store is not configured")
	}
	s.mu.Lock()
	delete(s.sessions, tenantID)
	s.mu.Unlock()
	return nil
}

type memoryUserKey struct {
	tenantID TenantID
	userID   int64
}

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[memoryUserKey]TenantUser
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: map[memoryUserKey]TenantUser{},
	}
}

func (s *MemoryUserStore) Upsert(_ context.Context, in UpsertUserInput) (TenantUser, error) {
	if s == nil {
		return TenantUser{}, fmt.Errorf("core: user store is not configured")
	}
	if err := in.Validate(); err != nil {
		return TenantUser{}, err
	}
	key := memoryUserKey{tenantID: in.TenantID, userID: in.PlatformUserID}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[key]
	if !ok {
		user = TenantUser{
			TenantID:       in.TenantID,
			PlatformUserID: in.PlatformUserID,
			CreatedAt:      now,
		}
	}
	user.Email = strings.TrimSpace(in.Email)
	user.IsOwner = in.IsOwner
	user.UpdatedAt = now
	s.users[key] = user
	return user, nil
}

func (s *MemoryUserStore) Get(_ context.Context, tenantID TenantID, platformUserID int64) (TenantUser, error) {
	if s == nil {
		return TenantUser{}, fmt.Errorf("core: user store is not configured")
	}
	s.mu.RLock()
	user, ok := s.users[memoryUserKey{tenantID: tenantID, userID: platformUserID}]
	s.mu.RUnlock()
	if !ok {
		return TenantUser{}, fmt.Errorf("%w: %s/%d", ErrTenantUserNotFound, tenantID, platformUserID)
	}
	return user, nil
}

func (s *MemoryUserStore) List(_ context.Context, tenantID TenantID) ([]TenantUser, error) {
	if s == nil {
		return nil, fmt.Errorf("core: user store is not configured")
	}
	s.mu.RLock()
	out := make([]TenantUser, 0, len(s.users))
	for key, user := range s.users {
		if key.tenantID == tenantID {
			out = append(out, user)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].PlatformUserID < out[j].PlatformUserID
	})
	return out, nil
}

func (s *MemoryUserStore) Delete(_ context.Context, tenantID TenantID, platformUserID int64) error {
	if s == nil {
		return fmt.Errorf("core: user store is not configured")
	}
	s.mu.Lock()
	delete(s.users, memoryUserKey{tenantID: tenantID, userID: platformUserID})
	s.mu.Unlock()
	return nil
}

func (s *MemoryUserStore) DeleteByTenant(_ context.Context, tenantID TenantID) error {
	if s == nil {
		return fmt.Errorf("core: user store is not configured")
	}
	s.mu.Lock()
	for key := range s.users {
		if key.tenantID == tenantID {
			delete(s.users, key)
		}
	}
	s.mu.Unlock()
	return nil
}

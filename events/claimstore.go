package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type claimState string

const (
	claimProcessing claimState = "processing"
	claimRetryReady claimState = "retry_ready"
	claimComplete   claimState = "complete"
)

type claimRecord struct {
	key       string
	state     claimState
	claimID   string
	attempts  int
	ttl       time.Duration
	leaseEnds time.Time
	retryAt   time.Time
}

// MemoryClaimStore is a process-local ClaimStore. Completed keys are
// evicted lazily once their suppression window lapses.
type MemoryClaimStore struct {
	mu      sync.Mutex
	records map[string]claimRecord
	claims  map[string]string
	nextID  int

	Now func() time.Time
}

func NewMemoryClaimStore() *MemoryClaimStore {
	return &MemoryClaimStore{
		records: map[string]claimRecord{},
		claims:  map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryClaimStore) Claim(_ context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil {
		return "", false, eventsInternal("events: claim store is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, eventsBadInput("events: claim key is required", nil)
	}
	now := s.now()
	if lease <= 0 {
		lease = DefaultClaimTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked(now)
	record, exists := s.records[key]
	if !exists {
		claimID := s.nextClaimID()
		s.records[key] = claimRecord{
			key:       key,
			state:     claimProcessing,
			claimID:   claimID,
			attempts:  1,
			ttl:       lease,
			leaseEnds: now.Add(lease),
		}
		s.claims[claimID] = key
		return claimID, true, nil
	}

	switch record.state {
	case claimComplete:
		if !record.leaseEnds.IsZero() && now.Before(record.leaseEnds) {
			return "", false, nil
		}
	case claimProcessing:
		if now.Before(record.leaseEnds) {
			return "", false, nil
		}
	case claimRetryReady:
		if !record.retryAt.IsZero() && now.Before(record.retryAt) {
			return "", false, nil
		}
	}

	if record.claimID != "" {
		delete(s.claims, record.claimID)
	}
	claimID := s.nextClaimID()
	record.state = claimProcessing
	record.claimID = claimID
	record.attempts++
	record.ttl = lease
	record.leaseEnds = now.Add(lease)
	record.retryAt = time.Time{}
	s.records[key] = record
	s.claims[claimID] = key
	return claimID, true, nil
}

func (s *MemoryClaimStore) Complete(_ context.Context, claimID string) error {
	if s == nil {
		return eventsInternal("events: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return eventsBadInput("events: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	record, exists := s.records[key]
	if !exists || record.claimID != claimID || record.state != claimProcessing {
		delete(s.claims, claimID)
		return nil
	}
	ttl := record.ttl
	if ttl <= 0 {
		ttl = DefaultClaimTTL
	}
	record.state = claimComplete
	record.leaseEnds = s.now().Add(ttl)
	record.retryAt = time.Time{}
	s.records[key] = record
	delete(s.claims, claimID)
	return nil
}

func (s *MemoryClaimStore) Fail(_ context.Context, claimID string, _ error, retryAt time.Time) error {
	if s == nil {
		return eventsInternal("events: claim store is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return eventsBadInput("events: claim id is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.claims[claimID]
	if !ok {
		return nil
	}
	record, exists := s.records[key]
	if !exists || record.claimID != claimID || record.state != claimProcessing {
		delete(s.claims, claimID)
		return nil
	}
	if retryAt.IsZero() {
		retryAt = s.now()
	}
	record.state = claimRetryReady
	record.retryAt = retryAt.UTC()
	record.leaseEnds = time.Time{}
	s.records[key] = record
	delete(s.claims, claimID)
	return nil
}

var _ ClaimStore = (*MemoryClaimStore)(nil)

func (s *MemoryClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *MemoryClaimStore) nextClaimID() string {
	s.nextID++
	return fmt.Sprintf("claim_%d", s.nextID)
}

func (s *MemoryClaimStore) evictExpiredLocked(now time.Time) {
	for key, record := range s.records {
		if record.state != claimComplete {
			continue
		}
		if record.leaseEnds.IsZero() || !now.Before(record.leaseEnds) {
			if record.claimID != "" {
				delete(s.claims, record.claimID)
			}
			delete(s.records, key)
		}
	}
}

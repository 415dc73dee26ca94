package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-storegate/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionStore is the bun-backed tenant session store. Upserts are
// keyed by tenant id inside a transaction, so a reinstall updates the
// existing row instead of inserting a second one.
type SessionStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantSessionRecord]
}

func NewSessionStore(db *bun.DB) (*SessionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantSessionRecord](db, sessionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid session repository wiring: %w", err)
		}
	}
	return &SessionStore{db: db, repo: repo}, nil
}

func (s *SessionStore) Upsert(ctx context.Context, in core.UpsertSessionInput) (core.TenantSession, error) {
	if s == nil || s.db == nil {
		return core.TenantSession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.TenantSession{}, err
	}
	state := in.State
	if strings.TrimSpace(string(state)) == "" {
		state = core.SessionStateInstalled
	}

	now := time.Now().UTC()
	var out core.TenantSession
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findSessionTx(ctx, tx, in.TenantID)
		if err != nil {
			return err
		}
		if record == nil {
			record = &tenantSessionRecord{
				ID:        uuid.NewString(),
				TenantID:  string(in.TenantID),
				State:     string(core.SessionStateUninstalled),
				CreatedAt: now,
			}
			candidate := record.toDomain()
			if transitionErr := candidate.TransitionTo(state, now); transitionErr != nil {
				return transitionErr
			}
			applySessionInput(record, in, state, now)
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		candidate := record.toDomain()
		if transitionErr := candidate.TransitionTo(state, now); transitionErr != nil {
			return transitionErr
		}
		applySessionInput(record, in, state, now)
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.TenantSession{}, err
	}
	return out, nil
}

func (s *SessionStore) Get(ctx context.Context, tenantID core.TenantID) (core.TenantSession, error) {
	if s == nil || s.repo == nil {
		return core.TenantSession{}, fmt.Errorf("sqlstore: session store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", string(tenantID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.TenantSession{}, err
	}
	if len(records) == 0 {
		return core.TenantSession{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, tenantID)
	}
	return records[0].toDomain(), nil
}

// Delete removes the tenant's session row. Deleting an absent row is
// not an error; uninstall webhooks can arrive more than once.
func (s *SessionStore) Delete(ctx context.Context, tenantID core.TenantID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: session store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tenantSessionRecord)(nil)).
		Where("tenant_id = ?", string(tenantID)).
		Exec(ctx)
	return err
}

func applySessionInput(record *tenantSessionRecord, in core.UpsertSessionInput, state core.SessionState, now time.Time) {
	record.AccessToken = in.AccessToken
	record.Scope = append([]string{}, in.Scope...)
	record.InstallingUserID = in.InstallingUserID
	record.InstallingUserEmail = strings.TrimSpace(in.InstallingUserEmail)
	record.StoreDomain = strings.TrimSpace(in.StoreDomain)
	record.State = string(state)
	record.IsOnline = in.IsOnline
	record.UpdatedAt = now
}

func findSessionTx(ctx context.Context, tx bun.Tx, tenantID core.TenantID) (*tenantSessionRecord, error) {
	record := &tenantSessionRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("tenant_id = ?", string(tenantID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

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

// UserStore is the bun-backed tenant user store, keyed by
// (tenant id, platform user id).
type UserStore struct {
	db   *bun.DB
	repo repository.Repository[*tenantUserRecord]
}

func NewUserStore(db *bun.DB) (*UserStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantUserRecord](db, userHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid user repository wiring: %w", err)
		}
	}
	return &UserStore{db: db, repo: repo}, nil
}

func (s *UserStore) Upsert(ctx context.Context, in core.UpsertUserInput) (core.TenantUser, error) {
	if s == nil || s.db == nil {
		return core.TenantUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	if err := in.Validate(); err != nil {
		return core.TenantUser{}, err
	}

	now := time.Now().UTC()
	var out core.TenantUser
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &tenantUserRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("tenant_id = ?", string(in.TenantID)).
			Where("platform_user_id = ?", in.PlatformUserID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			record = &tenantUserRecord{
				ID:             uuid.NewString(),
				TenantID:       string(in.TenantID),
				PlatformUserID: in.PlatformUserID,
				Email:          strings.TrimSpace(in.Email),
				IsOwner:        in.IsOwner,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			return nil
		}

		record.Email = strings.TrimSpace(in.Email)
		record.IsOwner = in.IsOwner
		record.UpdatedAt = now
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
		return core.TenantUser{}, err
	}
	return out, nil
}

func (s *UserStore) Get(ctx context.Context, tenantID core.TenantID, platformUserID int64) (core.TenantUser, error) {
	if s == nil || s.repo == nil {
		return core.TenantUser{}, fmt.Errorf("sqlstore: user store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", string(tenantID)),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.platform_user_id = ?", platformUserID)
		}),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.TenantUser{}, err
	}
	if len(records) == 0 {
		return core.TenantUser{}, fmt.Errorf("%w: %s/%d", core.ErrTenantUserNotFound, tenantID, platformUserID)
	}
	return records[0].toDomain(), nil
}

func (s *UserStore) List(ctx context.Context, tenantID core.TenantID) ([]core.TenantUser, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: user store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", string(tenantID)),
		repository.OrderBy("platform_user_id ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.TenantUser, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *UserStore) Delete(ctx context.Context, tenantID core.TenantID, platformUserID int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tenantUserRecord)(nil)).
		Where("tenant_id = ?", string(tenantID)).
		Where("platform_user_id = ?", platformUserID).
		Exec(ctx)
	return err
}

// DeleteByTenant removes every user row for a tenant in one statement,
// the bulk path taken on uninstall.
func (s *UserStore) DeleteByTenant(ctx context.Context, tenantID core.TenantID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: user store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tenantUserRecord)(nil)).
		Where("tenant_id = ?", string(tenantID)).
		Exec(ctx)
	return err
}

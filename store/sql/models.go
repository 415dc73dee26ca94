package sqlstore

import (
	"time"

	"github.com/goliatone/go-storegate/core"
	"github.com/uptrace/bun"
)

type tenantSessionRecord struct {
	bun.BaseModel `bun:"table:tenant_sessions,alias:ts"`

	ID                  string    `bun:"id,pk"`
	TenantID            string    `bun:"tenant_id,notnull,unique"`
	AccessToken         string    `bun:"access_token,notnull"`
	Scope               []string  `bun:"scope,type:jsonb,notnull"`
	InstallingUserID    int64     `bun:"installing_user_id,notnull"`
	InstallingUserEmail string    `bun:"installing_user_email"`
	StoreDomain         string    `bun:"store_domain"`
	State               string    `bun:"state,notnull"`
	IsOnline            bool      `bun:"is_online,notnull"`
	CreatedAt           time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tenantSessionRecord) toDomain() core.TenantSession {
	if r == nil {
		return core.TenantSession{}
	}
	return core.TenantSession{
		TenantID:            core.TenantID(r.TenantID),
		AccessToken:         r.AccessToken,
		Scope:               append([]string(nil), r.Scope...),
		InstallingUserID:    r.InstallingUserID,
		InstallingUserEmail: r.InstallingUserEmail,
		StoreDomain:         r.StoreDomain,
		State:               core.SessionState(r.State),
		IsOnline:            r.IsOnline,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

type tenantUserRecord struct {
	bun.BaseModel `bun:"table:tenant_users,alias:tu"`

	ID             string    `bun:"id,pk"`
	TenantID       string    `bun:"tenant_id,notnull"`
	PlatformUserID int64     `bun:"platform_user_id,notnull"`
	Email          string    `bun:"email"`
	IsOwner        bool      `bun:"is_owner,notnull"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *tenantUserRecord) toDomain() core.TenantUser {
	if r == nil {
		return core.TenantUser{}
	}
	return core.TenantUser{
		TenantID:       core.TenantID(r.TenantID),
		PlatformUserID: r.PlatformUserID,
		Email:          r.Email,
		IsOwner:        r.IsOwner,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

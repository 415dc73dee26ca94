package query

import (
	"context"

	"github.com/goliatone/go-storegate/core"
)

type SessionReader interface {
	GetTenantSession(ctx context.Context, tenantID core.TenantID) (core.TenantSession, error)
}

type UserReader interface {
	ListTenantUsers(ctx context.Context, tenantID core.TenantID) ([]core.TenantUser, error)
}

type GetTenantSessionQuery struct {
	reader SessionReader
}

func NewGetTenantSessionQuery(reader SessionReader) *GetTenantSessionQuery {
	return &GetTenantSessionQuery{reader: reader}
}

func (q *GetTenantSessionQuery) Query(ctx context.Context, msg GetTenantSessionMessage) (core.TenantSession, error) {
	if q == nil || q.reader == nil {
		return core.TenantSession{}, queryDependencyError("query: session reader is required")
	}
	return q.reader.GetTenantSession(ctx, msg.TenantID)
}

type ListTenantUsersQuery struct {
	reader UserReader
}

func NewListTenantUsersQuery(reader UserReader) *ListTenantUsersQuery {
	return &ListTenantUsersQuery{reader: reader}
}

func (q *ListTenantUsersQuery) Query(ctx context.Context, msg ListTenantUsersMessage) ([]core.TenantUser, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: user reader is required")
	}
	return q.reader.ListTenantUsers(ctx, msg.TenantID)
}

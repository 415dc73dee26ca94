package query

import (
	"strings"

	"github.com/goliatone/go-storegate/core"
)

const (
	TypeGetTenantSession = "storegate.query.session.get"
	TypeListTenantUsers  = "storegate.query.users.list"
)

type GetTenantSessionMessage struct {
	TenantID core.TenantID
}

func (GetTenantSessionMessage) Type() string { return TypeGetTenantSession }

func (m GetTenantSessionMessage) Validate() error {
	return validateTenantID(m.TenantID)
}

type ListTenantUsersMessage struct {
	TenantID core.TenantID
}

func (ListTenantUsersMessage) Type() string { return TypeListTenantUsers }

func (m ListTenantUsersMessage) Validate() error {
	return validateTenantID(m.TenantID)
}

func validateTenantID(tenantID core.TenantID) error {
	if strings.TrimSpace(string(tenantID)) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if _, ok := core.NormalizeTenantID(string(tenantID)); !ok {
		return queryValidationError("tenant_id", "tenant id is malformed")
	}
	return nil
}

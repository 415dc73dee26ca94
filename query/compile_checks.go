package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-storegate/core"
)

var (
	_ gocmd.Querier[GetTenantSessionMessage, core.TenantSession] = (*GetTenantSessionQuery)(nil)
	_ gocmd.Querier[ListTenantUsersMessage, []core.TenantUser]   = (*ListTenantUsersQuery)(nil)
)

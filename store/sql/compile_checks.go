package sqlstore

import "github.com/goliatone/go-storegate/core"

var (
	_ core.SessionStore           = (*SessionStore)(nil)
	_ core.UserStore              = (*UserStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)

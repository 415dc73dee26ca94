package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ SessionStore = (*MemorySessionStore)(nil)
	_ UserStore    = (*MemoryUserStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)

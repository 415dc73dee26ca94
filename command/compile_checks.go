package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InstallMessage]    = (*InstallCommand)(nil)
	_ gocmd.Commander[LoadMessage]       = (*LoadCommand)(nil)
	_ gocmd.Commander[UninstallMessage]  = (*UninstallCommand)(nil)
	_ gocmd.Commander[RemoveUserMessage] = (*RemoveUserCommand)(nil)
)

package storegate

import (
	"fmt"

	storegatecommand "github.com/goliatone/go-storegate/command"
	storegatequery "github.com/goliatone/go-storegate/query"
)

// CommandQueryService is the full lifecycle surface the facade wraps.
// core.Gate satisfies it.
type CommandQueryService interface {
	storegatecommand.MutatingService
	storegatequery.SessionReader
	storegatequery.UserReader
}

type Commands struct {
	Install    *storegatecommand.InstallCommand
	Load       *storegatecommand.LoadCommand
	Uninstall  *storegatecommand.UninstallCommand
	RemoveUser *storegatecommand.RemoveUserCommand
}

type Queries struct {
	GetTenantSession *storegatequery.GetTenantSessionQuery
	ListTenantUsers  *storegatequery.ListTenantUsersQuery
}

// Facade bundles the command and query handles a host application mounts
// on its dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

func NewFacade(service CommandQueryService) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("storegate: command/query service is required")
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Install:    storegatecommand.NewInstallCommand(service),
		Load:       storegatecommand.NewLoadCommand(service),
		Uninstall:  storegatecommand.NewUninstallCommand(service),
		RemoveUser: storegatecommand.NewRemoveUserCommand(service),
	}
	facade.queries = Queries{
		GetTenantSession: storegatequery.NewGetTenantSessionQuery(service),
		ListTenantUsers:  storegatequery.NewListTenantUsersQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

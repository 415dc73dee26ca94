package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-storegate/core"
)

type MutatingService interface {
	Install(ctx context.Context, req core.InstallRequest) (core.InstallResult, error)
	Load(ctx context.Context, token string) (core.LoadResult, error)
	Uninstall(ctx context.Context, token string) (core.TenantID, error)
	RemoveUser(ctx context.Context, token string) (core.TenantID, error)
}

type InstallCommand struct {
	service MutatingService
}

func NewInstallCommand(service MutatingService) *InstallCommand {
	return &InstallCommand{service: service}
}

func (c *InstallCommand) Execute(ctx context.Context, msg InstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: install service is required")
	}
	out, err := c.service.Install(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type LoadCommand struct {
	service MutatingService
}

func NewLoadCommand(service MutatingService) *LoadCommand {
	return &LoadCommand{service: service}
}

func (c *LoadCommand) Execute(ctx context.Context, msg LoadMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: load service is required")
	}
	out, err := c.service.Load(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UninstallCommand struct {
	service MutatingService
}

func NewUninstallCommand(service MutatingService) *UninstallCommand {
	return &UninstallCommand{service: service}
}

func (c *UninstallCommand) Execute(ctx context.Context, msg UninstallMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: uninstall service is required")
	}
	out, err := c.service.Uninstall(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveUserCommand struct {
	service MutatingService
}

func NewRemoveUserCommand(service MutatingService) *RemoveUserCommand {
	return &RemoveUserCommand{service: service}
}

func (c *RemoveUserCommand) Execute(ctx context.Context, msg RemoveUserMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: remove user service is required")
	}
	out, err := c.service.RemoveUser(ctx, msg.Token)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

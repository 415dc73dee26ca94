package command

import (
	"strings"

	"github.com/goliatone/go-storegate/core"
)

const (
	TypeInstall    = "storegate.command.install"
	TypeLoad       = "storegate.command.load"
	TypeUninstall  = "storegate.command.uninstall"
	TypeRemoveUser = "storegate.command.remove_user"
)

type InstallMessage struct {
	Request core.InstallRequest
}

func (InstallMessage) Type() string { return TypeInstall }

func (m InstallMessage) Validate() error {
	if strings.TrimSpace(m.Request.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	if strings.TrimSpace(m.Request.Scope) == "" {
		return commandValidationError("scope", "scope is required")
	}
	if strings.TrimSpace(m.Request.Context) == "" {
		return commandValidationError("context", "tenant context is required")
	}
	return nil
}

type LoadMessage struct {
	Token string
}

func (LoadMessage) Type() string { return TypeLoad }

func (m LoadMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return commandValidationError("token", "signed payload token is required")
	}
	return nil
}

type UninstallMessage struct {
	Token string
}

func (UninstallMessage) Type() string { return TypeUninstall }

func (m UninstallMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return commandValidationError("token", "signed payload token is required")
	}
	return nil
}

type RemoveUserMessage struct {
	Token string
}

func (RemoveUserMessage) Type() string { return TypeRemoveUser }

func (m RemoveUserMessage) Validate() error {
	if strings.TrimSpace(m.Token) == "" {
		return commandValidationError("token", "signed payload token is required")
	}
	return nil
}

package storegate

import "github.com/goliatone/go-storegate/core"

type Config = core.Config

type Option = core.Option

type Gate = core.Gate

type TenantID = core.TenantID
type TenantSession = core.TenantSession
type TenantUser = core.TenantUser
type SignedPayload = core.SignedPayload
type WebhookEnvelope = core.WebhookEnvelope

type InstallRequest = core.InstallRequest
type InstallResult = core.InstallResult
type LoadResult = core.LoadResult

type SessionStore = core.SessionStore
type UserStore = core.UserStore
type SignedPayloadVerifier = core.SignedPayloadVerifier
type WebhookVerifier = core.WebhookVerifier
type TokenExchanger = core.TokenExchanger

var (
	WithLogger                = core.WithLogger
	WithLoggerProvider        = core.WithLoggerProvider
	WithErrorFactory          = core.WithErrorFactory
	WithErrorMapper           = core.WithErrorMapper
	WithConfigProvider        = core.WithConfigProvider
	WithOptionsResolver       = core.WithOptionsResolver
	WithPersistenceClient     = core.WithPersistenceClient
	WithRepositoryFactory     = core.WithRepositoryFactory
	WithSessionStore          = core.WithSessionStore
	WithUserStore             = core.WithUserStore
	WithTokenExchanger        = core.WithTokenExchanger
	WithSignedPayloadVerifier = core.WithSignedPayloadVerifier
	WithSetupEnqueuer         = core.WithSetupEnqueuer
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewGate(cfg Config, opts ...Option) (*Gate, error) {
	return core.NewGate(cfg, opts...)
}

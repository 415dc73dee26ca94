package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	JobIDRegisterWebhooks = "storegate.setup.register_webhooks"
	JobIDSyncScripts      = "storegate.setup.sync_scripts"
)

// Gate owns the tenant lifecycle operations behind the trust boundary:
// install, load, uninstall, remove-user, and session reads. Request
// authentication (cookies, signed payloads, webhook signatures) happens
// in the verifier packages; Gate trusts its inputs were verified.
type Gate struct {
	config                Config
	logger                Logger
	loggerProvider        LoggerProvider
	errorFactory          ErrorFactory
	errorMapper           ErrorMapper
	sessionStore          SessionStore
	userStore             UserStore
	tokenExchanger        TokenExchanger
	signedPayloadVerifier SignedPayloadVerifier
	setupEnqueuer         JobEnqueuer
}

func NewGate(cfg Config, options ...Option) (*Gate, error) {
	builder := defaultGateBuilder(cfg)
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("storegate", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("storegate"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.sessionStore == nil || builder.userStore == nil) && builder.repositoryFactory != nil {
		storeProvider, buildErr := builder.repositoryFactory.BuildStores(builder.persistenceClient)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		if storeProvider != nil {
			if builder.sessionStore == nil {
				builder.sessionStore = storeProvider.SessionStore()
			}
			if builder.userStore == nil {
				builder.userStore = storeProvider.UserStore()
			}
		}
	}
	if builder.sessionStore == nil {
		builder.sessionStore = NewMemorySessionStore()
	}
	if builder.userStore == nil {
		builder.userStore = NewMemoryUserStore()
	}

	return &Gate{
		config:                finalConfig,
		logger:                logger,
		loggerProvider:        provider,
		errorFactory:          builder.errorFactory,
		errorMapper:           builder.errorMapper,
		sessionStore:          builder.sessionStore,
		userStore:             builder.userStore,
		tokenExchanger:        builder.tokenExchanger,
		signedPayloadVerifier: builder.signedPayloadVerifier,
		setupEnqueuer:         builder.setupEnqueuer,
	}, nil
}

func (g *Gate) Config() Config {
	if g == nil {
		return Config{}
	}
	return g.config
}

func (g *Gate) Logger() Logger {
	if g == nil {
		return glog.Ensure(nil)
	}
	return g.logger
}

func (g *Gate) SessionStore() SessionStore {
	if g == nil {
		return nil
	}
	return g.sessionStore
}

type InstallRequest struct {
	Code    string
	Scope   string
	Context string
}

func (r InstallRequest) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("core: authorization code is required")
	}
	if strings.TrimSpace(r.Scope) == "" {
		return fmt.Errorf("core: scope is required")
	}
	if strings.TrimSpace(r.Context) == "" {
		return fmt.Errorf("core: context is required")
	}
	return nil
}

type InstallResult struct {
	TenantID TenantID
	Session  TenantSession
}

// Install exchanges the authorization code, bootstraps the tenant
// session record, and enqueues the detached post-install setup. Setup
// enqueue failures are logged and swallowed; they never block or fail
// the install redirect.
func (g *Gate) Install(ctx context.Context, req InstallRequest) (InstallResult, error) {
	if g == nil || g.sessionStore == nil || g.userStore == nil {
		return InstallResult{}, g.mapError(fmt.Errorf("core: gate stores are required"))
	}
	if g.tokenExchanger == nil {
		return InstallResult{}, g.mapError(fmt.Errorf("core: token exchanger is required"))
	}
	if err := req.Validate(); err != nil {
		return InstallResult{}, g.mapError(err)
	}

	exchange, err := g.tokenExchanger.ExchangeCode(ctx, req.Code, req.Context, req.Scope)
	if err != nil {
		g.logger.Error("oauth code exchange failed", "error", err)
		return InstallResult{}, g.mapError(err)
	}

	tenantContext := exchange.Context
	if strings.TrimSpace(tenantContext) == "" {
		tenantContext = req.Context
	}
	tenantID, err := ExtractTenantID(tenantContext)
	if err != nil {
		return InstallResult{}, g.mapError(err)
	}

	session, err := g.sessionStore.Upsert(ctx, UpsertSessionInput{
		TenantID:            tenantID,
		AccessToken:         exchange.AccessToken,
		Scope:               exchange.Scope,
		InstallingUserID:    exchange.UserID,
		InstallingUserEmail: exchange.UserEmail,
		State:               SessionStateInstalled,
	})
	if err != nil {
		return InstallResult{}, g.mapError(err)
	}

	if exchange.UserID > 0 {
		// true ownership is resolved at first load; the installer is
		// recorded as a plain user until then
		if _, userErr := g.userStore.Upsert(ctx, UpsertUserInput{
			TenantID:       tenantID,
			PlatformUserID: exchange.UserID,
			Email:          exchange.UserEmail,
			IsOwner:        false,
		}); userErr != nil {
			return InstallResult{}, g.mapError(userErr)
		}
	}

	g.enqueueSetup(ctx, tenantID)
	g.logger.Info("tenant installed", "tenant_id", tenantID)

	return InstallResult{TenantID: tenantID, Session: session}, nil
}

func (g *Gate) enqueueSetup(ctx context.Context, tenantID TenantID) {
	if g == nil || g.setupEnqueuer == nil {
		return
	}
	for _, jobID := range []string{JobIDRegisterWebhooks, JobIDSyncScripts} {
		msg := &JobExecutionMessage{
			JobID:          jobID,
			Parameters:     map[string]any{"tenant_id": string(tenantID)},
			IdempotencyKey: jobID + ":" + string(tenantID),
		}
		if err := g.setupEnqueuer.Enqueue(ctx, msg); err != nil {
			g.logger.Error("post-install setup enqueue failed",
				"job_id", jobID,
				"tenant_id", tenantID,
				"error", err,
			)
		}
	}
}

type LoadResult struct {
	TenantID TenantID
	Session  TenantSession
	User     TenantUser
}

// Load verifies a load callback token, marks the session loaded, and
// upserts the viewing user with ownership resolved against the payload.
func (g *Gate) Load(ctx context.Context, token string) (LoadResult, error) {
	payload, err := g.verifyPayload(token)
	if err != nil {
		return LoadResult{}, err
	}

	session, err := g.sessionStore.Get(ctx, payload.TenantID)
	if err != nil {
		return LoadResult{}, g.mapError(err)
	}

	session, err = g.sessionStore.Upsert(ctx, UpsertSessionInput{
		TenantID:            session.TenantID,
		AccessToken:         session.AccessToken,
		Scope:               session.Scope,
		InstallingUserID:    session.InstallingUserID,
		InstallingUserEmail: session.InstallingUserEmail,
		StoreDomain:         session.StoreDomain,
		State:               SessionStateLoaded,
		IsOnline:            session.IsOnline,
	})
	if err != nil {
		return LoadResult{}, g.mapError(err)
	}

	user, err := g.userStore.Upsert(ctx, UpsertUserInput{
		TenantID:       payload.TenantID,
		PlatformUserID: payload.UserID,
		Email:          payload.UserEmail,
		IsOwner:        payload.OwnerID > 0 && payload.UserID == payload.OwnerID,
	})
	if err != nil {
		return LoadResult{}, g.mapError(err)
	}

	return LoadResult{TenantID: payload.TenantID, Session: session, User: user}, nil
}

// Uninstall verifies an uninstall callback token and deletes the tenant
// session with all its users. Repeated uninstalls are idempotent.
func (g *Gate) Uninstall(ctx context.Context, token string) (TenantID, error) {
	payload, err := g.verifyPayload(token)
	if err != nil {
		return "", err
	}
	if err := g.userStore.DeleteByTenant(ctx, payload.TenantID); err != nil {
		return "", g.mapError(err)
	}
	if err := g.sessionStore.Delete(ctx, payload.TenantID); err != nil {
		return "", g.mapError(err)
	}
	g.logger.Info("tenant uninstalled", "tenant_id", payload.TenantID)
	return payload.TenantID, nil
}

// RemoveUser verifies a remove-user callback token and deletes the
// single user row it names.
func (g *Gate) RemoveUser(ctx context.Context, token string) (TenantID, error) {
	payload, err := g.verifyPayload(token)
	if err != nil {
		return "", err
	}
	if err := g.userStore.Delete(ctx, payload.TenantID, payload.UserID); err != nil {
		return "", g.mapError(err)
	}
	return payload.TenantID, nil
}

func (g *Gate) verifyPayload(token string) (SignedPayload, error) {
	if g == nil || g.sessionStore == nil || g.userStore == nil {
		return SignedPayload{}, g.mapError(fmt.Errorf("core: gate stores are required"))
	}
	if g.signedPayloadVerifier == nil {
		return SignedPayload{}, g.mapError(fmt.Errorf("core: signed payload verifier is required"))
	}
	payload, err := g.signedPayloadVerifier.Verify(token)
	if err != nil {
		// the cause stays internal; callers see a single generic kind
		g.logger.Error("signed payload verification failed", "error", err)
		if !errors.Is(err, ErrVerificationFailed) {
			err = fmt.Errorf("%w: %v", ErrVerificationFailed, err)
		}
		return SignedPayload{}, g.mapError(err)
	}
	return payload, nil
}

func (g *Gate) GetTenantSession(ctx context.Context, tenantID TenantID) (TenantSession, error) {
	if g == nil || g.sessionStore == nil {
		return TenantSession{}, g.mapError(fmt.Errorf("core: session store is required"))
	}
	if strings.TrimSpace(string(tenantID)) == "" {
		return TenantSession{}, g.mapError(fmt.Errorf("core: tenant id is required"))
	}
	session, err := g.sessionStore.Get(ctx, tenantID)
	if err != nil {
		return TenantSession{}, g.mapError(err)
	}
	return session, nil
}

func (g *Gate) ListTenantUsers(ctx context.Context, tenantID TenantID) ([]TenantUser, error) {
	if g == nil || g.userStore == nil {
		return nil, g.mapError(fmt.Errorf("core: user store is required"))
	}
	if strings.TrimSpace(string(tenantID)) == "" {
		return nil, g.mapError(fmt.Errorf("core: tenant id is required"))
	}
	users, err := g.userStore.List(ctx, tenantID)
	if err != nil {
		return nil, g.mapError(err)
	}
	return users, nil
}

func (g *Gate) mapError(err error) error {
	if err == nil {
		return nil
	}
	if g == nil || g.errorMapper == nil {
		return err
	}
	mapped := g.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

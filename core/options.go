package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type gateBuilder struct {
	runtimeConfig         Config
	logger                Logger
	loggerProvider        LoggerProvider
	errorFactory          ErrorFactory
	errorMapper           ErrorMapper
	configProvider        ConfigProvider
	optionsResolver       OptionsResolver
	persistenceClient     any
	repositoryFactory     RepositoryStoreFactory
	sessionStore          SessionStore
	userStore             UserStore
	tokenExchanger        TokenExchanger
	signedPayloadVerifier SignedPayloadVerifier
	setupEnqueuer         JobEnqueuer
}

type Option func(*gateBuilder)

func WithLogger(logger Logger) Option {
	return func(b *gateBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *gateBuilder) {
		b.loggerProvider = provider
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *gateBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *gateBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *gateBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *gateBuilder) {
		b.optionsResolver = resolver
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *gateBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory RepositoryStoreFactory) Option {
	return func(b *gateBuilder) {
		b.repositoryFactory = factory
	}
}

func WithSessionStore(store SessionStore) Option {
	return func(b *gateBuilder) {
		b.sessionStore = store
	}
}

func WithUserStore(store UserStore) Option {
	return func(b *gateBuilder) {
		b.userStore = store
	}
}

func WithTokenExchanger(exchanger TokenExchanger) Option {
	return func(b *gateBuilder) {
		b.tokenExchanger = exchanger
	}
}

func WithSignedPayloadVerifier(verifier SignedPayloadVerifier) Option {
	return func(b *gateBuilder) {
		b.signedPayloadVerifier = verifier
	}
}

func WithSetupEnqueuer(enqueuer JobEnqueuer) Option {
	return func(b *gateBuilder) {
		b.setupEnqueuer = enqueuer
	}
}

func defaultGateBuilder(runtime Config) gateBuilder {
	loggerProvider, logger := glog.Resolve("storegate", nil, nil)
	return gateBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return gateErrorMapper(err)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.ClientID) != "" {
		layer["client_id"] = cfg.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.ClientSecret) != "" {
		layer["client_secret"] = cfg.ClientSecret
	}
	if includeZero || strings.TrimSpace(cfg.RedirectURI) != "" {
		layer["redirect_uri"] = cfg.RedirectURI
	}
	if includeZero || strings.TrimSpace(cfg.AdminEntryURL) != "" {
		layer["admin_entry_url"] = cfg.AdminEntryURL
	}
	if includeZero || strings.TrimSpace(cfg.ReauthURL) != "" {
		layer["reauth_url"] = cfg.ReauthURL
	}
	if includeZero || cfg.Production {
		layer["production"] = cfg.Production
	}
	if includeZero || cfg.Webhooks.Tolerance > 0 || cfg.Webhooks.AllowUnsigned {
		layer["webhooks"] = map[string]any{
			"tolerance":      cfg.Webhooks.Tolerance,
			"allow_unsigned": cfg.Webhooks.AllowUnsigned,
		}
	}
	if includeZero || strings.TrimSpace(cfg.Cookie.Name) != "" || cfg.Cookie.TTL > 0 || len(cfg.Cookie.Secrets) > 0 {
		layer["cookie"] = map[string]any{
			"name":    cfg.Cookie.Name,
			"ttl":     cfg.Cookie.TTL,
			"secrets": append([]string(nil), cfg.Cookie.Secrets...),
		}
	}
	if includeZero || cfg.Origins.CacheTTL > 0 || cfg.Origins.AllowDevOrigins {
		layer["origins"] = map[string]any{
			"cache_ttl":         cfg.Origins.CacheTTL,
			"allow_dev_origins": cfg.Origins.AllowDevOrigins,
		}
	}
	return layer
}

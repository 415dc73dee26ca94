package origins

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-storegate/core"
	"github.com/goliatone/go-storegate/platform"
)

const allowlistCacheKeyPrefix = "go-storegate::origin_allowlist::v1"

const DefaultCacheTTL = 5 * time.Minute

// Fetcher retrieves tenant-specific storefront domains from the
// platform API, covering custom domains the profile cannot derive.
type Fetcher interface {
	FetchOrigins(ctx context.Context, tenantID core.TenantID) ([]string, error)
}

type Config struct {
	Profile         platform.Profile
	Cache           repositorycache.CacheService
	Fetcher         Fetcher
	AllowDevOrigins bool
	Logger          core.Logger
}

// Allowlist answers whether a browser Origin may talk to a tenant's
// endpoints. Tenant origin sets are cached; concurrent misses for the
// same tenant collapse into a single upstream fetch.
type Allowlist struct {
	profile         platform.Profile
	cache           repositorycache.CacheService
	fetcher         Fetcher
	allowDevOrigins bool
	logger          core.Logger
}

func New(cfg Config) (*Allowlist, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("origins: cache service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = glog.Nop()
	}
	return &Allowlist{
		profile:         cfg.Profile,
		cache:           cfg.Cache,
		fetcher:         cfg.Fetcher,
		allowDevOrigins: cfg.AllowDevOrigins,
		logger:          logger,
	}, nil
}

// NewCacheService builds the backing cache with the allowlist TTL
// applied. Entries expire rather than being invalidated; a tenant's
// new custom domain shows up within one TTL.
func NewCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	return repositorycache.NewCacheService(config)
}

// AllowlistCacheKey returns the deterministic cache key for a tenant's
// origin set: go-storegate::origin_allowlist::v1::<tenant-id>.
func AllowlistCacheKey(tenantID core.TenantID) string {
	return allowlistCacheKeyPrefix + "::" + url.PathEscape(string(tenantID))
}

// Allow reports whether origin may be echoed back in CORS headers for
// the tenant. It returns the value to echo, which is the request
// origin itself, never a wildcard.
func (a *Allowlist) Allow(ctx context.Context, tenantID core.TenantID, origin string) (string, bool) {
	if a == nil {
		return "", false
	}
	host, secure, ok := originHost(origin)
	if !ok {
		return "", false
	}
	if a.allowDevOrigins && isDevHost(host) {
		return origin, true
	}
	if !secure {
		return "", false
	}
	if tenantID == "" {
		return "", false
	}

	domains, err := a.tenantDomains(ctx, tenantID)
	if err != nil {
		a.logger.Error("origin allowlist fetch failed",
			"tenant_id", string(tenantID),
			"error", err.Error(),
		)
		// Serve the derived origin while the platform API is down.
		domains = a.derivedDomains(tenantID)
	}
	for _, domain := range domains {
		if hostMatches(host, domain) {
			return origin, true
		}
	}
	return "", false
}

func (a *Allowlist) tenantDomains(ctx context.Context, tenantID core.TenantID) ([]string, error) {
	return repositorycache.GetOrFetch(ctx, a.cache, AllowlistCacheKey(tenantID), func(ctx context.Context) ([]string, error) {
		domains := a.derivedDomains(tenantID)
		if a.fetcher != nil {
			fetched, err := a.fetcher.FetchOrigins(ctx, tenantID)
			if err != nil {
				return nil, err
			}
			domains = append(domains, fetched...)
		}
		return normalizeDomains(domains), nil
	})
}

func (a *Allowlist) derivedDomains(tenantID core.TenantID) []string {
	derived := a.profile.DeriveOrigin(tenantID)
	if derived == "" {
		return nil
	}
	return []string{derived}
}

// originHost extracts the host from an Origin header value and reports
// whether the scheme is https.
func originHost(origin string) (host string, secure bool, ok bool) {
	origin = strings.TrimSpace(origin)
	if origin == "" || origin == "null" {
		return "", false, false
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return "", false, false
	}
	switch parsed.Scheme {
	case "https":
		return strings.ToLower(parsed.Hostname()), true, true
	case "http":
		return strings.ToLower(parsed.Hostname()), false, true
	default:
		return "", false, false
	}
}

// hostMatches accepts an exact domain match or any subdomain of it.
func hostMatches(host, domain string) bool {
	if host == "" || domain == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}

var devHostSuffixes = []string{
	".ngrok.io",
	".ngrok-free.app",
	".trycloudflare.com",
}

func isDevHost(host string) bool {
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	for _, suffix := range devHostSuffixes {
		if strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// normalizeDomains lowercases entries, strips scheme/path, and dedupes.
func normalizeDomains(entries []string) []string {
	set := map[string]struct{}{}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		domain := strings.ToLower(strings.TrimSpace(entry))
		if domain == "" {
			continue
		}
		if strings.Contains(domain, "://") {
			parsed, err := url.Parse(domain)
			if err != nil || parsed.Hostname() == "" {
				continue
			}
			domain = strings.ToLower(parsed.Hostname())
		}
		domain = strings.TrimSuffix(domain, "/")
		if _, seen := set[domain]; seen {
			continue
		}
		set[domain] = struct{}{}
		out = append(out, domain)
	}
	sort.Strings(out)
	return out
}

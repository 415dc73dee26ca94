// Package platform expresses the differences between the supported
// e-commerce platform variants as configuration. Claim field names,
// audience/issuer enforcement, header aliases, and origin derivation
// all live here so the verifier logic exists exactly once.
package platform

import (
	"fmt"
	"strings"

	"github.com/goliatone/go-storegate/core"
)

// HeaderAliasSet names one complete triple of webhook delivery headers.
type HeaderAliasSet struct {
	ID        string
	Timestamp string
	Signature string
}

// Profile is the injected strategy object describing one platform
// variant. Verifiers take a Profile instead of branching on a platform
// name.
type Profile struct {
	Name string

	// TokenEndpoint receives the authorization-code exchange POST.
	TokenEndpoint string

	// TenantClaim is the explicit tenant id claim, checked before the
	// sub/context fallbacks.
	TenantClaim string
	// SubjectClaim and ContextClaim carry "stores/{id}"-shaped values.
	SubjectClaim string
	ContextClaim string

	// EnforceAudienceIssuer gates aud=clientID / iss=Issuer checks on
	// signed payloads. One variant enforces these, the other does not.
	EnforceAudienceIssuer bool
	Issuer                string

	// WebhookHeaderSets lists the accepted delivery header triples in
	// lookup order.
	WebhookHeaderSets []HeaderAliasSet

	// StorefrontDomain derives the canonical storefront origin host as
	// store-{tenantID}.{StorefrontDomain}. Empty means the variant has
	// no deterministic derivation and origins must be fetched.
	StorefrontDomain string
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("platform: profile name is required")
	}
	if strings.TrimSpace(p.TokenEndpoint) == "" {
		return fmt.Errorf("platform: token endpoint is required")
	}
	if len(p.WebhookHeaderSets) == 0 {
		return fmt.Errorf("platform: at least one webhook header set is required")
	}
	if p.EnforceAudienceIssuer && strings.TrimSpace(p.Issuer) == "" {
		return fmt.Errorf("platform: issuer is required when audience/issuer enforcement is on")
	}
	return nil
}

// DeriveOrigin returns the deterministic storefront origin for a tenant,
// or "" when this variant derives none.
func (p Profile) DeriveOrigin(tenantID core.TenantID) string {
	domain := strings.TrimSpace(p.StorefrontDomain)
	if domain == "" || strings.TrimSpace(string(tenantID)) == "" {
		return ""
	}
	return "https://store-" + string(tenantID) + "." + domain
}

// StandardWebhookHeaderSets is the Standard Webhooks triple plus its
// svix-prefixed legacy alias.
func StandardWebhookHeaderSets() []HeaderAliasSet {
	return []HeaderAliasSet{
		{ID: "webhook-id", Timestamp: "webhook-timestamp", Signature: "webhook-signature"},
		{ID: "svix-id", Timestamp: "svix-timestamp", Signature: "svix-signature"},
	}
}

// BigCommerce is the variant that enforces audience and issuer on
// signed payloads and derives storefront origins from the store hash.
func BigCommerce() Profile {
	return Profile{
		Name:                  "bigcommerce",
		TokenEndpoint:         "https://login.bigcommerce.com/oauth2/token",
		TenantClaim:           "store_hash",
		SubjectClaim:          "sub",
		ContextClaim:          "context",
		EnforceAudienceIssuer: true,
		Issuer:                "bc",
		WebhookHeaderSets:     StandardWebhookHeaderSets(),
		StorefrontDomain:      "mybigcommerce.com",
	}
}

// Ecwid is the variant that skips audience/issuer enforcement and has
// no deterministic origin derivation; custom storefront domains come
// from an authenticated profile fetch instead.
func Ecwid() Profile {
	return Profile{
		Name:              "ecwid",
		TokenEndpoint:     "https://my.ecwid.com/api/oauth/token",
		TenantClaim:       "store_hash",
		SubjectClaim:      "sub",
		ContextClaim:      "context",
		WebhookHeaderSets: StandardWebhookHeaderSets(),
	}
}

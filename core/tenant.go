package core

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidContext = errors.New("core: invalid tenant context")

const tenantContextPrefix = "stores/"

// TenantID is a normalized platform store identifier. Every component
// keys caches and store rows by it, so untrusted tenant-id-shaped input
// must pass NormalizeTenantID before use.
type TenantID string

// NormalizeTenantID trims the input and accepts it only when the whole
// string is alphanumeric. Anything else (separators, spaces, quoting)
// is rejected to keep hostile values out of store and cache keys.
func NormalizeTenantID(raw string) (TenantID, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		default:
			return "", false
		}
	}
	return TenantID(strings.ToLower(trimmed)), true
}

// ExtractTenantID parses a platform context value of the form
// "stores/{id}" with an optional trailing path ("stores/{id}/orders").
func ExtractTenantID(context string) (TenantID, error) {
	trimmed := strings.TrimSpace(context)
	if !strings.HasPrefix(trimmed, tenantContextPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidContext, context)
	}
	rest := trimmed[len(tenantContextPrefix):]
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		rest = rest[:idx]
	}
	tenantID, ok := NormalizeTenantID(rest)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidContext, context)
	}
	return tenantID, nil
}

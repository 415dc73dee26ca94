package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	GateErrorBadInput       = "GATE_BAD_INPUT"
	GateErrorUnauthorized   = "GATE_UNAUTHORIZED"
	GateErrorTenantNotFound = "GATE_TENANT_NOT_FOUND"
	GateErrorUpstreamFailed = "GATE_UPSTREAM_FAILED"
	GateErrorInternal       = "GATE_INTERNAL_ERROR"
)

// ErrVerificationFailed is the single kind every crypto verification
// failure collapses to at the boundary. The specific cause stays in the
// logs; a remote caller never learns which check rejected it.
var ErrVerificationFailed = errors.New("core: verification failed")

func gateErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureGateErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrVerificationFailed):
		return newGateError("verification failed", goerrors.CategoryAuth, GateErrorUnauthorized)
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTenantUserNotFound):
		return newGateError(err.Error(), goerrors.CategoryNotFound, GateErrorTenantNotFound)
	case errors.Is(err, ErrInvalidContext):
		return newGateError(err.Error(), goerrors.CategoryBadInput, GateErrorBadInput)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "exchange"), strings.Contains(msg, "upstream"):
		return newGateError(err.Error(), goerrors.CategoryExternal, GateErrorUpstreamFailed)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "malformed"):
		return newGateError(err.Error(), goerrors.CategoryBadInput, GateErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureGateErrorEnvelope(mapped)
}

func newGateError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureGateErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureGateErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = gateHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultGateTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultGateTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return GateErrorBadInput
	case goerrors.CategoryNotFound:
		return GateErrorTenantNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return GateErrorUnauthorized
	case goerrors.CategoryExternal:
		return GateErrorUpstreamFailed
	default:
		return GateErrorInternal
	}
}

func gateHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryExternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

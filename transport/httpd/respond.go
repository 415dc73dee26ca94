package httpd

import (
	"encoding/json"
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-storegate/core"
)

type statusBody struct {
	Status string `json:"status"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, textCode string, message string) {
	respondJSON(w, status, errorBody{Error: message, Code: textCode})
}

// renderError maps a service error onto the wire. Mapped envelopes
// carry their own status and text code; anything else is an opaque 500.
func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, err error) {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		message := rich.Message
		if rich.Category == goerrors.CategoryInternal || rich.Category == goerrors.CategoryExternal {
			message = "An unexpected error occurred"
		}
		status := rich.Code
		if status == 0 {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		}
		respondError(w, status, rich.TextCode, message)
		return
	}
	h.logger.Error("request failed", "path", r.URL.Path, "error", err)
	respondError(w, http.StatusInternalServerError, core.GateErrorInternal, "An unexpected error occurred")
}

func httpStatus(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code != 0 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

package events

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-storegate/core"
)

func eventsError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func eventsWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return eventsError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func eventsBadInput(message string, metadata map[string]any) error {
	return eventsError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.GateErrorBadInput,
		metadata,
	)
}

func eventsInternal(message string, metadata map[string]any) error {
	return eventsError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.GateErrorInternal,
		metadata,
	)
}

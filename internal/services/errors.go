package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrConfiguration       = errors.New("configuration error")
	ErrRecipientNotPayable = errors.New("recipient not payable")
	ErrInvoiceCreation     = errors.New("invoice creation failed")
	ErrSettlementCheck     = errors.New("settlement check failed")
	ErrSettlementTimeout   = errors.New("settlement timed out")
	ErrEventFetch          = errors.New("event fetch failed")
	ErrSynthesis           = errors.New("speech synthesis failed")
	ErrPlayback            = errors.New("playback failed")
	ErrMalformedProof      = errors.New("malformed payment proof")
	ErrConnection          = errors.New("connection failed")
	ErrNotFound            = errors.New("not found")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrConnection
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// HTTPStatus maps an error to the response code the HTTP surface reports.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRecipientNotPayable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvoiceCreation), errors.Is(err, ErrConnection),
		errors.Is(err, ErrEventFetch), errors.Is(err, ErrSynthesis):
		return http.StatusBadGateway
	case errors.Is(err, ErrSettlementTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/auth"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/authpw"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/email"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/lead"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/leadstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/objectstore"
	"github.com/WinWinMarketing/mynextrideontario-sub000/internal/ratelimit"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError translates service errors into HTTP responses. Unknown errors are
// reported as a bare 500 so internals never leak to clients.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var verr *lead.ValidationError
	if errors.As(err, &verr) {
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed", verr.Fields
	}

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		return http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.",
			map[string]any{"retryAfterSeconds": limited.RetryAfterSeconds()}
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, leadstore.ErrUnsupportedLicense):
		return http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Validation failed",
			[]lead.FieldError{{Field: "driversLicense", Message: "must be a JPEG, PNG, WebP, HEIC or PDF file"}}
	case errors.Is(err, lead.ErrInvalidStatus):
		return http.StatusUnprocessableEntity, "INVALID_STATUS", "Invalid status", nil
	case errors.Is(err, lead.ErrInvalidDeadReason):
		return http.StatusUnprocessableEntity, "INVALID_DEAD_REASON", "Invalid dead reason", nil
	case errors.Is(err, lead.ErrInvalidInteractionType):
		return http.StatusUnprocessableEntity, "INVALID_INTERACTION_TYPE", "Invalid interaction type", nil
	case errors.Is(err, lead.ErrEmptyUpdate):
		return http.StatusBadRequest, "EMPTY_UPDATE", "Nothing to update", nil
	case errors.Is(err, leadstore.ErrInvalidPartition):
		return http.StatusBadRequest, "INVALID_PARTITION", "year and month must identify a valid month", nil
	case errors.Is(err, leadstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Lead not found", nil
	case errors.Is(err, leadstore.ErrLicenseNotFound):
		return http.StatusNotFound, "LICENSE_NOT_FOUND", "No license on file", nil
	case errors.Is(err, objectstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, objectstore.ErrUnavailable):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage temporarily unavailable", nil
	case errors.Is(err, email.ErrNotConfigured):
		return http.StatusServiceUnavailable, "EMAIL_NOT_CONFIGURED", "Email is not configured", nil
	case errors.Is(err, email.ErrUnknownTemplate):
		return http.StatusNotFound, "TEMPLATE_NOT_FOUND", "Email template not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

package errors

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors - these represent business rule violations
var (
	// Authentication & Authorization
	ErrForbidden    = errors.New("action forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrAccessDenied = errors.New("access denied")

	// Update validation
	ErrUpdateNotFound      = errors.New("update not found")
	ErrEventNotFound       = errors.New("event not found")
	ErrContentRequired     = errors.New("content is required")
	ErrContentTooLong      = errors.New("content exceeds maximum length of 1000 characters")
	ErrInvalidPriority     = errors.New("invalid update priority")
	ErrInvalidModeration   = errors.New("invalid moderation status")
	ErrInvalidReaction     = errors.New("invalid reaction type")
	ErrEditWindowExpired   = errors.New("edit window expired")
	ErrUpdateDeleted       = errors.New("update has been deleted")
	ErrModerationAdminOnly = errors.New("only admins may change moderation")
	ErrInvalidEventRef     = errors.New("invalid event reference")

	// Generic
	ErrNotFound    = errors.New("resource not found")
	ErrInternal    = errors.New("internal server error")
	ErrBadRequest  = errors.New("bad request")
	ErrConflict    = errors.New("resource conflict")
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
	RetryAfter time.Duration // Set for rate limit errors only
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *AppError) RetryAfterSeconds() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	secs := int(e.RetryAfter / time.Second)
	if e.RetryAfter%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Err:        ErrUnauthorized,
		Message:    message,
		Code:       "UNAUTHORIZED",
		StatusCode: 401,
	}
}

func NewForbiddenError(message string) *AppError {
	return &AppError{
		Err:        ErrForbidden,
		Message:    message,
		Code:       "FORBIDDEN",
		StatusCode: 403,
	}
}

// NewAccessDeniedError is returned when an actor fails an organizer or reader check.
func NewAccessDeniedError(message string) *AppError {
	return &AppError{
		Err:        ErrAccessDenied,
		Message:    message,
		Code:       "ACCESS_DENIED",
		StatusCode: 403,
	}
}

func NewNotFoundError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "NOT_FOUND",
		StatusCode: 404,
	}
}

func NewEventNotFoundError() *AppError {
	return &AppError{
		Err:        ErrEventNotFound,
		Message:    "Event not found",
		Code:       "EVENT_NOT_FOUND",
		StatusCode: 404,
	}
}

func NewUpdateNotFoundError() *AppError {
	return &AppError{
		Err:        ErrUpdateNotFound,
		Message:    "Update not found",
		Code:       "UPDATE_NOT_FOUND",
		StatusCode: 404,
	}
}

func NewEditWindowExpiredError(window time.Duration) *AppError {
	return &AppError{
		Err:        ErrEditWindowExpired,
		Message:    fmt.Sprintf("Updates can only be edited within %s of creation", window),
		Code:       "EDIT_WINDOW_EXPIRED",
		StatusCode: 400,
	}
}

func NewConflictError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "CONFLICT",
		StatusCode: 409,
	}
}

func NewValidationError(err error, message string, details map[string]interface{}) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "VALIDATION_ERROR",
		StatusCode: 400,
		Details:    details,
	}
}

func NewRateLimitError(retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    "Too many requests. Please try again later.",
		Code:       "RATE_LIMITED",
		StatusCode: 429,
		RetryAfter: retryAfter,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "An unexpected error occurred",
		Code:       "INTERNAL_ERROR",
		StatusCode: 500,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// AsAppError converts any error into an AppError, classifying known sentinels.
func AsAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs *ValidationErrors
	if errors.As(err, &validationErrs) {
		details := make(map[string]interface{}, len(validationErrs.Errors))
		for field, msgs := range validationErrs.Errors {
			details[field] = msgs
		}
		return NewValidationError(err, "Validation failed", details)
	}

	switch {
	case errors.Is(err, ErrEventNotFound):
		return NewEventNotFoundError()
	case errors.Is(err, ErrUpdateNotFound), errors.Is(err, ErrUpdateDeleted):
		return NewUpdateNotFoundError()
	case errors.Is(err, ErrNotFound):
		return NewNotFoundError(err, "Resource not found")
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrModerationAdminOnly):
		return NewAccessDeniedError(err.Error())
	case errors.Is(err, ErrForbidden):
		return NewForbiddenError("You do not have permission to perform this action")
	case errors.Is(err, ErrUnauthorized):
		return NewUnauthorizedError("Authentication required")
	case errors.Is(err, ErrContentRequired),
		errors.Is(err, ErrContentTooLong),
		errors.Is(err, ErrInvalidPriority),
		errors.Is(err, ErrInvalidModeration),
		errors.Is(err, ErrInvalidReaction),
		errors.Is(err, ErrInvalidEventRef):
		return NewValidationError(err, err.Error(), nil)
	case errors.Is(err, ErrEditWindowExpired):
		return &AppError{Err: err, Message: err.Error(), Code: "EDIT_WINDOW_EXPIRED", StatusCode: 400}
	case errors.Is(err, ErrRateLimited):
		return NewRateLimitError(0)
	case errors.Is(err, ErrBadRequest):
		return NewBadRequestError(err, "Bad request")
	case errors.Is(err, ErrConflict):
		return NewConflictError(err, "Resource conflict")
	default:
		return NewInternalError(err)
	}
}

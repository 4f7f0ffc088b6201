package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 64 << 10

// Validator validates request data
type Validator struct {
	errors *apperrors.ValidationErrors
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		errors: apperrors.NewValidationErrors(),
	}
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return v.errors.HasErrors()
}

// Errors returns the validation errors
func (v *Validator) Errors() *apperrors.ValidationErrors {
	return v.errors
}

// Err returns the collected errors, or nil when there are none.
func (v *Validator) Err() error {
	if v.HasErrors() {
		return v.errors
	}
	return nil
}

// Required validates that a string is not empty
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.errors.Add(field, "This field is required")
	}
	return v
}

// MaxRunes validates maximum string length in characters
func (v *Validator) MaxRunes(field, value string, max int) *Validator {
	if utf8.RuneCountInString(value) > max {
		v.errors.Add(field, "Must be at most "+strconv.Itoa(max)+" characters")
	}
	return v
}

// UUID validates UUID format
func (v *Validator) UUID(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := uuid.Parse(value); err != nil {
		v.errors.Add(field, "Must be a valid UUID")
	}
	return v
}

// Range validates integer is within range
func (v *Validator) Range(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors.Add(field, "Must be between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
	}
	return v
}

// OneOf validates value is one of the allowed values
func (v *Validator) OneOf(field, value string, allowed []string) *Validator {
	if value == "" {
		return v // Empty is handled by Required
	}

	for _, a := range allowed {
		if value == a {
			return v
		}
	}

	v.errors.Add(field, "Must be one of: "+strings.Join(allowed, ", "))
	return v
}

// Custom adds a custom validation
func (v *Validator) Custom(field string, valid bool, message string) *Validator {
	if !valid {
		v.errors.Add(field, message)
	}
	return v
}

// DecodeAndValidate decodes a JSON request body
func DecodeAndValidate[T any](r *http.Request) (*T, error) {
	var req T

	body := http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewBadRequestError(err, "Request body is required")
		}
		return nil, apperrors.NewBadRequestError(err, "Invalid request body")
	}

	return &req, nil
}

// DecodePayload decodes an inbound websocket payload. An empty payload
// decodes to the zero value.
func DecodePayload[T any](raw json.RawMessage) (*T, error) {
	var req T

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return &req, nil
	}
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, apperrors.NewBadRequestError(err, "Invalid message payload")
	}

	return &req, nil
}

// ParseEventRef parses an event id or slug from a path or payload field.
func ParseEventRef(field, raw string) (domain.EventRef, error) {
	ref, err := domain.ParseEventRef(raw)
	if err != nil {
		return domain.EventRef{}, apperrors.NewValidationError(err, "Invalid event reference",
			map[string]interface{}{field: []string{"Must be an event id or slug"}})
	}
	return ref, nil
}

// ParseUUID parses a required UUID from a path or payload field.
func ParseUUID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperrors.NewValidationError(err, "Invalid "+field,
			map[string]interface{}{field: []string{"Must be a valid UUID"}})
	}
	return id, nil
}

// ParseListParams reads limit and before from query parameters. Limits above
// the maximum are clamped; malformed values are rejected.
func ParseListParams(query url.Values) (domain.ListUpdatesParams, error) {
	v := NewValidator()
	params := domain.ListUpdatesParams{}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		v.Custom("limit", err == nil && limit > 0, "Must be a positive integer")
		params.Limit = limit
	}

	if raw := query.Get("before"); raw != "" {
		before, err := ParseTimestamp(raw)
		v.Custom("before", err == nil, "Must be an RFC 3339 timestamp")
		if err == nil {
			params.Before = &before
		}
	}

	if err := v.Err(); err != nil {
		return domain.ListUpdatesParams{}, err
	}

	params.Normalize()
	return params, nil
}

// ParseTimestamp accepts RFC 3339 with or without fractional seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// ParseBoolQueryParam safely parses a boolean query parameter
func ParseBoolQueryParam(r *http.Request, key string, defaultValue bool) bool {
	valueStr := r.URL.Query().Get(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

package validation

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/event-updates-backend/internal/core/domain"
	apperrors "github.com/lorrc/event-updates-backend/internal/core/errors"
)

func TestValidator(t *testing.T) {
	v := NewValidator().
		Required("content", "  ").
		MaxRunes("title", strings.Repeat("é", 5), 4).
		OneOf("priority", "urgent", []string{"low", "normal", "high"}).
		UUID("id", "nope").
		Range("limit", 0, 1, 100)

	require.True(t, v.HasErrors())
	for _, field := range []string{"content", "title", "priority", "id", "limit"} {
		assert.Contains(t, v.Errors().Errors, field)
	}

	assert.NoError(t, NewValidator().OneOf("priority", "", []string{"low"}).Err())
	assert.NoError(t, NewValidator().MaxRunes("title", strings.Repeat("é", 4), 4).Err())
}

func TestDecodeAndValidate(t *testing.T) {
	type body struct {
		Content string `json:"content"`
	}

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":"hi"}`))
		got, err := DecodeAndValidate[body](req)
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Content)
	})

	t.Run("empty body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(""))
		_, err := DecodeAndValidate[body](req)
		appErr := apperrors.AsAppError(err)
		assert.Equal(t, 400, appErr.StatusCode)
		assert.Equal(t, "Request body is required", appErr.Message)
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"content":`))
		_, err := DecodeAndValidate[body](req)
		assert.Equal(t, "BAD_REQUEST", apperrors.AsAppError(err).Code)
	})
}

func TestDecodePayload(t *testing.T) {
	type payload struct {
		EventID string `json:"eventId"`
	}

	got, err := DecodePayload[payload](json.RawMessage(`{"eventId":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "abc", got.EventID)

	got, err = DecodePayload[payload](nil)
	require.NoError(t, err)
	assert.Empty(t, got.EventID)

	_, err = DecodePayload[payload](json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestParseEventRef(t *testing.T) {
	ref, err := ParseEventRef("eventId", "summer-fest")
	require.NoError(t, err)
	assert.Equal(t, domain.EventRefBySlug, ref.Kind)

	_, err = ParseEventRef("eventId", "not a slug!")
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
	assert.Contains(t, appErr.Details, "eventId")
}

func TestParseUUID(t *testing.T) {
	id := uuid.New()
	got, err := ParseUUID("updateId", id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseUUID("updateId", "123")
	assert.Equal(t, 400, apperrors.AsAppError(err).StatusCode)
}

func TestParseListParams(t *testing.T) {
	tests := []struct {
		name      string
		query     url.Values
		wantLimit int
		wantErr   bool
	}{
		{name: "defaults", query: url.Values{}, wantLimit: domain.DefaultListLimit},
		{name: "explicit", query: url.Values{"limit": {"5"}}, wantLimit: 5},
		{name: "clamped", query: url.Values{"limit": {"500"}}, wantLimit: domain.MaxListLimit},
		{name: "zero", query: url.Values{"limit": {"0"}}, wantErr: true},
		{name: "garbage", query: url.Values{"limit": {"ten"}}, wantErr: true},
		{name: "bad before", query: url.Values{"before": {"yesterday"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := ParseListParams(tt.query)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantLimit, params.Limit)
		})
	}

	t.Run("before", func(t *testing.T) {
		params, err := ParseListParams(url.Values{"before": {"2026-05-01T12:00:00.5+02:00"}})
		require.NoError(t, err)
		require.NotNil(t, params.Before)
		assert.True(t, params.Before.Equal(time.Date(2026, 5, 1, 10, 0, 0, 500_000_000, time.UTC)))
	})
}

package utils

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// ToText converts a string to a pgtype.Text.
// An empty string is considered invalid (NULL).
func ToText(s string) pgtype.Text {
	return pgtype.Text{
		String: s,
		Valid:  s != "",
	}
}

// FromText converts a pgtype.Text to a string.
// A NULL value is converted to an empty string ("").
func FromText(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// ToNullUUID converts an optional UUID to a pgtype.UUID.
func ToNullUUID(id *uuid.UUID) pgtype.UUID {
	if id == nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: *id, Valid: true}
}

// FromNullUUID converts a pgtype.UUID to an optional UUID.
func FromNullUUID(id pgtype.UUID) *uuid.UUID {
	if !id.Valid {
		return nil
	}
	v := uuid.UUID(id.Bytes)
	return &v
}

// ToNullTime converts an optional time to a pgtype.Timestamptz.
func ToNullTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

// FromNullTime converts a pgtype.Timestamptz to an optional time in UTC.
func FromNullTime(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// NonNilStrings returns an empty slice for nil so array columns never receive NULL.
func NonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

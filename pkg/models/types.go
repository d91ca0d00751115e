package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StringList is a []string stored as a JSON array in a TEXT column. The
// legacy warehouse predates native array columns.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	if src == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan string list: unsupported type %T", src)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, l)
}

// Metadata is a free-form map stored as JSON.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("scan metadata: unsupported type %T", src)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// Time-valued fields on calls are TEXT ISO strings in the legacy schema.
// Every writer goes through FormatISO and every reader through ParseISO so
// the accepted layouts stay in one place.

const isoLayout = time.RFC3339

var isoFallbackLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// FormatISO renders a timestamp for a legacy TEXT column, preserving the
// original offset.
func FormatISO(t time.Time) string {
	return t.Format(isoLayout)
}

// ParseISO parses a legacy TEXT timestamp. Production rows carry a few
// layout variants.
func ParseISO(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("parse iso time: empty string")
	}
	if t, err := time.Parse(isoLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range isoFallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse iso time: unrecognized layout %q", s)
}

// NormalizeEmail lowercases and trims an email address. Prospect and closer
// emails are compared exactly after this normalization, and the normalized
// form is what gets persisted.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UnknownProspectEmail is the sentinel stored when a call's prospect has
// not been identified yet.
const UnknownProspectEmail = "unknown"

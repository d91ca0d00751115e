package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringListRoundTrip(t *testing.T) {
	list := StringList{"strategy", "discovery call"}

	v, err := list.Value()
	require.NoError(t, err)
	assert.Equal(t, `["strategy","discovery call"]`, v)

	var scanned StringList
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, list, scanned)
}

func TestStringListScanNil(t *testing.T) {
	var list StringList
	require.NoError(t, list.Scan(nil))
	assert.Nil(t, list)
}

func TestParseISO(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "rfc3339 with offset",
			input: "2026-02-20T15:00:00-05:00",
			want:  time.Date(2026, 2, 20, 15, 0, 0, 0, time.FixedZone("", -5*3600)),
		},
		{
			name:  "rfc3339 utc",
			input: "2026-02-20T20:00:00Z",
			want:  time.Date(2026, 2, 20, 20, 0, 0, 0, time.UTC),
		},
		{
			name:  "no offset",
			input: "2026-02-20T20:00:00",
			want:  time.Date(2026, 2, 20, 20, 0, 0, 0, time.UTC),
		},
		{
			name:  "date only",
			input: "2026-02-20",
			want:  time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseISO(tt.input)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v want %v", got, tt.want)
		})
	}

	t.Run("empty string fails", func(t *testing.T) {
		_, err := ParseISO("")
		assert.Error(t, err)
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := ParseISO("next tuesday")
		assert.Error(t, err)
	})
}

func TestFormatISOPreservesOffset(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	ts := time.Date(2026, 2, 20, 15, 0, 0, 0, loc)
	assert.Equal(t, "2026-02-20T15:00:00-05:00", FormatISO(ts))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "john@ex.com", NormalizeEmail("  John@Ex.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestCallTimeHelpers(t *testing.T) {
	call := &Call{
		ScheduledStartTime: "2026-02-20T20:00:00Z",
		ScheduledEndTime:   "2026-02-20T21:00:00Z",
	}
	assert.Equal(t, time.Date(2026, 2, 20, 20, 0, 0, 0, time.UTC), call.StartTime())
	assert.Equal(t, time.Date(2026, 2, 20, 21, 0, 0, 0, time.UTC), call.EndTime())

	t.Run("missing end falls back to start", func(t *testing.T) {
		call := &Call{ScheduledStartTime: "2026-02-20T20:00:00Z"}
		assert.Equal(t, call.StartTime(), call.EndTime())
	})
}

func TestTenantMatchesFilter(t *testing.T) {
	tenant := &Tenant{FilterPhrases: StringList{"strategy", "intro"}}

	assert.True(t, tenant.MatchesFilter("Strategy Call with John"))
	assert.True(t, tenant.MatchesFilter("INTRO SESSION"))
	assert.False(t, tenant.MatchesFilter("Team standup"))

	t.Run("wildcard accepts everything", func(t *testing.T) {
		tenant := &Tenant{FilterPhrases: StringList{"*"}}
		assert.True(t, tenant.MatchesFilter("anything at all"))
	})

	t.Run("no phrases accepts nothing", func(t *testing.T) {
		tenant := &Tenant{}
		assert.False(t, tenant.MatchesFilter("Strategy Call"))
	})
}

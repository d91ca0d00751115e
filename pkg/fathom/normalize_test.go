package fathom

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMeetingJSON = `{
	"id": 918273,
	"title": "Strategy Call with Amy Pond",
	"meeting_title": "Strategy Call - Amy Pond",
	"url": "https://fathom.video/calls/918273",
	"share_url": "https://fathom.video/share/abc123",
	"created_at": "2026-02-20T21:05:00Z",
	"scheduled_start_time": "2026-02-20T20:00:00Z",
	"scheduled_end_time": "2026-02-20T21:00:00Z",
	"recording_start_time": "2026-02-20T20:02:11Z",
	"recording_end_time": "2026-02-20T20:48:43Z",
	"recorded_by": {"name": "Tyler Ray", "email": "Tyler@Acme.io", "team": "Sales"},
	"calendar_invitees": [
		{"name": "Tyler Ray", "email": "tyler@acme.io", "is_external": false},
		{"name": "Amy Pond", "email": "Amy@Example.com", "is_external": true}
	],
	"default_summary": "Amy wants to think it over.",
	"transcript": [
		{"speaker": {"display_name": "Tyler Ray", "matched_invitee_email": "tyler@acme.io"}, "text": "Hey Amy, thanks for hopping on.", "timestamp": "0:05"},
		{"speaker": {"display_name": "Amy Pond", "matched_invitee_email": "amy@example.com"}, "text": "Of course, excited to chat.", "timestamp": "0:09"},
		{"speaker": {"display_name": "Tyler Ray", "matched_invitee_email": "tyler@acme.io"}, "text": "Let me walk you through the offer.", "timestamp": "1:02:15"}
	]
}`

func TestNormalizeMeeting(t *testing.T) {
	ct, err := normalizeMeeting([]byte(sampleMeetingJSON))
	require.NoError(t, err)

	assert.Equal(t, "fathom", ct.Provider)
	assert.Equal(t, "918273", ct.MeetingID)
	assert.Equal(t, "Strategy Call - Amy Pond", ct.Title)
	assert.Equal(t, "Amy wants to think it over.", ct.Summary)
	assert.Equal(t, "tyler@acme.io", ct.CloserEmail)
	assert.Equal(t, "amy@example.com", ct.ProspectEmail)
	assert.Equal(t, "Amy Pond", ct.ProspectName)
	assert.Equal(t, "https://fathom.video/share/abc123", ct.ShareURL)
	assert.Equal(t, "https://fathom.video/calls/918273", ct.TranscriptURL)
	assert.Equal(t, time.Date(2026, 2, 20, 20, 0, 0, 0, time.UTC), ct.ScheduledStart)
	assert.Equal(t, 47, ct.DurationMinutes)
	assert.False(t, ct.Partial)

	wantText := "00:00:05 - Tyler Ray: Hey Amy, thanks for hopping on.\n" +
		"00:00:09 - Amy Pond: Of course, excited to chat.\n" +
		"01:02:15 - Tyler Ray: Let me walk you through the offer."
	assert.Equal(t, wantText, ct.Text)

	assert.Equal(t, 2, ct.SpeakerCount)
	assert.Equal(t, 2, ct.Speakers["Tyler Ray"].Utterances)
	assert.Equal(t, 13, ct.Speakers["Tyler Ray"].Words)
	assert.Equal(t, 1, ct.Speakers["Amy Pond"].Utterances)

	assert.JSONEq(t, sampleMeetingJSON, string(ct.Raw))
}

func TestNormalizeMeetingMetadataOnly(t *testing.T) {
	payload := `{
		"id": "rec_55",
		"meeting_title": "Strategy Call",
		"recorded_by": {"email": "tyler@acme.io"},
		"recording_start_time": "2026-02-20T20:02:00Z"
	}`

	ct, err := normalizeMeeting([]byte(payload))
	require.NoError(t, err)

	assert.True(t, ct.Partial)
	assert.Equal(t, "rec_55", ct.MeetingID)
	assert.Empty(t, ct.Text)
	assert.Zero(t, ct.SpeakerCount)
}

func TestNormalizeMeetingEmptyTranscript(t *testing.T) {
	// An empty transcript array means the recording captured nothing,
	// which is not the same as the section being absent.
	payload := `{
		"id": 12,
		"recorded_by": {"email": "tyler@acme.io"},
		"transcript": []
	}`

	ct, err := normalizeMeeting([]byte(payload))
	require.NoError(t, err)

	assert.False(t, ct.Partial)
	assert.Empty(t, ct.Text)
	assert.Zero(t, ct.SpeakerCount)
}

func TestNormalizeMeetingMissingID(t *testing.T) {
	_, err := normalizeMeeting([]byte(`{"title": "mystery"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no meeting id")
}

func TestNormalizeMeetingInvalidJSON(t *testing.T) {
	_, err := normalizeMeeting([]byte("not json"))
	require.Error(t, err)
}

func TestPickProspect(t *testing.T) {
	t.Run("external invitee wins", func(t *testing.T) {
		email, name, ok := pickProspect([]invitee{
			{Name: "Tyler Ray", Email: "tyler@acme.io"},
			{Name: "Amy Pond", Email: "amy@example.com", IsExternal: true},
		}, "tyler@acme.io")
		require.True(t, ok)
		assert.Equal(t, "amy@example.com", email)
		assert.Equal(t, "Amy Pond", name)
	})

	t.Run("falls back to non-closer email when nothing is flagged", func(t *testing.T) {
		email, _, ok := pickProspect([]invitee{
			{Name: "Tyler Ray", Email: "tyler@acme.io"},
			{Name: "Amy Pond", Email: "amy@example.com"},
		}, "tyler@acme.io")
		require.True(t, ok)
		assert.Equal(t, "amy@example.com", email)
	})

	t.Run("closer alone yields nothing", func(t *testing.T) {
		_, _, ok := pickProspect([]invitee{
			{Name: "Tyler Ray", Email: "tyler@acme.io"},
		}, "tyler@acme.io")
		assert.False(t, ok)
	})
}

func TestPadTimestamp(t *testing.T) {
	cases := map[string]string{
		"":         "00:00:00",
		"5":        "00:00:05",
		"0:05":     "00:00:05",
		"12:34":    "00:12:34",
		"1:02:15":  "01:02:15",
		"01:02:15": "01:02:15",
	}
	for in, want := range cases {
		assert.Equal(t, want, padTimestamp(in), "input %q", in)
	}
}

func TestRenderTranscriptSkipsBlankUtterances(t *testing.T) {
	text, speakers := renderTranscript([]utterance{
		{Text: "   ", Timestamp: "0:01"},
		{Speaker: utteranceSpeaker{MatchedInviteeEmail: "Amy@Example.com"}, Text: "hello there", Timestamp: "0:02"},
	})

	assert.Equal(t, "00:00:02 - amy@example.com: hello there", text)
	assert.Len(t, speakers, 1)
	assert.Equal(t, 2, speakers["amy@example.com"].Words)
}

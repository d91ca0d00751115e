// Package fathom is the Fathom transcript provider: a webhook adapter that
// normalizes notetaker payloads into canonical transcripts, and an API
// client for catch-up polling and webhook management.
package fathom

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/callscope/callscope/pkg/models"
)

// ProviderName is the key Fathom registers under in the adapter registry
// and the value stored on calls ingested from Fathom.
const ProviderName = "fathom"

// meetingPayload is the shape Fathom delivers on its meeting-content
// webhook and returns from the meetings API. The transcript key is a
// pointer so an absent section (metadata-first delivery) is
// distinguishable from an empty one.
type meetingPayload struct {
	ID                 flexID       `json:"id"`
	Title              string       `json:"title"`
	MeetingTitle       string       `json:"meeting_title"`
	URL                string       `json:"url"`
	ShareURL           string       `json:"share_url"`
	CreatedAt          string       `json:"created_at"`
	ScheduledStartTime string       `json:"scheduled_start_time"`
	ScheduledEndTime   string       `json:"scheduled_end_time"`
	RecordingStartTime string       `json:"recording_start_time"`
	RecordingEndTime   string       `json:"recording_end_time"`
	RecordedBy         participant  `json:"recorded_by"`
	CalendarInvitees   []invitee    `json:"calendar_invitees"`
	DefaultSummary     string       `json:"default_summary"`
	Transcript         *[]utterance `json:"transcript"`
}

type participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Team  string `json:"team"`
}

type invitee struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsExternal bool   `json:"is_external"`
}

type utterance struct {
	Speaker   utteranceSpeaker `json:"speaker"`
	Text      string           `json:"text"`
	Timestamp string           `json:"timestamp"`
}

type utteranceSpeaker struct {
	DisplayName         string `json:"display_name"`
	MatchedInviteeEmail string `json:"matched_invitee_email"`
}

// flexID absorbs Fathom's habit of sending ids as numbers on webhooks and
// strings on the API.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Adapter normalizes Fathom webhook payloads.
type Adapter struct{}

func (Adapter) Name() string { return ProviderName }

func (Adapter) Normalize(payload []byte) (*models.CanonicalTranscript, error) {
	return normalizeMeeting(payload)
}

func normalizeMeeting(raw []byte) (*models.CanonicalTranscript, error) {
	var p meetingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parsing fathom payload: %w", err)
	}
	if p.ID == "" {
		return nil, fmt.Errorf("fathom payload has no meeting id")
	}

	ct := &models.CanonicalTranscript{
		Provider:       ProviderName,
		MeetingID:      string(p.ID),
		Title:          firstNonEmpty(p.MeetingTitle, p.Title),
		Summary:        p.DefaultSummary,
		CloserEmail:    models.NormalizeEmail(p.RecordedBy.Email),
		ScheduledStart: parseTimestamp(p.ScheduledStartTime),
		RecordingStart: parseTimestamp(p.RecordingStartTime),
		RecordingEnd:   parseTimestamp(p.RecordingEndTime),
		ShareURL:       p.ShareURL,
		TranscriptURL:  p.URL,
		Raw:            json.RawMessage(raw),
	}

	if email, name, ok := pickProspect(p.CalendarInvitees, ct.CloserEmail); ok {
		ct.ProspectEmail = email
		ct.ProspectName = name
	}

	if !ct.RecordingStart.IsZero() && ct.RecordingEnd.After(ct.RecordingStart) {
		ct.DurationMinutes = int(math.Round(ct.RecordingEnd.Sub(ct.RecordingStart).Minutes()))
	}

	if p.Transcript == nil {
		ct.Partial = true
		return ct, nil
	}

	ct.Text, ct.Speakers = renderTranscript(*p.Transcript)
	ct.SpeakerCount = len(ct.Speakers)
	return ct, nil
}

// pickProspect chooses the prospect from the invitee list: the first
// invitee Fathom marks external, else the first whose email is not the
// recording closer's.
func pickProspect(invitees []invitee, closerEmail string) (email, name string, ok bool) {
	for _, inv := range invitees {
		addr := models.NormalizeEmail(inv.Email)
		if addr == "" {
			continue
		}
		if inv.IsExternal {
			return addr, strings.TrimSpace(inv.Name), true
		}
	}
	for _, inv := range invitees {
		addr := models.NormalizeEmail(inv.Email)
		if addr == "" || addr == closerEmail {
			continue
		}
		return addr, strings.TrimSpace(inv.Name), true
	}
	return "", "", false
}

// renderTranscript flattens utterances into one line each, as
// "HH:MM:SS - Speaker: text", and tallies per-speaker stats.
func renderTranscript(utterances []utterance) (string, map[string]models.SpeakerStats) {
	lines := make([]string, 0, len(utterances))
	speakers := make(map[string]models.SpeakerStats)
	for _, u := range utterances {
		text := strings.TrimSpace(u.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(u.Speaker.DisplayName)
		if speaker == "" {
			speaker = models.NormalizeEmail(u.Speaker.MatchedInviteeEmail)
		}
		if speaker == "" {
			speaker = "Unknown"
		}
		lines = append(lines, fmt.Sprintf("%s - %s: %s", padTimestamp(u.Timestamp), speaker, text))

		stats := speakers[speaker]
		stats.Utterances++
		stats.Words += len(strings.Fields(text))
		speakers[speaker] = stats
	}
	if len(lines) == 0 {
		return "", map[string]models.SpeakerStats{}
	}
	return strings.Join(lines, "\n"), speakers
}

// padTimestamp normalizes Fathom offsets to HH:MM:SS. Fathom omits the
// hour segment on short calls.
func padTimestamp(ts string) string {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return "00:00:00"
	}
	parts := strings.Split(ts, ":")
	for len(parts) < 3 {
		parts = append([]string{"00"}, parts...)
	}
	for i, p := range parts {
		if len(p) == 1 {
			parts[i] = "0" + p
		}
	}
	return strings.Join(parts, ":")
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Canonical event types emitted by calendar adapters.
const (
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
	EventUpdated   = "updated"
)

// Attendee is one participant on a canonical calendar event.
type Attendee struct {
	Email          string `json:"email"`
	Name           string `json:"name"`
	IsOrganizer    bool   `json:"is_organizer"`
	ResponseStatus string `json:"response_status"`
}

// CanonicalEvent is the provider-neutral form of a calendar event. Adapters
// produce it; everything downstream consumes only this.
type CanonicalEvent struct {
	EventID        string     `json:"event_id"`
	EventType      string     `json:"event_type"`
	Title          string     `json:"title"`
	Start          time.Time  `json:"start"`
	End            time.Time  `json:"end"`
	Updated        time.Time  `json:"updated"`
	Timezone       string     `json:"timezone"`
	OrganizerEmail string     `json:"organizer_email"`
	Attendees      []Attendee `json:"attendees"`
	Status         string     `json:"status"`

	// DeclinedAttendees holds the emails of attendees whose response
	// status is declined. Derived by the adapter.
	DeclinedAttendees []string `json:"declined_attendees"`
}

// IsCancelled reports whether the event was cancelled on the provider
// side, by status or by event type.
func (e *CanonicalEvent) IsCancelled() bool {
	return e.Status == EventCancelled || e.EventType == EventCancelled
}

// HasDeclined reports whether any attendee declined.
func (e *CanonicalEvent) HasDeclined() bool {
	return len(e.DeclinedAttendees) > 0
}

// Fingerprint identifies a push delivery for the recency filter. Two
// notifications with the same fingerprint within the window are the same
// logical change.
func (e *CanonicalEvent) Fingerprint() string {
	emails := make([]string, 0, len(e.Attendees))
	for _, a := range e.Attendees {
		emails = append(emails, NormalizeEmail(a.Email))
	}
	sort.Strings(emails)
	parts := []string{
		e.EventID,
		NormalizeEmail(e.OrganizerEmail),
		strings.Join(emails, ","),
		e.Status,
		e.Start.UTC().Format(time.RFC3339),
	}
	return strings.Join(parts, "|")
}

// SpeakerStats summarizes one speaker's contribution to a transcript.
type SpeakerStats struct {
	Utterances int `json:"utterances"`
	Words      int `json:"words"`
}

// CanonicalTranscript is the provider-neutral form of a finished call
// recording. Text is the flattened rendering, one utterance per line as
// "HH:MM:SS - Speaker: text".
type CanonicalTranscript struct {
	Provider  string `json:"provider"`
	MeetingID string `json:"meeting_id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`

	CloserEmail   string `json:"closer_email"`
	ProspectEmail string `json:"prospect_email"`
	ProspectName  string `json:"prospect_name"`

	ScheduledStart  time.Time `json:"scheduled_start"`
	RecordingStart  time.Time `json:"recording_start"`
	RecordingEnd    time.Time `json:"recording_end"`
	DurationMinutes int       `json:"duration_minutes"`

	Text          string `json:"text"`
	ShareURL      string `json:"share_url"`
	TranscriptURL string `json:"transcript_url"`

	SpeakerCount int                     `json:"speaker_count"`
	Speakers     map[string]SpeakerStats `json:"speakers"`

	// Partial marks payloads that announce a meeting without carrying the
	// transcript section. These need a later pull, unlike an empty
	// transcript, which means nobody spoke.
	Partial bool `json:"partial"`

	Raw json.RawMessage `json:"-"`
}

// SyntheticEventID is the external event id given to calls created from a
// transcript with no calendar counterpart.
func SyntheticEventID(meetingID string) string {
	return "transcript_" + meetingID
}

// IsSynthetic reports whether an external event id was generated by
// transcript ingestion rather than a calendar provider.
func IsSynthetic(externalEventID string) bool {
	return strings.HasPrefix(externalEventID, "transcript_")
}

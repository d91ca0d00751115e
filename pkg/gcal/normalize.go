// Package gcal is the Google Calendar provider: event listing, push
// channel management, and normalization into canonical events.
package gcal

import (
	"time"

	"github.com/callscope/callscope/pkg/models"
)

// googleEvent mirrors the fields of the Calendar API v3 event resource
// that the engine consumes.
type googleEvent struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	Summary   string           `json:"summary"`
	Start     googleEventTime  `json:"start"`
	End       googleEventTime  `json:"end"`
	Updated   string           `json:"updated"`
	Organizer *googleActor     `json:"organizer"`
	Attendees []googleAttendee `json:"attendees"`
}

type googleEventTime struct {
	DateTime string `json:"dateTime"`
	Date     string `json:"date"`
	TimeZone string `json:"timeZone"`
}

type googleActor struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type googleAttendee struct {
	Email          string `json:"email"`
	DisplayName    string `json:"displayName"`
	Organizer      bool   `json:"organizer"`
	ResponseStatus string `json:"responseStatus"`
	Resource       bool   `json:"resource"`
}

// normalizeEvent converts one API event into canonical form. Room
// resources are dropped from the attendee list; declined attendees are
// collected separately because a decline is treated like a cancellation
// downstream.
func normalizeEvent(evt googleEvent) models.CanonicalEvent {
	out := models.CanonicalEvent{
		EventID:   evt.ID,
		Title:     evt.Summary,
		Status:    normalizeStatus(evt.Status),
		EventType: models.EventConfirmed,
		Start:     parseEventTime(evt.Start),
		End:       parseEventTime(evt.End),
		Timezone:  evt.Start.TimeZone,
	}
	if out.Status == models.EventCancelled {
		out.EventType = models.EventCancelled
	}
	if t, err := time.Parse(time.RFC3339, evt.Updated); err == nil {
		out.Updated = t
	}
	if evt.Organizer != nil {
		out.OrganizerEmail = models.NormalizeEmail(evt.Organizer.Email)
	}

	for _, a := range evt.Attendees {
		if a.Resource {
			continue
		}
		email := models.NormalizeEmail(a.Email)
		out.Attendees = append(out.Attendees, models.Attendee{
			Email:          email,
			Name:           a.DisplayName,
			IsOrganizer:    a.Organizer,
			ResponseStatus: a.ResponseStatus,
		})
		if a.ResponseStatus == "declined" && email != "" {
			out.DeclinedAttendees = append(out.DeclinedAttendees, email)
		}
	}
	return out
}

func normalizeStatus(status string) string {
	switch status {
	case "cancelled":
		return models.EventCancelled
	default:
		return models.EventConfirmed
	}
}

// parseEventTime handles both timed events (dateTime, RFC3339 with
// offset) and all-day events (date only, taken as midnight).
func parseEventTime(t googleEventTime) time.Time {
	if t.DateTime != "" {
		if parsed, err := time.Parse(time.RFC3339, t.DateTime); err == nil {
			return parsed
		}
	}
	if t.Date != "" {
		if parsed, err := time.Parse("2006-01-02", t.Date); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

package lifecycle

import (
	"github.com/callscope/callscope/pkg/models"
)

// DispatchAction is what the calendar orchestrator should do with an
// incoming event given the existing call record.
type DispatchAction string

const (
	DispatchIgnore DispatchAction = "ignore"
	DispatchCreate DispatchAction = "create"
	DispatchCancel DispatchAction = "cancel"
	DispatchUpdate DispatchAction = "update"
)

// DispatchDecision carries the chosen action and, for updates, which
// parts of the record drifted.
type DispatchDecision struct {
	Action DispatchAction
	Reason string

	StartChanged    bool
	ProspectChanged bool
}

// DecideDispatch applies the calendar dispatch rules. existing is the
// newest call sharing the event's external id within the tenant, or nil.
// prospect is the identity extracted from the incoming event. The decision
// is pure; the orchestrator performs the resulting writes and the state
// machine still validates any transition.
func DecideDispatch(evt *models.CanonicalEvent, existing *models.Call, prospect ProspectIdentity) DispatchDecision {
	if existing == nil {
		if evt.IsCancelled() {
			return DispatchDecision{Action: DispatchIgnore, Reason: "cancelled event with no record"}
		}
		return DispatchDecision{Action: DispatchCreate, Reason: "new event"}
	}

	if evt.IsCancelled() || evt.HasDeclined() {
		if existing.AttendanceStatus.IsTerminalConversational() {
			return DispatchDecision{Action: DispatchIgnore, Reason: "cancellation after outcome"}
		}
		return DispatchDecision{Action: DispatchCancel, Reason: cancelReason(evt)}
	}

	// The closer reused the calendar event for a fresh meeting after the
	// previous one concluded. Same external id, new call identity. A Show
	// record whose outcome is still pending is not reuse yet; deliveries
	// during the analysis window are duplicates.
	if existing.AttendanceStatus.IsTerminalConversational() {
		if existing.AttendanceStatus == models.AttendanceShow && existing.CallOutcome == "" {
			return DispatchDecision{Action: DispatchIgnore, Reason: "analysis still pending"}
		}
		return DispatchDecision{Action: DispatchCreate, Reason: "event reused after outcome"}
	}

	startChanged := startDiffers(existing, evt)

	if existing.AttendanceStatus.IsPreOutcome() {
		prospectChanged := prospectDiffers(existing, prospect)
		if startChanged || prospectChanged {
			return DispatchDecision{
				Action:          DispatchUpdate,
				Reason:          "event drifted",
				StartChanged:    startChanged,
				ProspectChanged: prospectChanged,
			}
		}
		return DispatchDecision{Action: DispatchIgnore, Reason: "duplicate delivery"}
	}

	if existing.AttendanceStatus == models.AttendanceCanceled ||
		existing.AttendanceStatus == models.AttendanceRescheduled {
		return DispatchDecision{Action: DispatchCreate, Reason: "event reconfirmed"}
	}

	if existing.AttendanceStatus == models.AttendanceGhosted ||
		existing.AttendanceStatus == models.AttendanceNoRecording {
		if startChanged {
			return DispatchDecision{Action: DispatchCreate, Reason: "new time after missed call"}
		}
		return DispatchDecision{Action: DispatchIgnore, Reason: "already resolved"}
	}

	return DispatchDecision{Action: DispatchIgnore, Reason: "no rule for state " + stateLabel(existing.AttendanceStatus)}
}

func cancelReason(evt *models.CanonicalEvent) string {
	if evt.IsCancelled() {
		return "event cancelled"
	}
	return "attendee declined"
}

func startDiffers(existing *models.Call, evt *models.CanonicalEvent) bool {
	stored := existing.StartTime()
	if stored.IsZero() {
		return !evt.Start.IsZero()
	}
	return !stored.Equal(evt.Start)
}

// prospectDiffers reports whether the extracted identity contradicts the
// stored one. An unknown extraction never contradicts; resolving a
// previously unknown prospect counts as a change.
func prospectDiffers(existing *models.Call, prospect ProspectIdentity) bool {
	if prospect.Email != models.UnknownProspectEmail && prospect.Email != "" {
		if models.NormalizeEmail(existing.ProspectEmail) != prospect.Email {
			return true
		}
	}
	if prospect.Name != "" && existing.ProspectName == "" {
		return true
	}
	return false
}

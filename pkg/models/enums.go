// Package models contains the domain entities persisted in the warehouse
// and the closed enumerations shared across the engine.
package models

// AttendanceState is the lifecycle state stored on a call. The zero value
// means the call has been created from a calendar event and nothing has
// happened yet.
type AttendanceState string

const (
	// AttendanceUnset is the initial state of a freshly created call.
	AttendanceUnset AttendanceState = ""
	// AttendanceScheduled is a legacy alias of the initial state still
	// present in production rows.
	AttendanceScheduled AttendanceState = "Scheduled"
	// AttendanceWaiting means the appointment time has passed and no
	// transcript has arrived yet.
	AttendanceWaiting AttendanceState = "Waiting for Outcome"
	// AttendanceShow means a real conversation happened.
	AttendanceShow AttendanceState = "Show"
	// AttendanceGhosted means the prospect never showed up.
	AttendanceGhosted AttendanceState = "Ghosted - No Show"
	// AttendanceNoRecording means the call happened but produced no usable
	// recording.
	AttendanceNoRecording AttendanceState = "No Recording"
	// AttendanceCanceled is terminal.
	AttendanceCanceled AttendanceState = "Canceled"
	// AttendanceRescheduled means the event moved; a fresh call tracks the
	// new time.
	AttendanceRescheduled AttendanceState = "Rescheduled"
	// AttendanceOverbooked means the closer took another call in the same
	// window.
	AttendanceOverbooked AttendanceState = "Overbooked"

	// Post-show outcomes are persisted in the attendance field as well.

	// AttendanceClosedWon is terminal.
	AttendanceClosedWon    AttendanceState = "Closed - Won"
	AttendanceDeposit      AttendanceState = "Deposit"
	AttendanceFollowUp     AttendanceState = "Follow Up"
	AttendanceLost         AttendanceState = "Lost"
	AttendanceDisqualified AttendanceState = "Disqualified"
	AttendanceNotPitched   AttendanceState = "Not Pitched"
)

// IsValid checks whether the state is a member of the closed set.
func (s AttendanceState) IsValid() bool {
	switch s {
	case AttendanceUnset,
		AttendanceScheduled,
		AttendanceWaiting,
		AttendanceShow,
		AttendanceGhosted,
		AttendanceNoRecording,
		AttendanceCanceled,
		AttendanceRescheduled,
		AttendanceOverbooked,
		AttendanceClosedWon,
		AttendanceDeposit,
		AttendanceFollowUp,
		AttendanceLost,
		AttendanceDisqualified,
		AttendanceNotPitched:
		return true
	default:
		return false
	}
}

// IsPreOutcome reports whether a calendar update may still mutate the call
// in place.
func (s AttendanceState) IsPreOutcome() bool {
	return s == AttendanceUnset || s == AttendanceScheduled || s == AttendanceWaiting
}

// IsTerminalConversational reports whether the call has an outcome: the
// conversation happened and was (or is about to be) classified.
func (s AttendanceState) IsTerminalConversational() bool {
	switch s {
	case AttendanceShow,
		AttendanceClosedWon,
		AttendanceDeposit,
		AttendanceFollowUp,
		AttendanceLost,
		AttendanceDisqualified,
		AttendanceNotPitched:
		return true
	default:
		return false
	}
}

// CallOutcome is the AI-produced classification of a shown call.
type CallOutcome string

const (
	OutcomeClosedWon    CallOutcome = "Closed - Won"
	OutcomeDeposit      CallOutcome = "Deposit"
	OutcomeFollowUp     CallOutcome = "Follow Up"
	OutcomeLost         CallOutcome = "Lost"
	OutcomeDisqualified CallOutcome = "Disqualified"
	OutcomeNotPitched   CallOutcome = "Not Pitched"
)

// IsValid checks whether the outcome is a member of the closed set.
func (o CallOutcome) IsValid() bool {
	switch o {
	case OutcomeClosedWon, OutcomeDeposit, OutcomeFollowUp,
		OutcomeLost, OutcomeDisqualified, OutcomeNotPitched:
		return true
	default:
		return false
	}
}

// AttendanceState returns the attendance value persisted for this outcome.
func (o CallOutcome) AttendanceState() AttendanceState {
	return AttendanceState(o)
}

// CallType distinguishes first conversations from follow-ups.
type CallType string

const (
	CallTypeFirstCall            CallType = "First Call"
	CallTypeFollowUp             CallType = "Follow Up"
	CallTypeRescheduledFirstCall CallType = "Rescheduled First Call"
	CallTypeRescheduledFollowUp  CallType = "Rescheduled Follow Up"
)

// IsValid checks whether the call type is a member of the closed set.
func (t CallType) IsValid() bool {
	switch t {
	case CallTypeFirstCall, CallTypeFollowUp,
		CallTypeRescheduledFirstCall, CallTypeRescheduledFollowUp:
		return true
	default:
		return false
	}
}

// RescheduledVariant maps a call type to its rescheduled form, applied
// when the event's start time moves before the call happens. Already
// rescheduled types map to themselves.
func (t CallType) RescheduledVariant() CallType {
	switch t {
	case CallTypeFollowUp, CallTypeRescheduledFollowUp:
		return CallTypeRescheduledFollowUp
	default:
		return CallTypeRescheduledFirstCall
	}
}

// ProcessingState tracks the AI pipeline's progress on a call.
type ProcessingState string

const (
	ProcessingBlank      ProcessingState = ""
	ProcessingPending    ProcessingState = "pending"
	ProcessingQueued     ProcessingState = "queued"
	ProcessingProcessing ProcessingState = "processing"
	ProcessingComplete   ProcessingState = "complete"
	ProcessingError      ProcessingState = "error"
)

// IngestionSource records which pipeline created the call row.
type IngestionSource string

const (
	SourceCalendar   IngestionSource = "calendar"
	SourceTranscript IngestionSource = "transcript"
)

// TranscriptState tracks whether transcript material has been attached to
// a call and whether analysis has consumed it.
type TranscriptState string

const (
	TranscriptNone      TranscriptState = ""
	TranscriptReceived  TranscriptState = "received"
	TranscriptProcessed TranscriptState = "processed"
)

// PaymentType is the normalized type on an inbound payment event.
type PaymentType string

const (
	PaymentFull       PaymentType = "full"
	PaymentDeposit    PaymentType = "deposit"
	PaymentPlan       PaymentType = "payment_plan"
	PaymentRefund     PaymentType = "refund"
	PaymentChargeback PaymentType = "chargeback"
)

// IsValid checks whether the payment type is a member of the closed set.
func (p PaymentType) IsValid() bool {
	switch p {
	case PaymentFull, PaymentDeposit, PaymentPlan, PaymentRefund, PaymentChargeback:
		return true
	default:
		return false
	}
}

// IsNegative reports whether the payment reduces collected cash.
func (p PaymentType) IsNegative() bool {
	return p == PaymentRefund || p == PaymentChargeback
}

// PlanLabel returns the human label stored on the call's payment plan
// field for positive payment types.
func (p PaymentType) PlanLabel() string {
	switch p {
	case PaymentFull:
		return "Full"
	case PaymentDeposit:
		return "Deposit"
	case PaymentPlan:
		return "Payment Plan"
	default:
		return ""
	}
}

// PlanTier gates which dashboard features a tenant sees. The engine only
// stores it.
type PlanTier string

const (
	TierBasic     PlanTier = "basic"
	TierInsight   PlanTier = "insight"
	TierExecutive PlanTier = "executive"
)

// IsValid checks whether the tier is a member of the closed set.
func (t PlanTier) IsValid() bool {
	return t == TierBasic || t == TierInsight || t == TierExecutive
}

// EntityStatus is the shared active/inactive lifecycle flag. Nothing is
// ever deleted.
type EntityStatus string

const (
	StatusActive   EntityStatus = "active"
	StatusInactive EntityStatus = "inactive"
)

// AuditAction categorizes an audit entry.
type AuditAction string

const (
	ActionCreated         AuditAction = "created"
	ActionUpdated         AuditAction = "updated"
	ActionStateChange     AuditAction = "state_change"
	ActionError           AuditAction = "error"
	ActionPaymentReceived AuditAction = "payment_received"
	ActionPaymentClose    AuditAction = "payment_close"
)

// TriggerSource identifies which ingress produced a change.
type TriggerSource string

const (
	TriggerSourceCalendarWebhook   TriggerSource = "calendar_webhook"
	TriggerSourceTranscriptWebhook TriggerSource = "transcript_webhook"
	TriggerSourcePaymentWebhook    TriggerSource = "payment_webhook"
	TriggerSourceAIProcessing      TriggerSource = "ai_processing"
	TriggerSourceTimeout           TriggerSource = "timeout"
	TriggerSourceAdmin             TriggerSource = "admin"
	TriggerSourceSystem            TriggerSource = "system"
)

// Trigger names the cause of a state transition. Only (from, to, trigger)
// triples present in the transition table are applied.
type Trigger string

const (
	TriggerCalendarCancel      Trigger = "calendar_cancel"
	TriggerCalendarMoved       Trigger = "calendar_moved"
	TriggerTranscriptValid     Trigger = "transcript_valid"
	TriggerTranscriptEmpty     Trigger = "transcript_empty"
	TriggerTranscriptTimeout   Trigger = "transcript_timeout"
	TriggerTimePassed          Trigger = "appointment_time_passed"
	TriggerSystemFailure       Trigger = "system_failure"
	TriggerDoubleBooked        Trigger = "double_booked"
	TriggerAIOutcome           Trigger = "ai_outcome"
	TriggerPaymentReceived     Trigger = "payment_received"
	TriggerPaymentReceivedFull Trigger = "payment_received_full"
	TriggerNewCallScheduled    Trigger = "new_call_scheduled"
	TriggerReprocess           Trigger = "reprocess"
)

// AlertSeverity routes alert delivery: critical and high go out
// synchronously, medium batches into a digest, low is log-only.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

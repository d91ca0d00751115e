package models

import "time"

// Call is the central entity: one scheduled or held meeting. The row id is
// generated by this system; the external event id belongs to the calendar
// provider and is not unique within a tenant (a reused event yields a
// second row with the same external id).
type Call struct {
	ID              string `db:"id" json:"id"`
	ExternalEventID string `db:"external_event_id" json:"external_event_id"`
	TenantID        string `db:"client_id" json:"client_id"`
	CloserID        string `db:"closer_id" json:"closer_id"`

	ProspectEmail string `db:"prospect_email" json:"prospect_email"`
	ProspectName  string `db:"prospect_name" json:"prospect_name"`

	// Legacy TEXT ISO timestamps, original timezone preserved.
	ScheduledStartTime string `db:"scheduled_start_time" json:"scheduled_start_time"`
	ScheduledEndTime   string `db:"scheduled_end_time" json:"scheduled_end_time"`
	Timezone           string `db:"timezone" json:"timezone"`

	AttendanceStatus AttendanceState `db:"attendance_status" json:"attendance_status"`
	CallOutcome      CallOutcome     `db:"call_outcome" json:"call_outcome"`
	CallType         CallType        `db:"call_type" json:"call_type"`

	TranscriptProvider string          `db:"transcript_provider" json:"transcript_provider"`
	TranscriptStatus   TranscriptState `db:"transcript_status" json:"transcript_status"`
	ProviderMeetingID  string          `db:"provider_meeting_id" json:"provider_meeting_id"`
	RecordingURL       string          `db:"recording_url" json:"recording_url"`
	TranscriptURL      string          `db:"transcript_url" json:"transcript_url"`
	CallURL            string          `db:"call_url" json:"call_url"`
	DurationMinutes    int             `db:"duration_minutes" json:"duration_minutes"`

	DiscoveryScore         float64 `db:"discovery_score" json:"discovery_score"`
	PitchScore             float64 `db:"pitch_score" json:"pitch_score"`
	CloseScore             float64 `db:"close_score" json:"close_score"`
	ObjectionHandlingScore float64 `db:"objection_handling_score" json:"objection_handling_score"`
	OverallScore           float64 `db:"overall_score" json:"overall_score"`
	ScriptAdherenceScore   float64 `db:"script_adherence_score" json:"script_adherence_score"`
	ProspectFitScore       float64 `db:"prospect_fit_score" json:"prospect_fit_score"`
	ProspectTemperature    string  `db:"prospect_temperature" json:"prospect_temperature"`

	ProspectGoals    string `db:"prospect_goals" json:"prospect_goals"`
	ProspectPains    string `db:"prospect_pains" json:"prospect_pains"`
	CurrentSituation string `db:"current_situation" json:"current_situation"`
	CallSummary      string `db:"call_summary" json:"call_summary"`
	CloserFeedback   string `db:"closer_feedback" json:"closer_feedback"`

	RevenueGenerated float64 `db:"revenue_generated" json:"revenue_generated"`
	CashCollected    float64 `db:"cash_collected" json:"cash_collected"`
	PaymentPlan      string  `db:"payment_plan" json:"payment_plan"`
	ProductName      string  `db:"product_name" json:"product_name"`
	DateClosed       string  `db:"date_closed" json:"date_closed"`
	LostReason       string  `db:"lost_reason" json:"lost_reason"`

	ProcessingStatus ProcessingState `db:"processing_status" json:"processing_status"`
	Source           IngestionSource `db:"source" json:"source"`

	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// StartTime parses the scheduled start. Returns the zero time when the
// column is empty or unparseable.
func (c *Call) StartTime() time.Time {
	t, err := ParseISO(c.ScheduledStartTime)
	if err != nil {
		return time.Time{}
	}
	return t
}

// EndTime parses the scheduled end, falling back to the start when the end
// was never recorded.
func (c *Call) EndTime() time.Time {
	if t, err := ParseISO(c.ScheduledEndTime); err == nil {
		return t
	}
	return c.StartTime()
}

// HasKnownProspect reports whether prospect identity has been resolved.
func (c *Call) HasKnownProspect() bool {
	return c.ProspectEmail != "" && c.ProspectEmail != UnknownProspectEmail
}

// CallUpdate is a partial update applied to a call row. Nil fields are
// left untouched. State transitions batch their side-effect fields into
// one of these so the attendance change and its payload land in a single
// write.
type CallUpdate struct {
	ProspectEmail    *string
	ProspectName     *string
	ScheduledStart   *string
	ScheduledEnd     *string
	Timezone         *string
	AttendanceStatus *AttendanceState
	CallOutcome      *CallOutcome
	CallType         *CallType

	TranscriptProvider *string
	TranscriptStatus   *TranscriptState
	ProviderMeetingID  *string
	RecordingURL       *string
	TranscriptURL      *string
	CallURL            *string
	DurationMinutes    *int

	DiscoveryScore         *float64
	PitchScore             *float64
	CloseScore             *float64
	ObjectionHandlingScore *float64
	OverallScore           *float64
	ScriptAdherenceScore   *float64
	ProspectFitScore       *float64
	ProspectTemperature    *string

	ProspectGoals    *string
	ProspectPains    *string
	CurrentSituation *string
	CallSummary      *string
	CloserFeedback   *string

	RevenueGenerated *float64
	CashCollected    *float64
	PaymentPlan      *string
	ProductName      *string
	DateClosed       *string
	LostReason       *string

	ProcessingStatus *ProcessingState
}

// Ptr returns a pointer to v. Shorthand for building partial updates.
func Ptr[T any](v T) *T {
	return &v
}

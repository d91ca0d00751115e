package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/callscope/callscope/pkg/models"
)

// CallStore persists call rows.
type CallStore struct {
	db *sqlx.DB
}

const callColumns = `id, external_event_id, client_id, closer_id,
	prospect_email, prospect_name,
	scheduled_start_time, scheduled_end_time, timezone,
	attendance_status, call_outcome, call_type,
	transcript_provider, transcript_status, provider_meeting_id,
	recording_url, transcript_url, call_url, duration_minutes,
	discovery_score, pitch_score, close_score, objection_handling_score,
	overall_score, script_adherence_score, prospect_fit_score,
	prospect_temperature,
	prospect_goals, prospect_pains, current_situation, call_summary,
	closer_feedback,
	revenue_generated, cash_collected, payment_plan, product_name,
	date_closed, lost_reason,
	processing_status, source, created_at, updated_at`

// Insert writes a new call row. Empty created/updated timestamps are
// filled with now.
func (s *CallStore) Insert(ctx context.Context, call *models.Call) error {
	if call.TenantID == "" {
		return fmt.Errorf("insert call: missing tenant id")
	}
	now := models.FormatISO(time.Now().UTC())
	if call.CreatedAt == "" {
		call.CreatedAt = now
	}
	if call.UpdatedAt == "" {
		call.UpdatedAt = now
	}

	query := `INSERT INTO calls (` + callColumns + `) VALUES (
		:id, :external_event_id, :client_id, :closer_id,
		:prospect_email, :prospect_name,
		:scheduled_start_time, :scheduled_end_time, :timezone,
		:attendance_status, :call_outcome, :call_type,
		:transcript_provider, :transcript_status, :provider_meeting_id,
		:recording_url, :transcript_url, :call_url, :duration_minutes,
		:discovery_score, :pitch_score, :close_score, :objection_handling_score,
		:overall_score, :script_adherence_score, :prospect_fit_score,
		:prospect_temperature,
		:prospect_goals, :prospect_pains, :current_situation, :call_summary,
		:closer_feedback,
		:revenue_generated, :cash_collected, :payment_plan, :product_name,
		:date_closed, :lost_reason,
		:processing_status, :source, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, query, call); err != nil {
		return fmt.Errorf("insert call %s: %w", call.ID, err)
	}
	return nil
}

// GetByID fetches one call within the tenant.
func (s *CallStore) GetByID(ctx context.Context, tenantID, id string) (*models.Call, error) {
	var call models.Call
	query := `SELECT ` + callColumns + ` FROM calls WHERE client_id = $1 AND id = $2`
	if err := s.db.GetContext(ctx, &call, query, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get call %s: %w", id, err)
	}
	return &call, nil
}

// FindByExternalEventID fetches the most recently created call for a
// calendar event within the tenant. External event ids repeat when a
// closer reuses an event, so newest-first matters.
func (s *CallStore) FindByExternalEventID(ctx context.Context, tenantID, externalEventID string) (*models.Call, error) {
	var call models.Call
	query := `SELECT ` + callColumns + ` FROM calls
		WHERE client_id = $1 AND external_event_id = $2
		ORDER BY created_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &call, query, tenantID, externalEventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find call by event %s: %w", externalEventID, err)
	}
	return &call, nil
}

// FindByProviderMeetingID fetches the call already bound to a provider
// meeting within the tenant. The binding is written when a transcript
// first lands on a call; redeliveries resolve here instead of matching
// again.
func (s *CallStore) FindByProviderMeetingID(ctx context.Context, tenantID, provider, meetingID string) (*models.Call, error) {
	var call models.Call
	query := `SELECT ` + callColumns + ` FROM calls
		WHERE client_id = $1 AND transcript_provider = $2 AND provider_meeting_id = $3
		ORDER BY created_at DESC LIMIT 1`
	if err := s.db.GetContext(ctx, &call, query, tenantID, provider, meetingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find call by meeting %s: %w", meetingID, err)
	}
	return &call, nil
}

// Update applies a partial update to one call within the tenant. Nil
// fields in upd are left untouched; updated_at is always refreshed.
func (s *CallStore) Update(ctx context.Context, tenantID, id string, upd *models.CallUpdate) error {
	b := &setBuilder{}
	addCallUpdate(b, upd)
	b.add("updated_at", models.FormatISO(time.Now().UTC()))

	query := fmt.Sprintf(`UPDATE calls SET %s WHERE client_id = $%d AND id = $%d`,
		strings.Join(b.cols, ", "), len(b.args)+1, len(b.args)+2)
	args := append(b.args, tenantID, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update call %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByCloserStates returns the closer's calls in any of the given
// states. Time filtering happens in the caller because the legacy columns
// are ISO strings.
func (s *CallStore) ListByCloserStates(ctx context.Context, tenantID, closerID string, states []models.AttendanceState) ([]models.Call, error) {
	query, args, err := sqlx.In(`SELECT `+callColumns+` FROM calls
		WHERE client_id = ? AND closer_id = ? AND attendance_status IN (?)`,
		tenantID, closerID, stateStrings(states))
	if err != nil {
		return nil, fmt.Errorf("list calls by closer: %w", err)
	}
	var calls []models.Call
	if err := s.db.SelectContext(ctx, &calls, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list calls by closer: %w", err)
	}
	return calls, nil
}

// ListByProspectStates returns the prospect's calls in any of the given
// states within the tenant.
func (s *CallStore) ListByProspectStates(ctx context.Context, tenantID, prospectEmail string, states []models.AttendanceState) ([]models.Call, error) {
	query, args, err := sqlx.In(`SELECT `+callColumns+` FROM calls
		WHERE client_id = ? AND prospect_email = ? AND attendance_status IN (?)`,
		tenantID, prospectEmail, stateStrings(states))
	if err != nil {
		return nil, fmt.Errorf("list calls by prospect: %w", err)
	}
	var calls []models.Call
	if err := s.db.SelectContext(ctx, &calls, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list calls by prospect: %w", err)
	}
	return calls, nil
}

// CountByProspectStates counts the prospect's calls in any of the given
// states within the tenant.
func (s *CallStore) CountByProspectStates(ctx context.Context, tenantID, prospectEmail string, states []models.AttendanceState) (int, error) {
	query, args, err := sqlx.In(`SELECT COUNT(*) FROM calls
		WHERE client_id = ? AND prospect_email = ? AND attendance_status IN (?)`,
		tenantID, prospectEmail, stateStrings(states))
	if err != nil {
		return 0, fmt.Errorf("count calls by prospect: %w", err)
	}
	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count calls by prospect: %w", err)
	}
	return count, nil
}

// ListByStatesAllTenants is the sweeper's batch read: every call in any
// of the given states regardless of tenant. Cross-tenant by design; all
// other reads are tenant-scoped.
func (s *CallStore) ListByStatesAllTenants(ctx context.Context, states []models.AttendanceState) ([]models.Call, error) {
	query, args, err := sqlx.In(`SELECT `+callColumns+` FROM calls
		WHERE attendance_status IN (?)`, stateStrings(states))
	if err != nil {
		return nil, fmt.Errorf("list calls by state: %w", err)
	}
	var calls []models.Call
	if err := s.db.SelectContext(ctx, &calls, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list calls by state: %w", err)
	}
	return calls, nil
}

func stateStrings(states []models.AttendanceState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

// setBuilder accumulates SET clauses with positional placeholders. Column
// names come from the fixed lists below, values are always bound.
type setBuilder struct {
	cols []string
	args []any
}

func (b *setBuilder) add(col string, v any) {
	b.args = append(b.args, v)
	b.cols = append(b.cols, fmt.Sprintf("%s = $%d", col, len(b.args)))
}

func addCallUpdate(b *setBuilder, upd *models.CallUpdate) {
	if upd == nil {
		return
	}
	if upd.ProspectEmail != nil {
		b.add("prospect_email", *upd.ProspectEmail)
	}
	if upd.ProspectName != nil {
		b.add("prospect_name", *upd.ProspectName)
	}
	if upd.ScheduledStart != nil {
		b.add("scheduled_start_time", *upd.ScheduledStart)
	}
	if upd.ScheduledEnd != nil {
		b.add("scheduled_end_time", *upd.ScheduledEnd)
	}
	if upd.Timezone != nil {
		b.add("timezone", *upd.Timezone)
	}
	if upd.AttendanceStatus != nil {
		b.add("attendance_status", string(*upd.AttendanceStatus))
	}
	if upd.CallOutcome != nil {
		b.add("call_outcome", string(*upd.CallOutcome))
	}
	if upd.CallType != nil {
		b.add("call_type", string(*upd.CallType))
	}
	if upd.TranscriptProvider != nil {
		b.add("transcript_provider", *upd.TranscriptProvider)
	}
	if upd.TranscriptStatus != nil {
		b.add("transcript_status", string(*upd.TranscriptStatus))
	}
	if upd.ProviderMeetingID != nil {
		b.add("provider_meeting_id", *upd.ProviderMeetingID)
	}
	if upd.RecordingURL != nil {
		b.add("recording_url", *upd.RecordingURL)
	}
	if upd.TranscriptURL != nil {
		b.add("transcript_url", *upd.TranscriptURL)
	}
	if upd.CallURL != nil {
		b.add("call_url", *upd.CallURL)
	}
	if upd.DurationMinutes != nil {
		b.add("duration_minutes", *upd.DurationMinutes)
	}
	if upd.DiscoveryScore != nil {
		b.add("discovery_score", *upd.DiscoveryScore)
	}
	if upd.PitchScore != nil {
		b.add("pitch_score", *upd.PitchScore)
	}
	if upd.CloseScore != nil {
		b.add("close_score", *upd.CloseScore)
	}
	if upd.ObjectionHandlingScore != nil {
		b.add("objection_handling_score", *upd.ObjectionHandlingScore)
	}
	if upd.OverallScore != nil {
		b.add("overall_score", *upd.OverallScore)
	}
	if upd.ScriptAdherenceScore != nil {
		b.add("script_adherence_score", *upd.ScriptAdherenceScore)
	}
	if upd.ProspectFitScore != nil {
		b.add("prospect_fit_score", *upd.ProspectFitScore)
	}
	if upd.ProspectTemperature != nil {
		b.add("prospect_temperature", *upd.ProspectTemperature)
	}
	if upd.ProspectGoals != nil {
		b.add("prospect_goals", *upd.ProspectGoals)
	}
	if upd.ProspectPains != nil {
		b.add("prospect_pains", *upd.ProspectPains)
	}
	if upd.CurrentSituation != nil {
		b.add("current_situation", *upd.CurrentSituation)
	}
	if upd.CallSummary != nil {
		b.add("call_summary", *upd.CallSummary)
	}
	if upd.CloserFeedback != nil {
		b.add("closer_feedback", *upd.CloserFeedback)
	}
	if upd.RevenueGenerated != nil {
		b.add("revenue_generated", *upd.RevenueGenerated)
	}
	if upd.CashCollected != nil {
		b.add("cash_collected", *upd.CashCollected)
	}
	if upd.PaymentPlan != nil {
		b.add("payment_plan", *upd.PaymentPlan)
	}
	if upd.ProductName != nil {
		b.add("product_name", *upd.ProductName)
	}
	if upd.DateClosed != nil {
		b.add("date_closed", *upd.DateClosed)
	}
	if upd.LostReason != nil {
		b.add("lost_reason", *upd.LostReason)
	}
	if upd.ProcessingStatus != nil {
		b.add("processing_status", string(*upd.ProcessingStatus))
	}
}

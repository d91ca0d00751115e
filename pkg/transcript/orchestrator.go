package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/warehouse"
)

// Outcome classifies what one transcript delivery produced.
type Outcome string

const (
	// OutcomeProcessed means a call was transitioned.
	OutcomeProcessed Outcome = "processed"
	// OutcomeNeedsPolling means the payload announced a meeting without
	// its transcript; the sweeper pulls it later.
	OutcomeNeedsPolling Outcome = "needs_polling"
	// OutcomeUnidentified means no closer owns the transcript. Nothing
	// is created.
	OutcomeUnidentified Outcome = "unidentified"
	// OutcomeDuplicate means an earlier delivery of the same meeting
	// already concluded the call; this one changed nothing.
	OutcomeDuplicate Outcome = "duplicate"
)

// Result reports what happened to one delivery.
type Result struct {
	Outcome    Outcome                `json:"outcome"`
	MeetingID  string                 `json:"meeting_id,omitempty"`
	TenantID   string                 `json:"tenant_id,omitempty"`
	CallID     string                 `json:"call_id,omitempty"`
	Attendance models.AttendanceState `json:"attendance,omitempty"`
}

// Hints carry the sweeper's disambiguation when it re-dispatches a pulled
// transcript. Webhook deliveries leave them empty.
type Hints struct {
	TenantID string
	CallID   string
	Source   models.TriggerSource
}

func (h Hints) source() models.TriggerSource {
	if h.Source == "" {
		return models.TriggerSourceTranscriptWebhook
	}
	return h.Source
}

// CloserSource resolves which closer, and therefore which tenant, a
// transcript belongs to.
type CloserSource interface {
	FindActiveByEmail(ctx context.Context, tenantID, email string) (*models.Closer, error)
	FindActiveByEmailAllTenants(ctx context.Context, email string) ([]models.Closer, error)
}

// TenantSource loads the owning tenant for prompt assembly and filters.
type TenantSource interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// CallSource is the call access the orchestrator needs.
type CallSource interface {
	lifecycle.CallStore
	Insert(ctx context.Context, call *models.Call) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Call, error)
	FindByExternalEventID(ctx context.Context, tenantID, externalEventID string) (*models.Call, error)
	FindByProviderMeetingID(ctx context.Context, tenantID, provider, meetingID string) (*models.Call, error)
}

// ProspectSource maintains prospect aggregates.
type ProspectSource interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*models.Prospect, error)
	Insert(ctx context.Context, p *models.Prospect) error
	RecordCall(ctx context.Context, tenantID, email, name string) error
	RecordShow(ctx context.Context, tenantID, email string) error
}

// Analyzer runs the AI pipeline on a shown call. Implementations own
// their persistence, including setting processing state to error on
// failure.
type Analyzer interface {
	Analyze(ctx context.Context, tenant *models.Tenant, call *models.Call, transcript *models.CanonicalTranscript) error
}

// Deps wires the orchestrator. Analyzer may be nil, leaving shown calls
// queued for a later pass. Config may be nil; the package defaults apply.
type Deps struct {
	Config    *config.TranscriptConfig
	Closers   CloserSource
	Tenants   TenantSource
	Calls     CallSource
	Prospects ProspectSource
	Machine   *lifecycle.Machine
	Recorder  *audit.Recorder
	Alerts    *alerts.Service
	Adapters  *Registry
	Analyzer  Analyzer
}

// Orchestrator turns provider payloads into call transitions.
type Orchestrator struct {
	cfg       *config.TranscriptConfig
	closers   CloserSource
	tenants   TenantSource
	calls     CallSource
	prospects ProspectSource
	machine   *lifecycle.Machine
	recorder  *audit.Recorder
	alerts    *alerts.Service
	adapters  *Registry
	analyzer  Analyzer
	logger    *slog.Logger
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       deps.Config,
		closers:   deps.Closers,
		tenants:   deps.Tenants,
		calls:     deps.Calls,
		prospects: deps.Prospects,
		machine:   deps.Machine,
		recorder:  deps.Recorder,
		alerts:    deps.Alerts,
		adapters:  deps.Adapters,
		analyzer:  deps.Analyzer,
		logger:    slog.With("component", "transcript"),
	}
}

func (o *Orchestrator) matchWindow() time.Duration {
	if o.cfg != nil && o.cfg.MatchWindow > 0 {
		return o.cfg.MatchWindow
	}
	return defaultMatchWindow
}

func (o *Orchestrator) minChars() int {
	if o.cfg != nil && o.cfg.MinLength > 0 {
		return o.cfg.MinLength
	}
	return defaultMinChars
}

func (o *Orchestrator) minSpeakers() int {
	if o.cfg != nil && o.cfg.MinSpeakers > 0 {
		return o.cfg.MinSpeakers
	}
	return defaultMinSpeakers
}

// Process ingests one webhook payload for the named provider.
func (o *Orchestrator) Process(ctx context.Context, provider string, payload []byte, hints Hints) (*Result, error) {
	adapter, ok := o.adapters.Get(provider)
	if !ok {
		return nil, fmt.Errorf("no transcript adapter for provider %q", provider)
	}
	t, err := adapter.Normalize(payload)
	if err != nil {
		return nil, fmt.Errorf("normalize %s payload: %w", provider, err)
	}
	return o.ProcessCanonical(ctx, t, hints)
}

// ProcessCanonical ingests an already-normalized transcript. The sweeper
// uses this path after pulling from a provider's listing API.
func (o *Orchestrator) ProcessCanonical(ctx context.Context, t *models.CanonicalTranscript, hints Hints) (*Result, error) {
	if t.Partial {
		o.logger.Info("Transcript payload is metadata only, deferring to pull",
			"provider", t.Provider,
			"meeting_id", t.MeetingID)
		return &Result{Outcome: OutcomeNeedsPolling, MeetingID: t.MeetingID}, nil
	}

	closer, err := o.resolveCloser(ctx, t, hints)
	if err != nil {
		return nil, err
	}
	if closer == nil {
		o.alerts.Notify(ctx, alerts.Alert{
			Severity:        models.SeverityHigh,
			Component:       "transcript",
			Summary:         "Transcript matched no closer",
			Detail:          fmt.Sprintf("provider %s meeting %s closer email %s", t.Provider, t.MeetingID, t.CloserEmail),
			Error:           "no active closer matches the recording host",
			SuggestedAction: "Add the closer or fix their work email, then reprocess the meeting",
		})
		o.logger.Warn("Unidentified transcript",
			"provider", t.Provider,
			"meeting_id", t.MeetingID,
			"closer_email", t.CloserEmail)
		return &Result{Outcome: OutcomeUnidentified, MeetingID: t.MeetingID}, nil
	}

	tenant, err := o.tenants.GetByID(ctx, closer.TenantID)
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", closer.TenantID, err)
	}

	call, err := o.resolveCall(ctx, tenant, closer, t, hints)
	if err != nil {
		return nil, err
	}
	created := false
	if call == nil {
		call, err = o.createFromTranscript(ctx, tenant, closer, t, hints)
		if err != nil {
			return nil, err
		}
		created = true
	}

	target := evaluateAttendance(t, o.minChars(), o.minSpeakers())

	if !created {
		if hints.CallID == call.ID && call.AttendanceStatus == models.AttendanceShow &&
			call.ProcessingStatus == models.ProcessingError && target == models.AttendanceShow {
			return o.reanalyze(ctx, tenant, call, t, hints)
		}
		// An earlier delivery already landed this meeting on the call.
		// A fuller transcript may still revive a ghost; anything else is
		// a redelivery and must not transition, create, or re-analyze.
		if !reprocessable(call.AttendanceStatus) || call.AttendanceStatus == target {
			o.logger.Info("Transcript already concluded its call, ignoring redelivery",
				"tenant_id", tenant.ID,
				"call_id", call.ID,
				"meeting_id", t.MeetingID,
				"attendance", string(call.AttendanceStatus))
			return &Result{
				Outcome:    OutcomeDuplicate,
				MeetingID:  t.MeetingID,
				TenantID:   tenant.ID,
				CallID:     call.ID,
				Attendance: call.AttendanceStatus,
			}, nil
		}
	}

	if err := o.applyTransition(ctx, tenant, call, t, target, hints); err != nil {
		return nil, err
	}

	if target == models.AttendanceShow {
		o.afterShow(ctx, tenant, call, t)
	}

	return &Result{
		Outcome:    OutcomeProcessed,
		MeetingID:  t.MeetingID,
		TenantID:   tenant.ID,
		CallID:     call.ID,
		Attendance: call.AttendanceStatus,
	}, nil
}

// resolveCloser finds the closer by work email. A tenant hint scopes the
// lookup; otherwise the email is searched across all tenants. Returns
// (nil, nil) when nobody matches.
func (o *Orchestrator) resolveCloser(ctx context.Context, t *models.CanonicalTranscript, hints Hints) (*models.Closer, error) {
	if t.CloserEmail == "" {
		return nil, nil
	}

	if hints.TenantID != "" {
		closer, err := o.closers.FindActiveByEmail(ctx, hints.TenantID, t.CloserEmail)
		if err != nil {
			if errors.Is(err, warehouse.ErrNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("resolve closer in tenant %s: %w", hints.TenantID, err)
		}
		return closer, nil
	}

	matches, err := o.closers.FindActiveByEmailAllTenants(ctx, t.CloserEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve closer across tenants: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		// The same work email under several tenants cannot be told apart
		// without a hint. Take the first and flag it.
		o.logger.Warn("Closer email is ambiguous across tenants",
			"closer_email", t.CloserEmail,
			"matches", len(matches),
			"chosen_tenant", matches[0].TenantID)
		return &matches[0], nil
	}
}

// resolveCall picks the call this transcript belongs to: the hinted call,
// the call already bound to this meeting by an earlier delivery, or the
// two-tier match. The caller decides what a concluded call means; this
// only locates it.
func (o *Orchestrator) resolveCall(ctx context.Context, tenant *models.Tenant, closer *models.Closer, t *models.CanonicalTranscript, hints Hints) (*models.Call, error) {
	if hints.CallID != "" {
		call, err := o.calls.GetByID(ctx, tenant.ID, hints.CallID)
		if err == nil {
			return call, nil
		}
		if !errors.Is(err, warehouse.ErrNotFound) {
			return nil, fmt.Errorf("load hinted call %s: %w", hints.CallID, err)
		}
		o.logger.Warn("Hinted call not found, falling back to matching",
			"tenant_id", tenant.ID,
			"call_id", hints.CallID)
	}

	if t.MeetingID != "" {
		call, err := o.calls.FindByProviderMeetingID(ctx, tenant.ID, t.Provider, t.MeetingID)
		if err != nil && !errors.Is(err, warehouse.ErrNotFound) {
			return nil, fmt.Errorf("lookup call by meeting: %w", err)
		}
		if call != nil {
			return call, nil
		}

		// Synthetic calls written before the meeting binding existed carry
		// the meeting id in their external event id only.
		call, err = o.calls.FindByExternalEventID(ctx, tenant.ID, models.SyntheticEventID(t.MeetingID))
		if err != nil && !errors.Is(err, warehouse.ErrNotFound) {
			return nil, fmt.Errorf("lookup synthetic call: %w", err)
		}
		if call != nil {
			return call, nil
		}
	}

	return o.MatchCall(ctx, tenant.ID, closer.ID, t)
}

// MatchCall resolves the call a transcript belongs to using the
// configured match window. The sweeper uses this to pre-filter pulled
// meetings before dispatching them.
func (o *Orchestrator) MatchCall(ctx context.Context, tenantID, closerID string, t *models.CanonicalTranscript) (*models.Call, error) {
	return matchCall(ctx, o.calls, tenantID, closerID, t, o.matchWindow())
}

func (o *Orchestrator) createFromTranscript(ctx context.Context, tenant *models.Tenant, closer *models.Closer, t *models.CanonicalTranscript, hints Hints) (*models.Call, error) {
	prospectEmail := models.NormalizeEmail(t.ProspectEmail)
	if prospectEmail == "" {
		prospectEmail = models.UnknownProspectEmail
	}

	callType, err := lifecycle.DetermineCallType(ctx, o.calls, tenant.ID, prospectEmail)
	if err != nil {
		o.logger.Warn("Call type lookup failed, using first call",
			"tenant_id", tenant.ID,
			"meeting_id", t.MeetingID,
			"error", err)
	}

	start := t.ScheduledStart
	if start.IsZero() {
		start = t.RecordingStart
	}

	call := &models.Call{
		ID:                 uuid.NewString(),
		ExternalEventID:    models.SyntheticEventID(t.MeetingID),
		ProviderMeetingID:  t.MeetingID,
		TenantID:           tenant.ID,
		CloserID:           closer.ID,
		ProspectEmail:      prospectEmail,
		ProspectName:       t.ProspectName,
		ScheduledStartTime: formatIfSet(start.UTC()),
		ScheduledEndTime:   formatIfSet(t.RecordingEnd.UTC()),
		Timezone:           "UTC",
		AttendanceStatus:   models.AttendanceUnset,
		CallType:           callType,
		TranscriptProvider: t.Provider,
		ProcessingStatus:   models.ProcessingPending,
		Source:             models.SourceTranscript,
	}

	if err := o.calls.Insert(ctx, call); err != nil {
		return nil, fmt.Errorf("insert transcript call: %w", err)
	}

	o.recorder.Created(ctx, tenant.ID, audit.EntityCall, call.ID, hints.source(),
		"created from transcript", models.Metadata{
			"provider":   t.Provider,
			"meeting_id": t.MeetingID,
		})

	if call.HasKnownProspect() {
		o.recordProspectCall(ctx, tenant.ID, prospectEmail, t.ProspectName)
	}

	o.logger.Info("Created call from transcript",
		"tenant_id", tenant.ID,
		"call_id", call.ID,
		"provider", t.Provider,
		"meeting_id", t.MeetingID)
	return call, nil
}

// transcriptMaterial builds the partial update carrying what the
// transcript brought: provider attribution, the meeting binding, links,
// and duration. Redeliveries of the same meeting resolve through the
// binding instead of matching again.
func transcriptMaterial(t *models.CanonicalTranscript) *models.CallUpdate {
	upd := &models.CallUpdate{}
	if t.Provider != "" {
		upd.TranscriptProvider = models.Ptr(t.Provider)
	}
	if t.MeetingID != "" {
		upd.ProviderMeetingID = models.Ptr(t.MeetingID)
	}
	if strings.TrimSpace(t.Text) != "" {
		upd.TranscriptStatus = models.Ptr(models.TranscriptReceived)
	}
	if t.ShareURL != "" {
		upd.RecordingURL = models.Ptr(t.ShareURL)
	}
	if t.TranscriptURL != "" {
		upd.TranscriptURL = models.Ptr(t.TranscriptURL)
	}
	if t.DurationMinutes > 0 {
		upd.DurationMinutes = models.Ptr(t.DurationMinutes)
	}
	return upd
}

// applyTransition performs the Show or Ghosted transition with a merged
// update carrying the transcript material.
func (o *Orchestrator) applyTransition(ctx context.Context, tenant *models.Tenant, call *models.Call, t *models.CanonicalTranscript, target models.AttendanceState, hints Hints) error {
	upd := transcriptMaterial(t)

	transcriptEmail := models.NormalizeEmail(t.ProspectEmail)
	if !call.HasKnownProspect() && transcriptEmail != "" && transcriptEmail != models.UnknownProspectEmail {
		upd.ProspectEmail = models.Ptr(transcriptEmail)
		if t.ProspectName != "" {
			upd.ProspectName = models.Ptr(t.ProspectName)
		}
		call.ProspectEmail = transcriptEmail
		call.ProspectName = t.ProspectName
	}

	var trigger models.Trigger
	if target == models.AttendanceShow {
		trigger = config.ShowTrigger(call.AttendanceStatus)
		upd.ProcessingStatus = models.Ptr(models.ProcessingQueued)
	} else {
		trigger = models.TriggerTranscriptEmpty
		upd.ProcessingStatus = models.Ptr(models.ProcessingComplete)
	}

	detail := "transcript " + t.MeetingID
	if err := o.machine.Transition(ctx, call, target, trigger, hints.source(), detail, upd); err != nil {
		return fmt.Errorf("transition call %s to %s: %w", call.ID, target, err)
	}
	return nil
}

// reanalyze re-runs the AI pass on a shown call whose earlier analysis
// failed. The operator pins the call via the hint; attendance is never
// touched, only the transcript material and processing state are
// refreshed before the analyzer runs again.
func (o *Orchestrator) reanalyze(ctx context.Context, tenant *models.Tenant, call *models.Call, t *models.CanonicalTranscript, hints Hints) (*Result, error) {
	upd := transcriptMaterial(t)
	upd.ProcessingStatus = models.Ptr(models.ProcessingQueued)
	if err := o.calls.Update(ctx, tenant.ID, call.ID, upd); err != nil {
		return nil, fmt.Errorf("requeue call %s for analysis: %w", call.ID, err)
	}
	call.ProcessingStatus = models.ProcessingQueued

	o.recorder.FieldUpdate(ctx, tenant.ID, audit.EntityCall, call.ID,
		"processing_status", string(models.ProcessingError), string(models.ProcessingQueued),
		hints.source(), "reanalysis of failed processing")
	o.logger.Info("Re-running analysis on shown call",
		"tenant_id", tenant.ID,
		"call_id", call.ID,
		"meeting_id", t.MeetingID)

	if o.analyzer != nil && strings.TrimSpace(t.Text) != "" {
		if err := o.analyzer.Analyze(ctx, tenant, call, t); err != nil {
			o.logger.Error("AI analysis failed, call remains shown",
				"tenant_id", tenant.ID,
				"call_id", call.ID,
				"error", err)
		}
	}

	return &Result{
		Outcome:    OutcomeProcessed,
		MeetingID:  t.MeetingID,
		TenantID:   tenant.ID,
		CallID:     call.ID,
		Attendance: call.AttendanceStatus,
	}, nil
}

// afterShow runs the post-Show side effects: prospect aggregates, the
// overbook scan, and the synchronous AI pass. None of them may undo the
// Show.
func (o *Orchestrator) afterShow(ctx context.Context, tenant *models.Tenant, call *models.Call, t *models.CanonicalTranscript) {
	if call.HasKnownProspect() {
		o.ensureProspect(ctx, tenant.ID, call.ProspectEmail, call.ProspectName)
		if err := o.prospects.RecordShow(ctx, tenant.ID, call.ProspectEmail); err != nil {
			o.logger.Warn("Prospect show aggregate update failed",
				"tenant_id", tenant.ID,
				"prospect_email", call.ProspectEmail,
				"error", err)
		}
	}

	o.machine.MarkOverbooked(ctx, call)

	if o.analyzer == nil || strings.TrimSpace(t.Text) == "" {
		return
	}
	if err := o.analyzer.Analyze(ctx, tenant, call, t); err != nil {
		o.logger.Error("AI analysis failed, call remains shown",
			"tenant_id", tenant.ID,
			"call_id", call.ID,
			"error", err)
	}
}

func (o *Orchestrator) recordProspectCall(ctx context.Context, tenantID, email, name string) {
	o.ensureProspect(ctx, tenantID, email, name)
	if err := o.prospects.RecordCall(ctx, tenantID, email, name); err != nil {
		o.logger.Warn("Prospect call aggregate update failed",
			"tenant_id", tenantID,
			"prospect_email", email,
			"error", err)
	}
}

func (o *Orchestrator) ensureProspect(ctx context.Context, tenantID, email, name string) {
	_, err := o.prospects.GetByEmail(ctx, tenantID, email)
	if err == nil {
		return
	}
	if !errors.Is(err, warehouse.ErrNotFound) {
		o.logger.Warn("Prospect lookup failed",
			"tenant_id", tenantID,
			"prospect_email", email,
			"error", err)
		return
	}
	p := &models.Prospect{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Email:    email,
		Name:     name,
		Status:   models.StatusActive,
	}
	if err := o.prospects.Insert(ctx, p); err != nil {
		o.logger.Warn("Prospect insert failed",
			"tenant_id", tenantID,
			"prospect_email", email,
			"error", err)
	}
}

func formatIfSet(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.FormatISO(t)
}

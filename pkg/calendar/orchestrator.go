// Package calendar turns provider push notifications into call records.
// A notification names only a tenant; the orchestrator re-fetches the
// changed window across the tenant's closers, dedupes, and runs each
// event through the dispatch rules.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/alerts"
	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/lifecycle"
	"github.com/callscope/callscope/pkg/models"
	"github.com/callscope/callscope/pkg/warehouse"
)

const (
	defaultLookback      = 5 * time.Minute
	defaultRecencyWindow = 60 * time.Second
)

// TenantSource loads tenant records for incoming notifications.
type TenantSource interface {
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// CloserSource lists the tenant's active closers.
type CloserSource interface {
	ListActive(ctx context.Context, tenantID string) ([]models.Closer, error)
}

// CallSource is the call access the orchestrator needs beyond what the
// state machine already covers.
type CallSource interface {
	lifecycle.CallStore
	Insert(ctx context.Context, call *models.Call) error
	FindByExternalEventID(ctx context.Context, tenantID, externalEventID string) (*models.Call, error)
}

// ProspectSource maintains per-prospect aggregates as calls are created.
type ProspectSource interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*models.Prospect, error)
	Insert(ctx context.Context, p *models.Prospect) error
	RecordCall(ctx context.Context, tenantID, email, name string) error
}

// Deps wires the orchestrator. Lookback bounds the changed-event fetch
// behind now; RecencyWindow bounds the duplicate-delivery filter. Zero
// values take the defaults above.
type Deps struct {
	Tenants       TenantSource
	Closers       CloserSource
	Calls         CallSource
	Prospects     ProspectSource
	Machine       *lifecycle.Machine
	Recorder      *audit.Recorder
	Alerts        *alerts.Service
	Providers     *Registry
	Lookback      time.Duration
	RecencyWindow time.Duration
}

// Orchestrator processes calendar push notifications for all tenants.
// Safe for concurrent use; per-delivery state lives on the stack and the
// recency filter locks internally.
type Orchestrator struct {
	tenants   TenantSource
	closers   CloserSource
	calls     CallSource
	prospects ProspectSource
	machine   *lifecycle.Machine
	recorder  *audit.Recorder
	alerts    *alerts.Service
	providers *Registry
	lookback  time.Duration
	recency   *RecencyFilter
	logger    *slog.Logger
}

func NewOrchestrator(deps Deps) *Orchestrator {
	lookback := deps.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	recencyWindow := deps.RecencyWindow
	if recencyWindow <= 0 {
		recencyWindow = defaultRecencyWindow
	}
	return &Orchestrator{
		tenants:   deps.Tenants,
		closers:   deps.Closers,
		calls:     deps.Calls,
		prospects: deps.Prospects,
		machine:   deps.Machine,
		recorder:  deps.Recorder,
		alerts:    deps.Alerts,
		providers: deps.Providers,
		lookback:  lookback,
		recency:   NewRecencyFilter(recencyWindow),
		logger:    slog.With("component", "calendar"),
	}
}

// HandleNotification processes one push delivery. The payload is headers
// only, so the changed events are re-fetched from the provider across the
// tenant's active closers and deduplicated by event id.
func (o *Orchestrator) HandleNotification(ctx context.Context, tenantID string) error {
	tenant, err := o.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, warehouse.ErrNotFound) {
			o.logger.Warn("Notification for unknown tenant", "tenant_id", tenantID)
			return nil
		}
		return fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	if tenant.Status != models.StatusActive {
		o.logger.Info("Dropping notification for inactive tenant", "tenant_id", tenantID)
		return nil
	}

	provider, ok := o.providers.Get(tenant.ProviderName())
	if !ok {
		return fmt.Errorf("tenant %s: no calendar provider %q registered", tenantID, tenant.ProviderName())
	}

	roster, err := o.loadRoster(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(roster.byEmail) == 0 {
		o.logger.Info("Tenant has no active closers", "tenant_id", tenantID)
		return nil
	}

	since := time.Now().Add(-o.lookback)
	var batch []models.CanonicalEvent
	for email := range roster.byEmail {
		events, err := provider.ChangedEvents(ctx, email, since)
		if err != nil {
			o.logger.Warn("Changed-event fetch failed for closer",
				"tenant_id", tenantID,
				"closer_email", email,
				"error", err)
			continue
		}
		batch = append(batch, events...)
	}

	events := DedupeEvents(batch)
	for i := range events {
		o.processEvent(ctx, tenant, roster, &events[i])
	}

	o.logger.Info("Processed calendar notification",
		"tenant_id", tenantID,
		"fetched", len(batch),
		"unique", len(events))
	return nil
}

type roster struct {
	byEmail map[string]*models.Closer
	emails  map[string]bool
}

func (o *Orchestrator) loadRoster(ctx context.Context, tenantID string) (*roster, error) {
	closers, err := o.closers.ListActive(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list closers for tenant %s: %w", tenantID, err)
	}
	r := &roster{
		byEmail: make(map[string]*models.Closer, len(closers)),
		emails:  make(map[string]bool, len(closers)),
	}
	for i := range closers {
		email := models.NormalizeEmail(closers[i].Email)
		if email == "" {
			continue
		}
		r.byEmail[email] = &closers[i]
		r.emails[email] = true
	}
	return r, nil
}

func (r *roster) resolve(evt *models.CanonicalEvent) *models.Closer {
	if c, ok := r.byEmail[models.NormalizeEmail(evt.OrganizerEmail)]; ok {
		return c
	}
	for _, a := range evt.Attendees {
		if c, ok := r.byEmail[models.NormalizeEmail(a.Email)]; ok {
			return c
		}
	}
	return nil
}

// processEvent runs the single-event pipeline: recency filter, title
// filter (with a cancellation bypass, providers strip titles from
// cancelled events), closer resolution, then the dispatch decision.
func (o *Orchestrator) processEvent(ctx context.Context, tenant *models.Tenant, r *roster, evt *models.CanonicalEvent) {
	if o.recency.Seen(evt.Fingerprint()) {
		o.logger.Debug("Duplicate push delivery suppressed",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID)
		return
	}

	if !evt.IsCancelled() && !tenant.MatchesFilter(evt.Title) {
		o.logger.Debug("Event title did not match tenant filters",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID)
		return
	}

	closer := r.resolve(evt)
	if closer == nil {
		o.logger.Warn("No closer matched event",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID,
			"organizer", evt.OrganizerEmail)
		o.alerts.Notify(ctx, alerts.Alert{
			Severity:        models.SeverityMedium,
			Component:       "calendar",
			TenantID:        tenant.ID,
			Summary:         "Calendar event matched no closer",
			Detail:          fmt.Sprintf("event %s organized by %s", evt.EventID, evt.OrganizerEmail),
			SuggestedAction: "Add the organizer as a closer if this is a sales call, or tighten the event filter",
		})
		return
	}

	existing, err := o.calls.FindByExternalEventID(ctx, tenant.ID, evt.EventID)
	if err != nil && !errors.Is(err, warehouse.ErrNotFound) {
		o.logger.Error("Existing-call lookup failed",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID,
			"error", err)
		return
	}

	prospect := lifecycle.ExtractProspect(evt, closer, tenant, r.emails)
	decision := lifecycle.DecideDispatch(evt, existing, prospect)

	switch decision.Action {
	case lifecycle.DispatchCreate:
		o.createCall(ctx, tenant, closer, evt, prospect, decision.Reason)
	case lifecycle.DispatchCancel:
		o.cancelCall(ctx, existing, decision.Reason)
	case lifecycle.DispatchUpdate:
		o.updateCall(ctx, tenant, existing, evt, prospect, decision)
	default:
		o.logger.Debug("Event ignored",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID,
			"reason", decision.Reason)
	}
}

func (o *Orchestrator) createCall(ctx context.Context, tenant *models.Tenant, closer *models.Closer, evt *models.CanonicalEvent, prospect lifecycle.ProspectIdentity, reason string) {
	callType, err := lifecycle.DetermineCallType(ctx, o.calls, tenant.ID, prospect.Email)
	if err != nil {
		o.logger.Warn("Call type lookup failed, using first call",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID,
			"error", err)
	}

	call := &models.Call{
		ID:                 uuid.NewString(),
		ExternalEventID:    evt.EventID,
		TenantID:           tenant.ID,
		CloserID:           closer.ID,
		ProspectEmail:      prospect.Email,
		ProspectName:       prospect.Name,
		ScheduledStartTime: formatIfSet(evt.Start),
		ScheduledEndTime:   formatIfSet(evt.End),
		Timezone:           evt.Timezone,
		AttendanceStatus:   models.AttendanceUnset,
		CallType:           callType,
		ProcessingStatus:   models.ProcessingPending,
		Source:             models.SourceCalendar,
	}

	if err := o.calls.Insert(ctx, call); err != nil {
		o.logger.Error("Call insert failed",
			"tenant_id", tenant.ID,
			"event_id", evt.EventID,
			"error", err)
		o.recorder.Error(ctx, tenant.ID, audit.EntityCall, call.ID,
			models.TriggerSourceCalendarWebhook, "insert failed: "+err.Error(), nil)
		return
	}

	o.recorder.Created(ctx, tenant.ID, audit.EntityCall, call.ID,
		models.TriggerSourceCalendarWebhook, reason, models.Metadata{
			"event_id":       evt.EventID,
			"prospect_email": prospect.Email,
			"call_type":      string(callType),
		})

	if call.HasKnownProspect() {
		o.recordProspectCall(ctx, tenant.ID, prospect)
	}

	o.logger.Info("Created call from calendar event",
		"tenant_id", tenant.ID,
		"call_id", call.ID,
		"event_id", evt.EventID,
		"call_type", callType)
}

func (o *Orchestrator) cancelCall(ctx context.Context, existing *models.Call, reason string) {
	err := o.machine.Transition(ctx, existing, models.AttendanceCanceled,
		models.TriggerCalendarCancel, models.TriggerSourceCalendarWebhook, reason, nil)
	if err != nil {
		o.logger.Warn("Cancel transition rejected",
			"tenant_id", existing.TenantID,
			"call_id", existing.ID,
			"error", err)
	}
}

// updateCall applies an in-place move or prospect correction to a
// pre-outcome call. A moved start flips the call type to its rescheduled
// variant; a changed prospect re-runs type determination first.
func (o *Orchestrator) updateCall(ctx context.Context, tenant *models.Tenant, existing *models.Call, evt *models.CanonicalEvent, prospect lifecycle.ProspectIdentity, decision lifecycle.DispatchDecision) {
	upd := &models.CallUpdate{}
	callType := existing.CallType

	if decision.ProspectChanged {
		upd.ProspectEmail = models.Ptr(prospect.Email)
		if prospect.Name != "" {
			upd.ProspectName = models.Ptr(prospect.Name)
		}
		retyped, err := lifecycle.DetermineCallType(ctx, o.calls, tenant.ID, prospect.Email)
		if err != nil {
			o.logger.Warn("Call type lookup failed on prospect change",
				"tenant_id", tenant.ID,
				"call_id", existing.ID,
				"error", err)
		}
		callType = retyped

		if !existing.HasKnownProspect() {
			o.recordProspectCall(ctx, tenant.ID, prospect)
		} else {
			o.ensureProspect(ctx, tenant.ID, prospect)
		}
	}

	if decision.StartChanged {
		upd.ScheduledStart = models.Ptr(formatIfSet(evt.Start))
		upd.ScheduledEnd = models.Ptr(formatIfSet(evt.End))
		if evt.Timezone != "" {
			upd.Timezone = models.Ptr(evt.Timezone)
		}
		callType = callType.RescheduledVariant()
	}

	if callType != existing.CallType && callType != "" {
		upd.CallType = models.Ptr(callType)
	}

	if err := o.calls.Update(ctx, tenant.ID, existing.ID, upd); err != nil {
		o.logger.Error("Call update failed",
			"tenant_id", tenant.ID,
			"call_id", existing.ID,
			"error", err)
		o.recorder.Error(ctx, tenant.ID, audit.EntityCall, existing.ID,
			models.TriggerSourceCalendarWebhook, "update failed: "+err.Error(), nil)
		return
	}

	if decision.StartChanged {
		o.recorder.FieldUpdate(ctx, tenant.ID, audit.EntityCall, existing.ID,
			"scheduled_start_time", existing.ScheduledStartTime, formatIfSet(evt.Start),
			models.TriggerSourceCalendarWebhook, "event moved")
	}
	if decision.ProspectChanged {
		o.recorder.FieldUpdate(ctx, tenant.ID, audit.EntityCall, existing.ID,
			"prospect_email", existing.ProspectEmail, prospect.Email,
			models.TriggerSourceCalendarWebhook, "prospect identity changed")
	}

	o.logger.Info("Updated call from calendar event",
		"tenant_id", tenant.ID,
		"call_id", existing.ID,
		"start_changed", decision.StartChanged,
		"prospect_changed", decision.ProspectChanged)
}

// recordProspectCall bumps the prospect's call aggregate, creating the
// row first when absent.
func (o *Orchestrator) recordProspectCall(ctx context.Context, tenantID string, prospect lifecycle.ProspectIdentity) {
	o.ensureProspect(ctx, tenantID, prospect)
	if err := o.prospects.RecordCall(ctx, tenantID, prospect.Email, prospect.Name); err != nil {
		o.logger.Warn("Prospect call aggregate update failed",
			"tenant_id", tenantID,
			"prospect_email", prospect.Email,
			"error", err)
	}
}

func (o *Orchestrator) ensureProspect(ctx context.Context, tenantID string, prospect lifecycle.ProspectIdentity) {
	_, err := o.prospects.GetByEmail(ctx, tenantID, prospect.Email)
	if err == nil {
		return
	}
	if !errors.Is(err, warehouse.ErrNotFound) {
		o.logger.Warn("Prospect lookup failed",
			"tenant_id", tenantID,
			"prospect_email", prospect.Email,
			"error", err)
		return
	}
	p := &models.Prospect{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Email:    prospect.Email,
		Name:     prospect.Name,
		Status:   models.StatusActive,
	}
	if err := o.prospects.Insert(ctx, p); err != nil {
		o.logger.Warn("Prospect insert failed",
			"tenant_id", tenantID,
			"prospect_email", prospect.Email,
			"error", err)
	}
}

func formatIfSet(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return models.FormatISO(t)
}

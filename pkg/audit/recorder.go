// Package audit appends immutable trail entries for every mutation the
// pipelines make. Recording is fail-open: a failed write is logged and
// never propagates, so audit problems cannot break ingestion.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/pkg/models"
)

// Entity types stored in audit_log.entity_type.
const (
	EntityCall     = "call"
	EntityCloser   = "closer"
	EntityTenant   = "client"
	EntityProspect = "prospect"
)

// Sink persists audit entries. *warehouse.AuditStore satisfies this.
type Sink interface {
	Insert(ctx context.Context, entry *models.AuditEntry) error
}

// Recorder writes typed audit entries. A nil Recorder is safe and drops
// everything, mirroring how optional integrations degrade elsewhere.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// NewRecorder creates a Recorder backed by the given sink.
func NewRecorder(sink Sink) *Recorder {
	return &Recorder{
		sink:   sink,
		logger: slog.With("component", "audit"),
	}
}

// Created records entity creation.
func (r *Recorder) Created(ctx context.Context, tenantID, entityType, entityID string, source models.TriggerSource, detail string, metadata models.Metadata) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        models.ActionCreated,
		TriggerSource: source,
		TriggerDetail: detail,
		Metadata:      metadata,
	})
}

// StateChange records a successful attendance transition on a call.
func (r *Recorder) StateChange(ctx context.Context, tenantID, callID string, from, to models.AttendanceState, trigger models.Trigger, source models.TriggerSource, detail string) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    EntityCall,
		EntityID:      callID,
		Action:        models.ActionStateChange,
		FieldName:     "attendance_status",
		OldValue:      string(from),
		NewValue:      string(to),
		TriggerSource: source,
		TriggerDetail: detail,
		Metadata:      models.Metadata{"trigger": string(trigger)},
	})
}

// TransitionRejected records a transition the state machine refused. The
// call row is untouched; only this entry marks the attempt.
func (r *Recorder) TransitionRejected(ctx context.Context, tenantID, callID string, from, to models.AttendanceState, trigger models.Trigger, source models.TriggerSource, reason string) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    EntityCall,
		EntityID:      callID,
		Action:        models.ActionError,
		FieldName:     "attendance_status",
		OldValue:      string(from),
		NewValue:      string(to),
		TriggerSource: source,
		TriggerDetail: reason,
		Metadata:      models.Metadata{"trigger": string(trigger), "rejected": true},
	})
}

// FieldUpdate records a single-field mutation outside the state machine.
func (r *Recorder) FieldUpdate(ctx context.Context, tenantID, entityType, entityID, field, oldValue, newValue string, source models.TriggerSource, detail string) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        models.ActionUpdated,
		FieldName:     field,
		OldValue:      oldValue,
		NewValue:      newValue,
		TriggerSource: source,
		TriggerDetail: detail,
	})
}

// Error records a processing failure attached to an entity.
func (r *Recorder) Error(ctx context.Context, tenantID, entityType, entityID string, source models.TriggerSource, detail string, metadata models.Metadata) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        models.ActionError,
		TriggerSource: source,
		TriggerDetail: detail,
		Metadata:      metadata,
	})
}

// PaymentReceived records a payment event applied to a call.
func (r *Recorder) PaymentReceived(ctx context.Context, tenantID, callID, detail string, metadata models.Metadata) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    EntityCall,
		EntityID:      callID,
		Action:        models.ActionPaymentReceived,
		TriggerSource: models.TriggerSourcePaymentWebhook,
		TriggerDetail: detail,
		Metadata:      metadata,
	})
}

// PaymentClose records a call being closed by a payment event.
func (r *Recorder) PaymentClose(ctx context.Context, tenantID, callID, detail string, metadata models.Metadata) {
	r.record(ctx, &models.AuditEntry{
		TenantID:      tenantID,
		EntityType:    EntityCall,
		EntityID:      callID,
		Action:        models.ActionPaymentClose,
		TriggerSource: models.TriggerSourcePaymentWebhook,
		TriggerDetail: detail,
		Metadata:      metadata,
	})
}

func (r *Recorder) record(ctx context.Context, entry *models.AuditEntry) {
	if r == nil || r.sink == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.Timestamp = time.Now().UTC()
	if entry.Metadata == nil {
		entry.Metadata = models.Metadata{}
	}
	if err := r.sink.Insert(ctx, entry); err != nil {
		r.logger.Error("Failed to write audit entry",
			"entity_type", entry.EntityType,
			"entity_id", entry.EntityID,
			"action", string(entry.Action),
			"error", err)
	}
}

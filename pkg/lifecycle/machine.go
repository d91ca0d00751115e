// Package lifecycle holds the call state machine and the pure decision
// rules around it: calendar event dispatch, prospect extraction, call type
// classification, and overbook detection.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/callscope/callscope/pkg/audit"
	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// CallStore is the warehouse surface the lifecycle needs.
// *warehouse.CallStore satisfies this.
type CallStore interface {
	Update(ctx context.Context, tenantID, id string, upd *models.CallUpdate) error
	CountByProspectStates(ctx context.Context, tenantID, prospectEmail string, states []models.AttendanceState) (int, error)
	ListByCloserStates(ctx context.Context, tenantID, closerID string, states []models.AttendanceState) ([]models.Call, error)
}

// Machine validates and applies attendance transitions. It is the only
// path through which attendance_status changes; direct writes bypassing it
// are reserved for the payment fallback, which logs that explicitly.
type Machine struct {
	calls    CallStore
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewMachine creates a Machine over the given store and audit recorder.
func NewMachine(calls CallStore, recorder *audit.Recorder) *Machine {
	return &Machine{
		calls:    calls,
		recorder: recorder,
		logger:   slog.With("component", "lifecycle"),
	}
}

// Validate checks a (from, to, trigger) triple against the transition
// table without touching storage.
func (m *Machine) Validate(from, to models.AttendanceState, trigger models.Trigger) error {
	if !to.IsValid() || to == models.AttendanceUnset {
		return NewValidationError("attendance_status", fmt.Sprintf("unknown target state %q", string(to)))
	}
	if !config.AllowedTransition(from, to, trigger) {
		return &TransitionError{From: from, To: to, Trigger: trigger}
	}
	return nil
}

// Transition applies a validated transition, merging extra field changes
// into the same warehouse write. On success the in-memory call's
// attendance is updated and a state_change audit entry is appended. An
// invalid triple leaves the record unchanged and appends an error entry.
//
// Callers must pass a freshly loaded call: validity is judged against the
// persisted state, which is what makes concurrent duplicate deliveries
// converge instead of corrupting the record.
func (m *Machine) Transition(ctx context.Context, call *models.Call, to models.AttendanceState, trigger models.Trigger, source models.TriggerSource, detail string, upd *models.CallUpdate) error {
	from := call.AttendanceStatus

	if err := m.Validate(from, to, trigger); err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			m.recorder.TransitionRejected(ctx, call.TenantID, call.ID, from, to, trigger, source, te.Error())
			m.logger.Warn("Rejected transition",
				"tenant_id", call.TenantID,
				"call_id", call.ID,
				"from", stateLabel(from),
				"to", string(to),
				"trigger", string(trigger))
		}
		return err
	}

	if upd == nil {
		upd = &models.CallUpdate{}
	}
	upd.AttendanceStatus = models.Ptr(to)

	if err := m.calls.Update(ctx, call.TenantID, call.ID, upd); err != nil {
		return fmt.Errorf("apply transition %s -> %s: %w", stateLabel(from), to, err)
	}
	call.AttendanceStatus = to

	m.recorder.StateChange(ctx, call.TenantID, call.ID, from, to, trigger, source, detail)
	m.logger.Info("Call transitioned",
		"tenant_id", call.TenantID,
		"call_id", call.ID,
		"from", stateLabel(from),
		"to", string(to),
		"trigger", string(trigger))
	return nil
}

func stateLabel(s models.AttendanceState) string {
	if s == models.AttendanceUnset {
		return "unset"
	}
	return string(s)
}

package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/models"
)

type captureSink struct {
	entries []*models.AuditEntry
	err     error
}

func (s *captureSink) Insert(_ context.Context, entry *models.AuditEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func TestRecorderStateChange(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)

	rec.StateChange(context.Background(), "tenant-1", "call-1",
		models.AttendanceScheduled, models.AttendanceWaiting,
		models.TriggerTimePassed, models.TriggerSourceTimeout, "sweeper phase 1")

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, models.ActionStateChange, entry.Action)
	assert.Equal(t, EntityCall, entry.EntityType)
	assert.Equal(t, "attendance_status", entry.FieldName)
	assert.Equal(t, "Scheduled", entry.OldValue)
	assert.Equal(t, "Waiting for Outcome", entry.NewValue)
	assert.Equal(t, "appointment_time_passed", entry.Metadata["trigger"])
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestRecorderTransitionRejected(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)

	rec.TransitionRejected(context.Background(), "tenant-1", "call-1",
		models.AttendanceShow, models.AttendanceClosedWon,
		models.TriggerPaymentReceived, models.TriggerSourcePaymentWebhook, "not allowed from Show")

	require.Len(t, sink.entries, 1)
	entry := sink.entries[0]
	assert.Equal(t, models.ActionError, entry.Action)
	assert.Equal(t, true, entry.Metadata["rejected"])
	assert.Equal(t, "payment_received", entry.Metadata["trigger"])
}

func TestRecorderFailOpen(t *testing.T) {
	t.Run("sink failure does not panic or propagate", func(t *testing.T) {
		rec := NewRecorder(&captureSink{err: errors.New("warehouse down")})
		assert.NotPanics(t, func() {
			rec.Created(context.Background(), "tenant-1", EntityCall, "call-1",
				models.TriggerSourceCalendarWebhook, "created", nil)
		})
	})

	t.Run("nil recorder drops entries", func(t *testing.T) {
		var rec *Recorder
		assert.NotPanics(t, func() {
			rec.Error(context.Background(), "tenant-1", EntityCall, "call-1",
				models.TriggerSourceSystem, "boom", nil)
		})
	})
}

func TestRecorderFillsEmptyMetadata(t *testing.T) {
	sink := &captureSink{}
	rec := NewRecorder(sink)

	rec.FieldUpdate(context.Background(), "tenant-1", EntityCloser, "closer-1",
		"status", "active", "inactive", models.TriggerSourceAdmin, "deactivated")

	require.Len(t, sink.entries, 1)
	assert.NotNil(t, sink.entries[0].Metadata)
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttendanceStatePredicates(t *testing.T) {
	t.Run("pre-outcome states", func(t *testing.T) {
		assert.True(t, AttendanceUnset.IsPreOutcome())
		assert.True(t, AttendanceScheduled.IsPreOutcome())
		assert.True(t, AttendanceWaiting.IsPreOutcome())

		assert.False(t, AttendanceShow.IsPreOutcome())
		assert.False(t, AttendanceGhosted.IsPreOutcome())
		assert.False(t, AttendanceCanceled.IsPreOutcome())
	})

	t.Run("terminal conversational states", func(t *testing.T) {
		for _, s := range []AttendanceState{
			AttendanceShow, AttendanceClosedWon, AttendanceDeposit,
			AttendanceFollowUp, AttendanceLost, AttendanceDisqualified,
			AttendanceNotPitched,
		} {
			assert.True(t, s.IsTerminalConversational(), "state %q", s)
		}
		for _, s := range []AttendanceState{
			AttendanceUnset, AttendanceScheduled, AttendanceWaiting,
			AttendanceGhosted, AttendanceNoRecording, AttendanceCanceled,
			AttendanceRescheduled, AttendanceOverbooked,
		} {
			assert.False(t, s.IsTerminalConversational(), "state %q", s)
		}
	})

	t.Run("validity", func(t *testing.T) {
		assert.True(t, AttendanceUnset.IsValid())
		assert.True(t, AttendanceGhosted.IsValid())
		assert.False(t, AttendanceState("No Show").IsValid())
	})
}

func TestCallOutcome(t *testing.T) {
	assert.True(t, OutcomeFollowUp.IsValid())
	assert.False(t, CallOutcome("Won").IsValid())
	assert.Equal(t, AttendanceClosedWon, OutcomeClosedWon.AttendanceState())
}

func TestPaymentType(t *testing.T) {
	assert.True(t, PaymentRefund.IsNegative())
	assert.True(t, PaymentChargeback.IsNegative())
	assert.False(t, PaymentFull.IsNegative())

	assert.Equal(t, "Full", PaymentFull.PlanLabel())
	assert.Equal(t, "Deposit", PaymentDeposit.PlanLabel())
	assert.Equal(t, "Payment Plan", PaymentPlan.PlanLabel())
	assert.Equal(t, "", PaymentRefund.PlanLabel())
}

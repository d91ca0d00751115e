package config

import "github.com/callscope/callscope/pkg/models"

// TransitionRule names one allowed edge out of a state and the triggers
// that may take it.
type TransitionRule struct {
	To       models.AttendanceState
	Triggers []models.Trigger
}

// transitionTable is the complete call lifecycle. The validator is a
// lookup; adding a state or trigger is a data change, not a code change.
var transitionTable = map[models.AttendanceState][]TransitionRule{
	models.AttendanceUnset: {
		{To: models.AttendanceCanceled, Triggers: []models.Trigger{models.TriggerCalendarCancel}},
		{To: models.AttendanceRescheduled, Triggers: []models.Trigger{models.TriggerCalendarMoved}},
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerTranscriptValid}},
		{To: models.AttendanceGhosted, Triggers: []models.Trigger{models.TriggerTranscriptEmpty}},
		{To: models.AttendanceWaiting, Triggers: []models.Trigger{models.TriggerTimePassed}},
		{To: models.AttendanceNoRecording, Triggers: []models.Trigger{models.TriggerSystemFailure}},
		{To: models.AttendanceOverbooked, Triggers: []models.Trigger{models.TriggerDoubleBooked}},
	},
	models.AttendanceScheduled: {
		{To: models.AttendanceCanceled, Triggers: []models.Trigger{models.TriggerCalendarCancel}},
		{To: models.AttendanceRescheduled, Triggers: []models.Trigger{models.TriggerCalendarMoved}},
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerTranscriptValid}},
		{To: models.AttendanceGhosted, Triggers: []models.Trigger{models.TriggerTranscriptEmpty, models.TriggerTranscriptTimeout}},
		{To: models.AttendanceWaiting, Triggers: []models.Trigger{models.TriggerTimePassed}},
		{To: models.AttendanceNoRecording, Triggers: []models.Trigger{models.TriggerSystemFailure}},
		{To: models.AttendanceOverbooked, Triggers: []models.Trigger{models.TriggerDoubleBooked}},
	},
	models.AttendanceWaiting: {
		{To: models.AttendanceCanceled, Triggers: []models.Trigger{models.TriggerCalendarCancel}},
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerTranscriptValid}},
		{To: models.AttendanceGhosted, Triggers: []models.Trigger{models.TriggerTranscriptTimeout, models.TriggerTranscriptEmpty}},
		{To: models.AttendanceNoRecording, Triggers: []models.Trigger{models.TriggerSystemFailure}},
		{To: models.AttendanceOverbooked, Triggers: []models.Trigger{models.TriggerDoubleBooked}},
	},
	models.AttendanceNoRecording: {
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerTranscriptValid}},
		{To: models.AttendanceGhosted, Triggers: []models.Trigger{models.TriggerTranscriptEmpty, models.TriggerTranscriptTimeout}},
	},
	models.AttendanceGhosted: {
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerReprocess}},
		{To: models.AttendanceOverbooked, Triggers: []models.Trigger{models.TriggerDoubleBooked}},
	},
	models.AttendanceShow: {
		{To: models.AttendanceClosedWon, Triggers: []models.Trigger{models.TriggerAIOutcome}},
		{To: models.AttendanceDeposit, Triggers: []models.Trigger{models.TriggerAIOutcome}},
		{To: models.AttendanceFollowUp, Triggers: []models.Trigger{models.TriggerAIOutcome}},
		{To: models.AttendanceLost, Triggers: []models.Trigger{models.TriggerAIOutcome}},
		{To: models.AttendanceDisqualified, Triggers: []models.Trigger{models.TriggerAIOutcome}},
		{To: models.AttendanceNotPitched, Triggers: []models.Trigger{models.TriggerAIOutcome}},
	},
	models.AttendanceFollowUp: {
		{To: models.AttendanceClosedWon, Triggers: []models.Trigger{models.TriggerPaymentReceived}},
		{To: models.AttendanceNotPitched, Triggers: []models.Trigger{models.TriggerNewCallScheduled}},
	},
	models.AttendanceNotPitched: {
		{To: models.AttendanceClosedWon, Triggers: []models.Trigger{models.TriggerPaymentReceived}},
		{To: models.AttendanceFollowUp, Triggers: []models.Trigger{models.TriggerNewCallScheduled}},
	},
	models.AttendanceLost: {
		{To: models.AttendanceClosedWon, Triggers: []models.Trigger{models.TriggerPaymentReceived}},
		{To: models.AttendanceFollowUp, Triggers: []models.Trigger{models.TriggerNewCallScheduled}},
	},
	models.AttendanceDeposit: {
		{To: models.AttendanceClosedWon, Triggers: []models.Trigger{models.TriggerPaymentReceivedFull}},
	},
	models.AttendanceRescheduled: {
		{To: models.AttendanceCanceled, Triggers: []models.Trigger{models.TriggerCalendarCancel}},
	},
	models.AttendanceOverbooked: {
		{To: models.AttendanceShow, Triggers: []models.Trigger{models.TriggerTranscriptValid}},
		{To: models.AttendanceCanceled, Triggers: []models.Trigger{models.TriggerCalendarCancel}},
	},
	// Canceled, Closed - Won and Disqualified have no outgoing edges.
	models.AttendanceCanceled:     {},
	models.AttendanceClosedWon:    {},
	models.AttendanceDisqualified: {},
}

// AllowedTransition reports whether the (from, to, trigger) triple is in
// the transition table.
func AllowedTransition(from, to models.AttendanceState, trigger models.Trigger) bool {
	for _, rule := range transitionTable[from] {
		if rule.To != to {
			continue
		}
		for _, t := range rule.Triggers {
			if t == trigger {
				return true
			}
		}
	}
	return false
}

// TransitionsFrom returns the rules leaving a state. Callers must not
// mutate the returned slice.
func TransitionsFrom(from models.AttendanceState) []TransitionRule {
	return transitionTable[from]
}

// IsTerminalState reports whether the state has no outgoing edges.
func IsTerminalState(s models.AttendanceState) bool {
	rules, known := transitionTable[s]
	return known && len(rules) == 0
}

// ShowTrigger picks the trigger that moves the given state to Show: a
// ghosted call is revived via reprocess, everything else via a valid
// transcript.
func ShowTrigger(from models.AttendanceState) models.Trigger {
	if from == models.AttendanceGhosted {
		return models.TriggerReprocess
	}
	return models.TriggerTranscriptValid
}

// ConversationalPriorStates is the attendance set counted when deciding
// whether a prospect already had a real call (call-type determination and
// payment matching use the same set).
var ConversationalPriorStates = []models.AttendanceState{
	models.AttendanceShow,
	models.AttendanceFollowUp,
	models.AttendanceLost,
	models.AttendanceClosedWon,
	models.AttendanceDeposit,
	models.AttendanceDisqualified,
	models.AttendanceNotPitched,
}

// PreOutcomeStates is the attendance set a calendar update may mutate in
// place, and the candidate set for transcript matching.
var PreOutcomeStates = []models.AttendanceState{
	models.AttendanceUnset,
	models.AttendanceScheduled,
	models.AttendanceWaiting,
}

// PendingStates is the attendance set swept into Waiting once the
// appointment time has passed.
var PendingStates = []models.AttendanceState{
	models.AttendanceUnset,
	models.AttendanceScheduled,
}

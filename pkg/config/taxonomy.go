package config

import (
	"strings"

	"github.com/callscope/callscope/pkg/models"
)

// The closed taxonomies below feed two consumers with the same data: the
// AI prompt (each entry's description instructs the model) and response
// validation (only members of the set are accepted).

// OutcomeDefinition describes one call outcome for the prompt.
type OutcomeDefinition struct {
	Outcome     models.CallOutcome
	Description string
}

// Outcomes is the closed outcome taxonomy in prompt order.
var Outcomes = []OutcomeDefinition{
	{models.OutcomeClosedWon, "The prospect purchased on the call and paid in full."},
	{models.OutcomeDeposit, "The prospect committed and left a partial payment; the balance is outstanding."},
	{models.OutcomeFollowUp, "The conversation went well but no decision was made; another call is scheduled or expected."},
	{models.OutcomeLost, "The offer was pitched and the prospect declined."},
	{models.OutcomeDisqualified, "The prospect is not a fit for the offer (budget, authority, or eligibility)."},
	{models.OutcomeNotPitched, "The conversation ended before the offer was ever presented."},
}

// ObjectionDefinition is one member of the objection taxonomy. Key is the
// machine identifier, Label the display form; response validation accepts
// either, case-insensitively.
type ObjectionDefinition struct {
	Key         string
	Label       string
	Description string
}

// ObjectionTypes is the closed objection taxonomy.
var ObjectionTypes = []ObjectionDefinition{
	{"financial", "Financial", "The prospect says they cannot afford it or questions the price."},
	{"spouse_partner", "Spouse/Partner", "The prospect needs to consult a spouse or partner before deciding."},
	{"think_about_it", "Think About It", "The prospect wants time to think it over without a concrete concern."},
	{"timing", "Timing", "Now is not the right time; life or business circumstances are in the way."},
	{"trust_credibility", "Trust/Credibility", "The prospect doubts the company, the closer, or the results promised."},
	{"already_tried", "Already Tried", "The prospect tried something similar before and it did not work."},
	{"diy", "DIY", "The prospect believes they can achieve the result on their own."},
	{"not_ready", "Not Ready", "The prospect does not feel ready to commit to the work involved."},
	{"competitor", "Competitor", "The prospect is considering or already talking to a competing offer."},
	{"authority", "Authority", "Someone other than the prospect has to approve the purchase."},
	{"value", "Value", "The prospect does not see how the offer justifies its cost."},
	{"commitment", "Commitment", "The prospect hesitates at the required time or effort commitment."},
	{"other", "Other", "An objection that does not fit any other category."},
}

// MatchObjectionType resolves a raw value from the model against the
// taxonomy: exact key, exact label, then case-insensitive either. The
// second return is false when nothing matched.
func MatchObjectionType(raw string) (ObjectionDefinition, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, def := range ObjectionTypes {
		if def.Key == trimmed || def.Label == trimmed {
			return def, true
		}
	}
	lowered := strings.ToLower(trimmed)
	for _, def := range ObjectionTypes {
		if strings.ToLower(def.Key) == lowered || strings.ToLower(def.Label) == lowered {
			return def, true
		}
	}
	// Tolerate separator drift: "Spouse Partner", "spouse-partner".
	collapsed := collapseSeparators(lowered)
	for _, def := range ObjectionTypes {
		if collapseSeparators(strings.ToLower(def.Key)) == collapsed ||
			collapseSeparators(strings.ToLower(def.Label)) == collapsed {
			return def, true
		}
	}
	return ObjectionDefinition{}, false
}

// OtherObjection is the fallback member for unmatchable objection types.
func OtherObjection() ObjectionDefinition {
	return ObjectionTypes[len(ObjectionTypes)-1]
}

func collapseSeparators(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case ' ', '/', '-', '_':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ScoringDimension is one of the seven scored axes. Field is the JSON
// field name the model must emit and the call column it lands in.
type ScoringDimension struct {
	Name        string
	Field       string
	Description string
}

// ScoringDimensions is the rubric in prompt order.
var ScoringDimensions = []ScoringDimension{
	{"Discovery", "discovery_score", "How thoroughly the closer uncovered the prospect's situation, goals, and pains."},
	{"Pitch", "pitch_score", "How clearly and persuasively the offer was presented and tied to the prospect's needs."},
	{"Close Attempt", "close_score", "Whether and how directly the closer asked for the sale."},
	{"Objection Handling", "objection_handling_score", "How well objections were acknowledged, isolated, and resolved."},
	{"Overall", "overall_score", "Overall quality of the call as a sales conversation."},
	{"Script Adherence", "script_adherence_score", "How closely the closer followed the tenant's script or framework."},
	{"Prospect Fit", "prospect_fit_score", "How well the prospect matches the tenant's ideal customer profile."},
}

// ScoreBand describes one range of the 1-10 scale.
type ScoreBand struct {
	Low, High int
	Label     string
}

// ScoreBands is the shared interpretation of the scale across all
// dimensions.
var ScoreBands = []ScoreBand{
	{1, 3, "Poor"},
	{4, 5, "Below Average"},
	{6, 7, "Average"},
	{8, 9, "Good"},
	{10, 10, "Exceptional"},
}

// AttendanceStates enumerates every value the attendance field may hold,
// in display order.
var AttendanceStates = []models.AttendanceState{
	models.AttendanceScheduled,
	models.AttendanceWaiting,
	models.AttendanceShow,
	models.AttendanceGhosted,
	models.AttendanceCanceled,
	models.AttendanceRescheduled,
	models.AttendanceNoRecording,
	models.AttendanceOverbooked,
	models.AttendanceClosedWon,
	models.AttendanceDeposit,
	models.AttendanceFollowUp,
	models.AttendanceLost,
	models.AttendanceDisqualified,
	models.AttendanceNotPitched,
}

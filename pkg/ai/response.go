package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// analysisResponse is the JSON shape the model is instructed to return.
// Score fields are pointers so a missing field is distinguishable from an
// explicit value and can default to the neutral placeholder.
type analysisResponse struct {
	CallOutcome string `json:"call_outcome"`

	DiscoveryScore         *float64 `json:"discovery_score"`
	PitchScore             *float64 `json:"pitch_score"`
	CloseScore             *float64 `json:"close_score"`
	ObjectionHandlingScore *float64 `json:"objection_handling_score"`
	OverallScore           *float64 `json:"overall_score"`
	ScriptAdherenceScore   *float64 `json:"script_adherence_score"`
	ProspectFitScore       *float64 `json:"prospect_fit_score"`

	ProspectTemperature string `json:"prospect_temperature"`
	ProspectGoals       string `json:"prospect_goals"`
	ProspectPains       string `json:"prospect_pains"`
	CurrentSituation    string `json:"current_situation"`
	CallSummary         string `json:"call_summary"`

	Objections []analysisObjection `json:"objections"`
}

type analysisObjection struct {
	Type             string  `json:"objection_type"`
	Text             string  `json:"objection_text"`
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Resolved         bool    `json:"resolved"`
	ResolutionText   string  `json:"resolution_text"`
}

// parseResponse extracts the structured assessment from raw model output.
// It tolerates code-fence wrappers but nothing else around the JSON. An
// outcome outside the taxonomy fails the parse: there is no state to
// transition to.
func parseResponse(raw string) (*analysisResponse, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("model returned no content")
	}

	var resp analysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, fmt.Errorf("parsing analysis response: %w", err)
	}

	outcome, ok := matchOutcome(resp.CallOutcome)
	if !ok {
		return nil, fmt.Errorf("call_outcome %q is not in the outcome taxonomy", resp.CallOutcome)
	}
	resp.CallOutcome = string(outcome)
	return &resp, nil
}

// matchOutcome resolves the model's outcome against the taxonomy,
// case-insensitively, returning the canonical form.
func matchOutcome(raw string) (models.CallOutcome, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, def := range config.Outcomes {
		if string(def.Outcome) == trimmed {
			return def.Outcome, true
		}
	}
	lowered := strings.ToLower(trimmed)
	for _, def := range config.Outcomes {
		if strings.ToLower(string(def.Outcome)) == lowered {
			return def.Outcome, true
		}
	}
	return "", false
}

// stripCodeFences unwraps ```json ... ``` style fencing some models emit
// despite instructions.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		// Drop the language tag line, e.g. "json".
		trimmed = trimmed[i+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// clampScore normalizes one score: missing becomes the neutral
// placeholder, out-of-range values clamp to the configured bounds.
func clampScore(v *float64, cfg config.AIConfig) float64 {
	if v == nil {
		return cfg.NeutralScore
	}
	if *v < cfg.ScoreMin {
		return cfg.ScoreMin
	}
	if *v > cfg.ScoreMax {
		return cfg.ScoreMax
	}
	return *v
}

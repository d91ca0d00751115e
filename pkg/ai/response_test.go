package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/config"
)

const validResponseJSON = `{
	"call_outcome": "Follow Up",
	"discovery_score": 8,
	"pitch_score": 7,
	"close_score": 6,
	"objection_handling_score": 5,
	"overall_score": 7,
	"script_adherence_score": 8,
	"prospect_fit_score": 9,
	"prospect_temperature": "Warm",
	"prospect_goals": "Grow to 50k/month",
	"prospect_pains": "Inconsistent lead flow",
	"current_situation": "Running a small agency solo",
	"call_summary": "Good discovery, prospect wants to think it over.",
	"objections": [
		{"objection_type": "Think About It", "objection_text": "I need to sleep on it", "timestamp_seconds": 1458, "resolved": false}
	]
}`

func TestParseResponse(t *testing.T) {
	resp, err := parseResponse(validResponseJSON)
	require.NoError(t, err)

	assert.Equal(t, "Follow Up", resp.CallOutcome)
	require.NotNil(t, resp.DiscoveryScore)
	assert.Equal(t, 8.0, *resp.DiscoveryScore)
	assert.Equal(t, "Warm", resp.ProspectTemperature)
	require.Len(t, resp.Objections, 1)
	assert.Equal(t, "Think About It", resp.Objections[0].Type)
	assert.Equal(t, 1458.0, resp.Objections[0].TimestampSeconds)
}

func TestParseResponseFenced(t *testing.T) {
	fenced := "```json\n" + validResponseJSON + "\n```"

	resp, err := parseResponse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Follow Up", resp.CallOutcome)
}

func TestParseResponseFencedNoLanguage(t *testing.T) {
	fenced := "```\n{\"call_outcome\": \"Lost\"}\n```"

	resp, err := parseResponse(fenced)
	require.NoError(t, err)
	assert.Equal(t, "Lost", resp.CallOutcome)
}

func TestParseResponseCanonicalizesOutcomeCase(t *testing.T) {
	resp, err := parseResponse(`{"call_outcome": "closed - won"}`)
	require.NoError(t, err)
	assert.Equal(t, "Closed - Won", resp.CallOutcome)
}

func TestParseResponseInvalidOutcome(t *testing.T) {
	_, err := parseResponse(`{"call_outcome": "Maybe Later"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in the outcome taxonomy")
}

func TestParseResponseNotJSON(t *testing.T) {
	_, err := parseResponse("I was unable to analyze this call, sorry.")
	require.Error(t, err)
}

func TestParseResponseEmpty(t *testing.T) {
	_, err := parseResponse("   ")
	require.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare text", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "\n\n```json\n{\"a\": 1}\n```\n", `{"a": 1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, stripCodeFences(tc.in))
		})
	}
}

func TestClampScore(t *testing.T) {
	cfg := config.AIConfig{ScoreMin: 1, ScoreMax: 10, NeutralScore: 5}

	seven := 7.0
	zero := 0.0
	twelve := 12.0

	assert.Equal(t, 7.0, clampScore(&seven, cfg))
	assert.Equal(t, 1.0, clampScore(&zero, cfg))
	assert.Equal(t, 10.0, clampScore(&twelve, cfg))
	assert.Equal(t, 5.0, clampScore(nil, cfg))
}

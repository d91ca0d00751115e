package alerts

import (
	"strings"
	"testing"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callscope/callscope/pkg/models"
)

func TestBuildAlertMessage(t *testing.T) {
	blocks := BuildAlertMessage(Alert{
		Severity:        models.SeverityCritical,
		Component:       "ai",
		TenantID:        "tenant-1",
		CallID:          "call-1",
		Summary:         "analysis failed",
		Detail:          "model returned malformed JSON",
		Error:           "invalid character '}' looking for beginning of value",
		SuggestedAction: "Reprocess the call once the model is healthy",
	})

	require.Len(t, blocks, 2)

	header, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, header.Text.Text, ":rotating_light:")
	assert.Contains(t, header.Text.Text, "Critical")
	assert.Contains(t, header.Text.Text, "analysis failed")

	body := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, body.Text.Text, "tenant-1")
	assert.Contains(t, body.Text.Text, "call-1")
	assert.Contains(t, body.Text.Text, "malformed JSON")
	assert.Contains(t, body.Text.Text, "*Error:*")
	assert.Contains(t, body.Text.Text, "invalid character")
	assert.Contains(t, body.Text.Text, "*Suggested action:* Reprocess the call")
}

func TestBuildAlertMessageOmitsEmptyFields(t *testing.T) {
	blocks := BuildAlertMessage(Alert{
		Severity:  models.SeverityHigh,
		Component: "gcal",
		Summary:   "watch renewal failed",
	})

	require.Len(t, blocks, 2)
	body := blocks[1].(*goslack.SectionBlock)
	assert.NotContains(t, body.Text.Text, "Tenant")
	assert.NotContains(t, body.Text.Text, "Call")
	assert.NotContains(t, body.Text.Text, "Error")
	assert.NotContains(t, body.Text.Text, "Suggested action")
}

func TestBuildDigestMessage(t *testing.T) {
	alerts := []Alert{
		{Severity: models.SeverityMedium, Component: "payments", TenantID: "tenant-1", Summary: "chargeback received"},
		{Severity: models.SeverityMedium, Component: "sweeper", Summary: "pull phase degraded"},
	}
	blocks := BuildDigestMessage(alerts)

	require.Len(t, blocks, 2)
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, "2 medium-severity")

	body := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, body.Text.Text, "chargeback received")
	assert.Contains(t, body.Text.Text, "(tenant tenant-1)")
	assert.Contains(t, body.Text.Text, "pull phase degraded")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "short", truncateForSlack("short"))
	})

	t.Run("long text truncated with marker", func(t *testing.T) {
		long := strings.Repeat("x", maxBlockTextLength+100)
		out := truncateForSlack(long)
		assert.Less(t, len(out), len(long))
		assert.Contains(t, out, "truncated")
	})
}

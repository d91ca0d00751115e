package alerts

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/callscope/callscope/pkg/models"
)

const maxBlockTextLength = 2900

var severityEmoji = map[models.AlertSeverity]string{
	models.SeverityCritical: ":rotating_light:",
	models.SeverityHigh:     ":x:",
	models.SeverityMedium:   ":warning:",
	models.SeverityLow:      ":information_source:",
}

var severityLabel = map[models.AlertSeverity]string{
	models.SeverityCritical: "Critical",
	models.SeverityHigh:     "High",
	models.SeverityMedium:   "Medium",
	models.SeverityLow:      "Low",
}

// BuildAlertMessage creates Block Kit blocks for one immediate alert.
func BuildAlertMessage(alert Alert) []goslack.Block {
	emoji := severityEmoji[alert.Severity]
	if emoji == "" {
		emoji = ":question:"
	}
	label := severityLabel[alert.Severity]
	if label == "" {
		label = string(alert.Severity)
	}

	headerText := fmt.Sprintf("%s *[%s] %s*", emoji, label, alert.Summary)

	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	body := fmt.Sprintf("*Component:* %s", alert.Component)
	if alert.TenantID != "" {
		body += fmt.Sprintf("\n*Tenant:* %s", alert.TenantID)
	}
	if alert.CallID != "" {
		body += fmt.Sprintf("\n*Call:* %s", alert.CallID)
	}
	if alert.Detail != "" {
		body += fmt.Sprintf("\n\n%s", truncateForSlack(alert.Detail))
	}
	if alert.Error != "" {
		body += fmt.Sprintf("\n\n*Error:*\n%s", truncateForSlack(alert.Error))
	}
	if alert.SuggestedAction != "" {
		body += fmt.Sprintf("\n\n*Suggested action:* %s", alert.SuggestedAction)
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
		nil, nil,
	))

	return blocks
}

// BuildDigestMessage creates Block Kit blocks summarizing buffered
// medium-severity alerts.
func BuildDigestMessage(alerts []Alert) []goslack.Block {
	headerText := fmt.Sprintf(":warning: *Alert digest* — %d medium-severity alert(s)", len(alerts))

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
			nil, nil,
		),
	}

	body := ""
	for _, alert := range alerts {
		line := fmt.Sprintf("• *%s* — %s", alert.Component, alert.Summary)
		if alert.TenantID != "" {
			line += fmt.Sprintf(" (tenant %s)", alert.TenantID)
		}
		if len(body)+len(line)+1 > maxBlockTextLength {
			body += "\n_... (more alerts omitted)_"
			break
		}
		if body != "" {
			body += "\n"
		}
		body += line
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
		nil, nil,
	))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}

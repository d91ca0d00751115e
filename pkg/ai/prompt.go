// Package ai analyzes shown calls: it assembles the analysis prompt from
// the closed taxonomies and the tenant's coaching profile, invokes the
// model, validates the structured response, and persists the outcome
// transition, objections, and cost ledger entry.
package ai

import (
	"fmt"
	"strings"

	"github.com/callscope/callscope/pkg/config"
	"github.com/callscope/callscope/pkg/models"
)

// PromptBuilder builds the system and user messages for call analysis.
// Stateless; all variability comes from the tenant record and the call.
// Thread-safe.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildSystemPrompt assembles the full analysis instruction: role, outcome
// taxonomy, objection taxonomy, scoring rubric, output schema, then the
// tenant's own sections. Tenant sections are included only when non-empty.
func (b *PromptBuilder) BuildSystemPrompt(tenant *models.Tenant) string {
	var sb strings.Builder
	sb.WriteString("You are an expert sales call analyst. You review the transcript of a ")
	sb.WriteString("sales call and produce a structured assessment.\n\n")

	sb.WriteString(formatOutcomeSection())
	sb.WriteString("\n")
	sb.WriteString(formatObjectionSection())
	sb.WriteString("\n")
	sb.WriteString(formatRubricSection())
	sb.WriteString("\n")
	sb.WriteString(formatSchemaSection())

	if tenantPart := formatTenantSections(tenant); tenantPart != "" {
		sb.WriteString("\n")
		sb.WriteString(tenantPart)
	}

	return sb.String()
}

// BuildUserMessage carries the call metadata and the transcript itself.
func (b *PromptBuilder) BuildUserMessage(call *models.Call, closerName, transcriptText string) string {
	var sb strings.Builder
	sb.WriteString("## Call Details\n\n")
	sb.WriteString("**Call Type:** ")
	sb.WriteString(string(call.CallType))
	sb.WriteString("\n")
	if closerName != "" {
		sb.WriteString("**Closer:** ")
		sb.WriteString(closerName)
		sb.WriteString("\n")
	}
	if call.DurationMinutes > 0 {
		fmt.Fprintf(&sb, "**Duration:** %d minutes\n", call.DurationMinutes)
	}
	sb.WriteString("\n## Transcript\n\n")
	sb.WriteString(transcriptText)
	return sb.String()
}

// formatOutcomeSection lists the closed outcome taxonomy.
func formatOutcomeSection() string {
	var sb strings.Builder
	sb.WriteString("## Call Outcomes\n\n")
	sb.WriteString("Classify the call as exactly one of:\n\n")
	for _, def := range config.Outcomes {
		fmt.Fprintf(&sb, "- **%s**: %s\n", def.Outcome, def.Description)
	}
	return sb.String()
}

// formatObjectionSection lists the closed objection taxonomy.
func formatObjectionSection() string {
	var sb strings.Builder
	sb.WriteString("## Objection Types\n\n")
	sb.WriteString("Identify each objection the prospect raised, typed as one of:\n\n")
	for _, def := range config.ObjectionTypes {
		fmt.Fprintf(&sb, "- **%s**: %s\n", def.Label, def.Description)
	}
	return sb.String()
}

// formatRubricSection describes the seven scored dimensions and the shared
// band interpretation of the 1-10 scale.
func formatRubricSection() string {
	var sb strings.Builder
	sb.WriteString("## Scoring Rubric\n\n")
	sb.WriteString("Score each dimension from 1 to 10:\n\n")
	for _, dim := range config.ScoringDimensions {
		fmt.Fprintf(&sb, "- **%s** (`%s`): %s\n", dim.Name, dim.Field, dim.Description)
	}
	sb.WriteString("\nScale: ")
	bands := make([]string, 0, len(config.ScoreBands))
	for _, band := range config.ScoreBands {
		if band.Low == band.High {
			bands = append(bands, fmt.Sprintf("%d = %s", band.Low, band.Label))
		} else {
			bands = append(bands, fmt.Sprintf("%d-%d = %s", band.Low, band.High, band.Label))
		}
	}
	sb.WriteString(strings.Join(bands, ", "))
	sb.WriteString(".\n")
	return sb.String()
}

// formatSchemaSection pins the exact JSON shape the model must return.
func formatSchemaSection() string {
	var sb strings.Builder
	sb.WriteString("## Output Format\n\n")
	sb.WriteString("Respond with a single JSON object and nothing else. No prose, no markdown fences. Schema:\n\n")
	sb.WriteString("{\n")
	sb.WriteString(`  "call_outcome": one of [`)
	outcomes := make([]string, 0, len(config.Outcomes))
	for _, def := range config.Outcomes {
		outcomes = append(outcomes, fmt.Sprintf("%q", string(def.Outcome)))
	}
	sb.WriteString(strings.Join(outcomes, ", "))
	sb.WriteString("],\n")
	for _, dim := range config.ScoringDimensions {
		fmt.Fprintf(&sb, "  %q: number 1-10,\n", dim.Field)
	}
	sb.WriteString("  \"prospect_temperature\": \"Hot\" | \"Warm\" | \"Cold\",\n")
	sb.WriteString("  \"prospect_goals\": string,\n")
	sb.WriteString("  \"prospect_pains\": string,\n")
	sb.WriteString("  \"current_situation\": string,\n")
	sb.WriteString("  \"call_summary\": string,\n")
	sb.WriteString("  \"objections\": [\n")
	sb.WriteString(`    {"objection_type": one of [`)
	labels := make([]string, 0, len(config.ObjectionTypes))
	for _, def := range config.ObjectionTypes {
		labels = append(labels, fmt.Sprintf("%q", def.Label))
	}
	sb.WriteString(strings.Join(labels, ", "))
	sb.WriteString("],\n")
	sb.WriteString("     \"objection_text\": string,\n")
	sb.WriteString("     \"timestamp_seconds\": number,\n")
	sb.WriteString("     \"resolved\": boolean,\n")
	sb.WriteString("     \"resolution_text\": string}\n")
	sb.WriteString("  ]\n")
	sb.WriteString("}\n")
	return sb.String()
}

// tenantSection pairs a heading with the tenant field that fills it.
type tenantSection struct {
	Heading string
	Body    string
}

// formatTenantSections renders the tenant's coaching profile. Empty fields
// produce no section; a tenant with nothing configured contributes nothing.
func formatTenantSections(tenant *models.Tenant) string {
	sections := []tenantSection{
		{"About This Business", tenant.TenantContext},
		{"The Offer", tenant.OfferDescription},
		{"Sales Script", tenant.ScriptTemplate},
		{"Discovery Scoring Guidance", tenant.DiscoveryInstructions},
		{"Pitch Scoring Guidance", tenant.PitchInstructions},
		{"Close Scoring Guidance", tenant.CloseInstructions},
		{"Objection Handling Guidance", tenant.ObjectionInstructions},
		{"Disqualification Criteria", tenant.DisqualificationCriteria},
		{"Common Objections", tenant.CommonObjections},
		{"Additional Context", tenant.AdditionalContext},
	}

	var sb strings.Builder
	for _, s := range sections {
		body := strings.TrimSpace(s.Body)
		if body == "" {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.Heading, body)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

package models

import "strings"

// Tenant is a customer organization. Stored in the legacy "clients" table.
// Tenants are never deleted, only deactivated.
type Tenant struct {
	ID       string       `db:"id" json:"id"`
	Name     string       `db:"name" json:"name"`
	PlanTier PlanTier     `db:"plan_tier" json:"plan_tier"`
	Status   EntityStatus `db:"status" json:"status"`

	// FilterPhrases distinguish sales calls from the rest of a closer's
	// calendar. Ordered, case-insensitive substrings; "*" accepts all.
	FilterPhrases StringList `db:"filter_phrases" json:"filter_phrases"`

	DefaultProvider string `db:"default_provider" json:"default_provider"`
	WebhookSecret   string `db:"webhook_secret" json:"-"`
	Timezone        string `db:"timezone" json:"timezone"`

	// Prompt fragments, one per analysis section. Empty sections are
	// omitted from the assembled prompt.
	TenantContext            string `db:"tenant_context" json:"tenant_context"`
	OfferDescription         string `db:"offer_description" json:"offer_description"`
	ScriptTemplate           string `db:"script_template" json:"script_template"`
	DiscoveryInstructions    string `db:"discovery_instructions" json:"discovery_instructions"`
	PitchInstructions        string `db:"pitch_instructions" json:"pitch_instructions"`
	CloseInstructions        string `db:"close_instructions" json:"close_instructions"`
	ObjectionInstructions    string `db:"objection_instructions" json:"objection_instructions"`
	DisqualificationCriteria string `db:"disqualification_criteria" json:"disqualification_criteria"`
	CommonObjections         string `db:"common_objections" json:"common_objections"`
	AdditionalContext        string `db:"additional_context" json:"additional_context"`

	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// ProviderName returns the tenant's calendar provider key, defaulting to
// google for rows predating the column.
func (t *Tenant) ProviderName() string {
	if t.DefaultProvider == "" {
		return "google"
	}
	return t.DefaultProvider
}

// MatchesFilter reports whether an event title passes the tenant's filter
// phrases. The wildcard "*" accepts every title. Matching is
// case-insensitive substring.
func (t *Tenant) MatchesFilter(title string) bool {
	if len(t.FilterPhrases) == 0 {
		return false
	}
	lowered := strings.ToLower(title)
	for _, phrase := range t.FilterPhrases {
		if phrase == "*" {
			return true
		}
		if phrase != "" && strings.Contains(lowered, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

package models

import "time"

// AuditEntry is one row of the append-only audit trail. Entries are never
// updated or deleted.
type AuditEntry struct {
	ID        string    `db:"id" json:"id"`
	Timestamp time.Time `db:"created_at" json:"created_at"`
	TenantID  string    `db:"client_id" json:"client_id"`

	EntityType string      `db:"entity_type" json:"entity_type"`
	EntityID   string      `db:"entity_id" json:"entity_id"`
	Action     AuditAction `db:"action" json:"action"`

	FieldName string `db:"field_name" json:"field_name"`
	OldValue  string `db:"old_value" json:"old_value"`
	NewValue  string `db:"new_value" json:"new_value"`

	TriggerSource TriggerSource `db:"trigger_source" json:"trigger_source"`
	TriggerDetail string        `db:"trigger_detail" json:"trigger_detail"`
	Metadata      Metadata      `db:"metadata" json:"metadata"`
}

// CostEntry is one row of the append-only AI cost ledger.
type CostEntry struct {
	ID        string    `db:"id" json:"id"`
	Timestamp time.Time `db:"created_at" json:"created_at"`
	TenantID  string    `db:"client_id" json:"client_id"`
	CallID    string    `db:"call_id" json:"call_id"`

	Model        string `db:"model" json:"model"`
	InputTokens  int64  `db:"input_tokens" json:"input_tokens"`
	OutputTokens int64  `db:"output_tokens" json:"output_tokens"`

	InputCostUSD  float64 `db:"input_cost_usd" json:"input_cost_usd"`
	OutputCostUSD float64 `db:"output_cost_usd" json:"output_cost_usd"`
	TotalCostUSD  float64 `db:"total_cost_usd" json:"total_cost_usd"`

	DurationMS int64 `db:"duration_ms" json:"duration_ms"`
}

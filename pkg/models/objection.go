package models

// Objection is one prospect objection raised during a call. Tenant and
// closer are denormalized so objection queries never join through calls.
type Objection struct {
	ID       string `db:"id" json:"id"`
	CallID   string `db:"call_id" json:"call_id"`
	TenantID string `db:"client_id" json:"client_id"`
	CloserID string `db:"closer_id" json:"closer_id"`

	// Type is a member of the closed objection taxonomy.
	Type string `db:"objection_type" json:"objection_type"`
	// Text is the prospect's actual phrase.
	Text string `db:"objection_text" json:"objection_text"`
	// TimestampSeconds is the offset from call start.
	TimestampSeconds int `db:"timestamp_seconds" json:"timestamp_seconds"`

	Resolved                  bool   `db:"resolved" json:"resolved"`
	ResolutionText            string `db:"resolution_text" json:"resolution_text"`
	ResolutionTimestampSecond int    `db:"resolution_timestamp_seconds" json:"resolution_timestamp_seconds"`

	CreatedAt string `db:"created_at" json:"created_at"`
}

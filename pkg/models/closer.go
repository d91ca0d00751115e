package models

// Closer is a salesperson belonging to exactly one tenant. The work email
// is the join key for calendar and transcript correlation: unique within a
// tenant among active closers. A person selling for two tenants exists as
// two closers with distinct work emails.
type Closer struct {
	ID       string       `db:"id" json:"id"`
	TenantID string       `db:"client_id" json:"client_id"`
	Name     string       `db:"name" json:"name"`
	Email    string       `db:"work_email" json:"work_email"`
	Status   EntityStatus `db:"status" json:"status"`

	TranscriptProvider string `db:"transcript_provider" json:"transcript_provider"`
	// ProviderAPIKey is the closer's transcript-provider credential.
	// Opaque to the engine, never logged.
	ProviderAPIKey string `db:"provider_api_key" json:"-"`
	// ProviderWebhookID and ProviderWebhookSecret identify the webhook
	// this system registered with the transcript provider, when
	// auto-registration succeeded.
	ProviderWebhookID     string `db:"provider_webhook_id" json:"provider_webhook_id"`
	ProviderWebhookSecret string `db:"provider_webhook_secret" json:"-"`

	CreatedAt string `db:"created_at" json:"created_at"`
	UpdatedAt string `db:"updated_at" json:"updated_at"`
}

// FirstName returns the leading word of the closer's display name.
func (c *Closer) FirstName() string {
	name := c.Name
	for i := 0; i < len(name); i++ {
		if name[i] == ' ' {
			return name[:i]
		}
	}
	return name
}

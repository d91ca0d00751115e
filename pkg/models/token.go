package models

// TokenScope classifies an access token.
type TokenScope string

const (
	// ScopeClient resolves to exactly one tenant.
	ScopeClient TokenScope = "client"
	// ScopePartner resolves to a set of tenants.
	ScopePartner TokenScope = "partner"
	// ScopeAdmin spans all tenants.
	ScopeAdmin TokenScope = "admin"
)

// AccessToken maps an opaque bearer value to a tenant scope. The engine's
// write side never consumes tokens directly; the ingress resolves them and
// passes scopes down.
type AccessToken struct {
	ID    string     `db:"id" json:"id"`
	Token string     `db:"token" json:"-"`
	Scope TokenScope `db:"scope" json:"scope"`

	// TenantID is set for client tokens; TenantIDs for partner tokens.
	TenantID  string     `db:"client_id" json:"client_id"`
	TenantIDs StringList `db:"client_ids" json:"client_ids"`

	Status    EntityStatus `db:"status" json:"status"`
	CreatedAt string       `db:"created_at" json:"created_at"`
}

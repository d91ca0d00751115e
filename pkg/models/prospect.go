package models

// Prospect is the per-tenant aggregate for one prospect email. Maintained
// by the payment pipeline; the call pipeline touches only attendance
// counters.
type Prospect struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"client_id" json:"client_id"`
	Email    string `db:"email" json:"email"`
	Name     string `db:"name" json:"name"`

	TotalCalls int `db:"total_calls" json:"total_calls"`
	TotalShows int `db:"total_shows" json:"total_shows"`

	TotalCashCollected float64 `db:"total_cash_collected" json:"total_cash_collected"`
	TotalRevenue       float64 `db:"total_revenue" json:"total_revenue"`
	PaymentCount       int     `db:"payment_count" json:"payment_count"`
	LastPaymentDate    string  `db:"last_payment_date" json:"last_payment_date"`

	Status    EntityStatus `db:"status" json:"status"`
	CreatedAt string       `db:"created_at" json:"created_at"`
	UpdatedAt string       `db:"updated_at" json:"updated_at"`
}

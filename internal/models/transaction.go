package models

import "time"

// Transaction types. The set is closed; the database enforces it with a CHECK.
const (
	TxInitialGrant = "INITIAL_GRANT"
	TxPurchase     = "PURCHASE"
	TxRoastSpend   = "ROAST_SPEND"
)

// Transaction is one append-only ledger entry. OrderID is unique across the
// table and doubles as the idempotency key for grants.
type Transaction struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Amount       int       `json:"amount"`
	Type         string    `json:"type"`
	PolarEventID *string   `json:"polar_event_id,omitempty"`
	OrderID      string    `json:"order_id"`
	CreatedAt    time.Time `json:"created_at"`
}

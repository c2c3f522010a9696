package models

import "time"

// DefaultStartingCredits is the balance a user is seeded with on first use.
const DefaultStartingCredits = 3

// User is a caller known to the identity provider. Credits is only ever
// changed by the ledger, together with a Transaction row.
type User struct {
	ID        int64     `json:"id"`
	ClerkID   string    `json:"clerk_id"`
	Email     string    `json:"email"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the verified caller attached to a request by the auth middleware.
type Identity struct {
	ExternalID string
	Email      string
}

// Package billing handles credit-pack purchases through Polar: hosted
// checkout creation, the signed order webhook and post-checkout verification.
package billing

import (
	"encoding/json"
	"fmt"
)

// Polar event types the webhook acts on.
const (
	EventCheckoutCreated = "checkout.created"
	EventOrderCreated    = "order.created"
)

// Event is the envelope of a Polar webhook delivery.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Order is the subset of a Polar order the service reads.
type Order struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Paid      bool           `json:"paid"`
	ProductID string         `json:"product_id"`
	Product   *orderProduct  `json:"product"`
	Email     string         `json:"email"`
	Metadata  map[string]any `json:"metadata"`
	Customer  *orderCustomer `json:"customer"`
}

type orderProduct struct {
	ID string `json:"id"`
}

type orderCustomer struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"metadata"`
}

// ProductRef returns product_id, falling back to the embedded product.
func (o *Order) ProductRef() string {
	if o.ProductID != "" {
		return o.ProductID
	}
	if o.Product != nil {
		return o.Product.ID
	}
	return ""
}

// UserRef returns the user id attached at checkout, from the order's own
// metadata or the customer's.
func (o *Order) UserRef() string {
	if v := metaString(o.Metadata, "userId"); v != "" {
		return v
	}
	if o.Customer != nil {
		return metaString(o.Customer.Metadata, "userId")
	}
	return ""
}

// CustomerEmail returns customer.email, falling back to the order email.
func (o *Order) CustomerEmail() string {
	if o.Customer != nil && o.Customer.Email != "" {
		return o.Customer.Email
	}
	return o.Email
}

// IsPaid reports whether the order has been paid for.
func (o *Order) IsPaid() bool {
	return o.Paid || o.Status == "paid"
}

func metaString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

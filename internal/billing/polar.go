package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrPolar wraps every non-2xx answer from the Polar API.
var ErrPolar = errors.New("polar api error")

// CheckoutRequest opens a hosted checkout for one product.
type CheckoutRequest struct {
	ProductID     string
	SuccessURL    string
	CustomerEmail string
	UserID        string
}

// Polar is a minimal client for the Polar REST API.
type Polar struct {
	client *resty.Client
}

func NewPolar(apiURL, accessToken string, timeout time.Duration) *Polar {
	return &Polar{
		client: resty.New().
			SetBaseURL(apiURL).
			SetAuthToken(accessToken).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

type checkoutBody struct {
	Products      []string          `json:"products"`
	SuccessURL    string            `json:"success_url,omitempty"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type checkoutResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateCheckout returns the hosted checkout URL. The user id is stored in
// the checkout metadata so the resulting order can be attributed.
func (p *Polar) CreateCheckout(ctx context.Context, req CheckoutRequest) (string, error) {
	var out checkoutResponse
	body := checkoutBody{
		Products:      []string{req.ProductID},
		SuccessURL:    req.SuccessURL,
		CustomerEmail: req.CustomerEmail,
		Metadata:      map[string]string{"userId": req.UserID},
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/checkouts/")
	if err != nil {
		return "", fmt.Errorf("create checkout: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: create checkout returned %d", ErrPolar, resp.StatusCode())
	}
	if out.URL == "" {
		return "", fmt.Errorf("%w: checkout has no url", ErrPolar)
	}
	return out.URL, nil
}

type ordersPage struct {
	Items      []Order `json:"items"`
	Pagination struct {
		MaxPage int `json:"max_page"`
	} `json:"pagination"`
}

const ordersPageLimit = 100

// ListOrders returns every order whose metadata carries userID.
func (p *Polar) ListOrders(ctx context.Context, userID string) ([]Order, error) {
	var orders []Order
	for page := 1; ; page++ {
		var out ordersPage
		resp, err := p.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"metadata[userId]": userID,
				"page":             fmt.Sprint(page),
				"limit":            fmt.Sprint(ordersPageLimit),
			}).
			SetResult(&out).
			Get("/v1/orders/")
		if err != nil {
			return nil, fmt.Errorf("list orders: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("%w: list orders returned %d", ErrPolar, resp.StatusCode())
		}
		orders = append(orders, out.Items...)
		if page >= out.Pagination.MaxPage || len(out.Items) == 0 {
			return orders, nil
		}
	}
}

package router

import (
	"net/http"

	"github.com/roastmyui/backend/internal/billing"
	"github.com/roastmyui/backend/internal/dashboard"
	"github.com/roastmyui/backend/internal/handlers"
	"github.com/roastmyui/backend/internal/middleware"
)

// Handlers groups everything mounted under /api.
type Handlers struct {
	Roast     *handlers.RoastHandler
	Dashboard *dashboard.Handler
	Checkout  *billing.CheckoutHandler
	Webhook   http.Handler

	// Auth authenticates bearer tokens. RoastLimit throttles roast requests
	// and may be nil.
	Auth       func(http.Handler) http.Handler
	RoastLimit func(http.Handler) http.Handler
}

// New returns an http.Handler that serves the API under /api.
func New(h Handlers) http.Handler {
	mux := http.NewServeMux()

	roastChain := h.Auth(middleware.RoastRequestCheck()(http.HandlerFunc(h.Roast.Roast)))
	if h.RoastLimit != nil {
		roastChain = h.RoastLimit(roastChain)
	}
	mux.Handle("/api/roast", methodPOST(roastChain.ServeHTTP))
	mux.Handle("/api/webhooks/polar", methodPOST(h.Webhook.ServeHTTP))

	base := "/api/v1"
	mux.HandleFunc(base+"/credits", methodGET(h.Dashboard.GetCredits))
	mux.HandleFunc(base+"/transactions", methodGET(h.Dashboard.ListTransactions))
	mux.HandleFunc(base+"/roasts", methodGET(h.Dashboard.ListRoasts))
	mux.HandleFunc(base+"/hall-of-shame", methodGET(h.Dashboard.HallOfShame))

	mux.Handle(base+"/checkout", h.Auth(methodPOST(h.Checkout.Create)))
	mux.Handle(base+"/checkout/verify", h.Auth(methodPOST(h.Checkout.Verify)))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

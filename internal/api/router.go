package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Extras are optional endpoints mounted next to the API.
type Extras struct {
	Metrics http.Handler
	Stream  http.HandlerFunc
}

// Routes mounts every endpoint on r
func (h *Handler) Routes(r chi.Router, extras Extras) {
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if extras.Metrics != nil {
		r.Handle("/metrics", extras.Metrics)
	}
	if extras.Stream != nil {
		r.Get("/ws", extras.Stream)
	}

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/status", h.Status)
	r.Get("/rounds/current", h.GetCurrentRound)
	r.Get("/rounds/{id}", h.GetRound)
	r.Get("/rounds/{id}/orders", h.GetRoundOrders)
	r.Get("/rounds/{id}/orders/{orderID}", h.GetOrder)
	r.Get("/referrals/{address}", h.GetReferrals)
	r.Get("/events", h.GetEvents)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/balance", h.Balance)
		r.Post("/referrals", h.SetReferrer)
		r.Post("/sale/buy", h.BuySale)
		r.Post("/orders", h.PlaceOrder)
		r.Delete("/orders/{id}", h.CancelOrder)
		r.Post("/orders/{id}/buy", h.BuyOrder)
		r.Post("/rounds/next", h.NextRound)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/init", h.Init)
			r.Post("/pause", h.Pause)
			r.Post("/unpause", h.Unpause)
			r.Post("/withdraw", h.Withdraw)
		})
	})
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/crowdfund-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса краудфандинга.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))
	r.Use(h.metrics.Middleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/campaigns", h.ListCampaigns)
		r.Get("/campaigns/count", h.GetCampaignCount)
		r.Get("/campaigns/{id}", h.GetCampaign)
		r.Get("/campaigns/{id}/updates", h.ListUpdates)
		r.Get("/campaigns/{id}/updates/{index}", h.GetUpdate)
		r.Get("/campaigns/{id}/contributions/{principal}", h.GetPledge)

		r.Get("/creators/{principal}", h.GetCreator)
		r.Get("/notifications", h.GetNotifications)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/creators", h.RegisterCreator)

			r.Post("/campaigns", h.CreateCampaign)
			r.Post("/campaigns/{id}/contributions", h.Contribute)
			r.Post("/campaigns/{id}/upkeep", h.CheckUpkeep)
			r.Post("/campaigns/{id}/withdrawal", h.Withdraw)
			r.Post("/campaigns/{id}/refund", h.Refund)
			r.Post("/campaigns/{id}/updates", h.PostUpdate)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mpetrenko/loyalty-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса лояльности.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/social-login", h.SocialLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Member)

			r.Get("/users/me", h.GetMe)
			r.Get("/rewards", h.ListRewards)
			r.Post("/transactions/redeem", h.Redeem)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Admin)

			r.Post("/rewards", h.CreateReward)
			r.Put("/rewards/{rewardID}", h.UpdateReward)
			r.Delete("/rewards/{rewardID}", h.DeleteReward)

			r.Post("/transactions/earn", h.Earn)
			r.Get("/analytics/summary", h.GetSummary)
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

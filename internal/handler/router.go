package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mmeshcher/skillmarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса skillmarket.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Session)

		r.Route("/token", func(r chi.Router) {
			r.Get("/balance/{account}", h.GetBalance)
			r.Get("/allowance", h.GetAllowance)
			r.Get("/calculate", h.Calculate)
			r.Get("/info", h.TokenInfo)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/purchase", h.PurchaseTokens)
				r.Post("/approve", h.Approve)
				r.Post("/transfer", h.Transfer)
				r.Post("/transfer-from", h.TransferFrom)
				r.Post("/withdraw-native", h.WithdrawNative)
			})
		})

		r.Route("/courses", func(r chi.Router) {
			r.Get("/", h.GetCourses)
			r.Get("/{id}", h.GetCourse)
			r.Get("/{id}/purchased", h.HasPurchased)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Post("/", h.CreateCourse)
				r.Post("/{id}/purchase", h.PurchaseCourse)
				r.Get("/my", h.GetMyCourses)
			})
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

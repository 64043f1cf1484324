package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/stockroom/stockroom/internal/rbac"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Readers...))
		r.Get("/", h.List)
		r.Get("/{id}", h.Show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.Writers...))
		r.Post("/", h.Create)
	})
}

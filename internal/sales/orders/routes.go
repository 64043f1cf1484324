package orders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order endpoints. Authorization happens in Service so failures use
// the order result envelope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Show)
	r.Post("/{id}/status", h.UpdateStatus)
}

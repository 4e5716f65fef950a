package periods

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/status", h.Status)
	r.Post("/close", h.Close)
	r.Post("/reopen", h.Reopen)
	r.Post("/lock", h.Lock)
}

package ingest

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.Handle)
	r.Post("/async", h.HandleAsync)
	r.Get("/processed", h.ListProcessed)
}

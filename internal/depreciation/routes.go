package depreciation

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/assets", h.CreateAsset)
	r.Get("/preview", h.Preview)
	r.Get("/runs", h.ListRuns)
	r.Post("/runs", h.Calculate)
	r.Get("/runs/{id}", h.GetRun)
	r.Post("/runs/{id}/post", h.Post)
	r.Post("/runs/{id}/reverse", h.Reverse)
}

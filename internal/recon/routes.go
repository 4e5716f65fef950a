package recon

import "github.com/go-chi/chi/v5"

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/bank-accounts", func(r chi.Router) {
		r.Get("/", h.ListBankAccounts)
		r.Post("/", h.CreateBankAccount)
	})
	r.Route("/statements", func(r chi.Router) {
		r.Get("/", h.ListStatements)
		r.Post("/", h.ImportStatement)
		r.Get("/{id}", h.GetStatement)
		r.Delete("/{id}", h.DeleteStatement)
		r.Get("/{id}/transactions", h.ListTransactions)
		r.Get("/{id}/validate", h.ValidateTotals)
	})
	r.Route("/transactions/{id}", func(r chi.Router) {
		r.Post("/match", h.Match)
		r.Post("/unmatch", h.Unmatch)
		r.Post("/ignore", h.Ignore)
		r.Get("/suggestions", h.SuggestMatches)
	})
}

// Package handler exposes the stock engine over HTTP
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
)

// Handlers groups every stock endpoint handler
type Handlers struct {
	Materials   *MaterialHandler
	Arrivals    *ArrivalHandler
	Production  *ProductionHandler
	Alerts      *AlertHandler
	Sweep       *SweepHandler
	Identifiers *IdentifierHandler
}

// Mount registers the stock routes on r. Callers mount it under
// /api/v1/stock.
func (h *Handlers) Mount(r chi.Router) {
	r.Route("/materials", func(r chi.Router) {
		r.Get("/", h.Materials.List)
		r.Post("/", h.Materials.Create)
		r.Get("/{id}", h.Materials.Get)
		r.Put("/{id}/reorder-level", h.Materials.UpdateReorderLevel)
		r.Post("/{id}/corrections", h.Materials.Correct)
		r.Get("/{id}/movements", h.Materials.ListMovements)
	})

	r.Route("/arrivals", func(r chi.Router) {
		r.Get("/", h.Arrivals.List)
		r.Post("/", h.Arrivals.Create)
		r.Get("/{id}", h.Arrivals.Get)
		r.Put("/{id}", h.Arrivals.Update)
		r.Delete("/{id}", h.Arrivals.Delete)
	})

	r.Route("/production-runs", func(r chi.Router) {
		r.Get("/", h.Production.List)
		r.Post("/", h.Production.Create)
		r.Get("/{id}", h.Production.Get)
		r.Put("/{id}", h.Production.Update)
		r.Delete("/{id}", h.Production.Delete)
	})

	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.Alerts.List)
		r.Put("/{id}/read", h.Alerts.MarkRead)
		r.Delete("/{id}", h.Alerts.Delete)
	})

	r.Post("/sweep", h.Sweep.Run)

	r.Route("/identifiers", func(r chi.Router) {
		r.Get("/", h.Identifiers.ListNamespaces)
		r.Get("/{namespace}", h.Identifiers.Current)
		r.Post("/{namespace}", h.Identifiers.Issue)
	})
}

// pageOf reads page/per_page and returns the store window with the
// values echoed in list metadata
func pageOf(r *http.Request) (domain.Page, int, int) {
	page, perPage := httputil.Pagination(r)
	return domain.Page{Limit: perPage, Offset: (page - 1) * perPage}, page, perPage
}

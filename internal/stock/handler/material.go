package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// MaterialHandler handles catalogue and stock correction endpoints
type MaterialHandler struct {
	catalogue   *service.Catalogue
	corrections *service.CorrectionService
	logger      *logger.Logger
}

// NewMaterialHandler creates a new material handler
func NewMaterialHandler(catalogue *service.Catalogue, corrections *service.CorrectionService, log *logger.Logger) *MaterialHandler {
	return &MaterialHandler{
		catalogue:   catalogue,
		corrections: corrections,
		logger:      log,
	}
}

// List lists materials
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	window, page, perPage := pageOf(r)

	materials, total, err := h.catalogue.ListMaterials(r.Context(), window)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, materials, httputil.NewMeta(page, perPage, total))
}

// Create adds a material with zero stock
func (h *MaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateMaterialInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	m, err := h.catalogue.CreateMaterial(r.Context(), req)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.Created(w, m)
}

// Get gets a material by ID
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.catalogue.GetMaterial(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, m)
}

// UpdateReorderLevel changes a material's low-stock threshold
func (h *MaterialHandler) UpdateReorderLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReorderLevel decimal.Decimal `json:"reorder_level" validate:"gte=0"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	m, err := h.catalogue.UpdateReorderLevel(r.Context(), chi.URLParam(r, "id"), req.ReorderLevel)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, m)
}

// Correct applies a manual stock correction
func (h *MaterialHandler) Correct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta  decimal.Decimal `json:"delta"`
		Reason string          `json:"reason" validate:"required,max=500"`
	}
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.corrections.Correct(r.Context(), service.CorrectionInput{
		MaterialID: chi.URLParam(r, "id"),
		Delta:      req.Delta,
		Reason:     req.Reason,
	}, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.Created(w, res)
}

// ListMovements lists a material's corrections
func (h *MaterialHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	window, page, perPage := pageOf(r)

	movements, total, err := h.corrections.ListMovements(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, movements, httputil.NewMeta(page, perPage, total))
}

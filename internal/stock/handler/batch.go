package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// ArrivalHandler handles supplier delivery endpoints
type ArrivalHandler struct {
	service *service.ArrivalService
	logger  *logger.Logger
}

// NewArrivalHandler creates a new arrival handler
func NewArrivalHandler(svc *service.ArrivalService, log *logger.Logger) *ArrivalHandler {
	return &ArrivalHandler{
		service: svc,
		logger:  log,
	}
}

// List lists arrivals
func (h *ArrivalHandler) List(w http.ResponseWriter, r *http.Request) {
	window, page, perPage := pageOf(r)

	arrivals, total, err := h.service.ListArrivals(r.Context(), window)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, arrivals, httputil.NewMeta(page, perPage, total))
}

// Get gets an arrival by ID
func (h *ArrivalHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetArrival(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, b)
}

// Create records a delivery
func (h *ArrivalHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ArrivalInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	b, err := h.service.RecordArrival(r.Context(), req)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.Created(w, b)
}

// Update replaces a delivery's lines
func (h *ArrivalHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.ArrivalInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	b, err := h.service.UpdateArrival(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, b)
}

// Delete removes a delivery and takes its stock back out
func (h *ArrivalHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteArrival(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.NoContent(w)
}

// ProductionHandler handles production run endpoints
type ProductionHandler struct {
	service *service.ProductionService
	logger  *logger.Logger
}

// NewProductionHandler creates a new production handler
func NewProductionHandler(svc *service.ProductionService, log *logger.Logger) *ProductionHandler {
	return &ProductionHandler{
		service: svc,
		logger:  log,
	}
}

// List lists production runs
func (h *ProductionHandler) List(w http.ResponseWriter, r *http.Request) {
	window, page, perPage := pageOf(r)

	runs, total, err := h.service.ListRuns(r.Context(), window)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, runs, httputil.NewMeta(page, perPage, total))
}

// Get gets a production run by ID
func (h *ProductionHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.service.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, b)
}

// Create records a production run
func (h *ProductionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.ProductionInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	b, err := h.service.CreateRun(r.Context(), req)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.Created(w, b)
}

// Update edits a production run
func (h *ProductionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req service.ProductionInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	b, err := h.service.EditRun(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, b)
}

// Delete removes a production run and restores its materials
func (h *ProductionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.NoContent(w)
}

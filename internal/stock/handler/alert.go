package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/harvestline/harvestline-backend/internal/stock/domain"
	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// AlertHandler handles alert endpoints
type AlertHandler struct {
	engine *service.NotificationEngine
	logger *logger.Logger
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(engine *service.NotificationEngine, log *logger.Logger) *AlertHandler {
	return &AlertHandler{
		engine: engine,
		logger: log,
	}
}

// List lists alerts, filtered by type, subject_id and unread
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := httputil.Pagination(r)
	q := r.URL.Query()

	filter := domain.AlertFilter{
		Type:      domain.AlertType(q.Get("type")),
		SubjectID: q.Get("subject_id"),
		Page:      page,
		PerPage:   perPage,
	}

	switch filter.Type {
	case "", domain.AlertTypeLowStock, domain.AlertTypeExpiring, domain.AlertTypeInformational:
	default:
		httputil.Error(w, errors.BadRequest("unknown alert type"))
		return
	}

	if raw := q.Get("unread"); raw != "" {
		unread, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.Error(w, errors.BadRequest("unread must be true or false"))
			return
		}
		filter.Unread = &unread
	}

	alerts, total, err := h.engine.List(r.Context(), filter)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, alerts, httputil.NewMeta(page, perPage, total))
}

// MarkRead marks an alert as read
func (h *AlertHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	a, err := h.engine.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, a)
}

// Delete deletes an alert
func (h *AlertHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.NoContent(w)
}

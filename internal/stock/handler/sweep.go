package handler

import (
	stderrors "errors"
	"net/http"

	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/errors"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// SweepHandler triggers reconciliation sweeps on demand
type SweepHandler struct {
	sweep  *service.Sweep
	logger *logger.Logger
}

// NewSweepHandler creates a new sweep handler
func NewSweepHandler(sweep *service.Sweep, log *logger.Logger) *SweepHandler {
	return &SweepHandler{
		sweep:  sweep,
		logger: log,
	}
}

// Run runs a detection pass and returns its summary
func (h *SweepHandler) Run(w http.ResponseWriter, r *http.Request) {
	h.logger.Info().Str("user_id", httputil.GetUserID(r.Context())).Msg("detection pass requested")

	result, err := h.sweep.RunDetectionPass(r.Context())
	if stderrors.Is(err, service.ErrSweepInProgress) {
		httputil.Error(w, errors.Conflict("a detection pass is already running"))
		return
	}
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

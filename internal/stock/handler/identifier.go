package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harvestline/harvestline-backend/internal/stock/service"
	"github.com/harvestline/harvestline-backend/pkg/httputil"
	"github.com/harvestline/harvestline-backend/pkg/logger"
)

// IdentifierHandler hands out sequential business codes to other modules
type IdentifierHandler struct {
	issuer *service.SequenceIssuer
	logger *logger.Logger
}

// NewIdentifierHandler creates a new identifier handler
func NewIdentifierHandler(issuer *service.SequenceIssuer, log *logger.Logger) *IdentifierHandler {
	return &IdentifierHandler{
		issuer: issuer,
		logger: log,
	}
}

// IdentifierResponse is an issued code
type IdentifierResponse struct {
	Namespace string `json:"namespace"`
	Code      string `json:"code"`
}

// CounterResponse is the last value issued in a namespace
type CounterResponse struct {
	Namespace string `json:"namespace"`
	Current   int64  `json:"current"`
}

// ListNamespaces lists the namespaces codes can be issued in
func (h *IdentifierHandler) ListNamespaces(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, service.NamespaceNames())
}

// Issue issues the next code in a namespace
func (h *IdentifierHandler) Issue(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	code, err := h.issuer.Issue(r.Context(), namespace)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.Created(w, IdentifierResponse{Namespace: namespace, Code: code})
}

// Current reports the last value issued in a namespace without issuing
func (h *IdentifierHandler) Current(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	current, err := h.issuer.Current(r.Context(), namespace)
	if err != nil {
		httputil.ErrorWithLog(w, r, h.logger, err)
		return
	}

	httputil.JSON(w, http.StatusOK, CounterResponse{Namespace: namespace, Current: current})
}

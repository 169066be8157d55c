package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/okian/dropwatch/internal/domain/aggregate"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

// AdminDependencies covers operational endpoints.
type AdminDependencies interface {
	Recompute(ctx context.Context) (aggregate.Report, error)
	Status(ctx context.Context) model.Status
}

// AdminHandler handles /internal/recompute and /status requests.
type AdminHandler struct {
	deps   AdminDependencies
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps AdminDependencies, l logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: l}
}

type progressResponse struct {
	Status string `json:"status"`
}

// HandleRecompute handles POST /internal/recompute. A recompute already
// running answers 202.
func (h *AdminHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	const op = "api.recompute"
	report, err := h.deps.Recompute(r.Context())
	switch {
	case errors.Is(err, model.ErrRecomputeInProgress):
		writeJSON(w, http.StatusAccepted, progressResponse{Status: "in_progress"})
	case err != nil:
		writeError(r.Context(), w, h.logger, Wrap(op, err))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

// HandleStatus handles GET /status.
func (h *AdminHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Status(r.Context()))
}

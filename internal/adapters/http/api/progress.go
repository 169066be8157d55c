package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

// ProgressDependencies exposes the catalog and per-character progress.
type ProgressDependencies interface {
	Progress(ctx context.Context, characterID string) (model.Progress, error)
	Bosses(ctx context.Context) []model.Boss
}

// ProgressHandler handles /progress and /bosses requests.
type ProgressHandler struct {
	deps   ProgressDependencies
	logger logger.Logger
}

// NewProgressHandler creates a new progress handler.
func NewProgressHandler(deps ProgressDependencies, l logger.Logger) *ProgressHandler {
	return &ProgressHandler{deps: deps, logger: l}
}

// HandleProgress handles GET /progress?character_id=.
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	const op = "api.progress"
	id := strings.TrimSpace(r.URL.Query().Get("character_id"))
	if id == "" {
		writeError(r.Context(), w, h.logger, NewKind(op, model.NewValidationError("character_id", "is required")))
		return
	}
	p, err := h.deps.Progress(r.Context(), id)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleBosses handles GET /bosses.
func (h *ProgressHandler) HandleBosses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Bosses(r.Context()))
}

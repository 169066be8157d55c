package api

import (
	"context"
	"net/http"

	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/pkg/logger"
)

// StatsDependencies is the read-only stats surface.
type StatsDependencies interface {
	Stats(ctx context.Context, q model.StatsQuery) ([]model.DropRateStat, error)
	Rare(ctx context.Context, limit, minSample int) ([]model.RareEntry, error)
	Overview(ctx context.Context) (model.Summary, error)
}

// StatsHandler handles /stats requests.
type StatsHandler struct {
	deps   StatsDependencies
	logger logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps StatsDependencies, l logger.Logger) *StatsHandler {
	return &StatsHandler{deps: deps, logger: l}
}

// HandleQuery handles GET /stats?boss=&item=&minSample=.
func (h *StatsHandler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats"
	minSample, err := queryInt(r, "minSample")
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	q := r.URL.Query()
	stats, err := h.deps.Stats(r.Context(), model.StatsQuery{
		BossID:    q.Get("boss"),
		ItemID:    q.Get("item"),
		MinSample: minSample,
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	if stats == nil {
		stats = []model.DropRateStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleRare handles GET /stats/rare?limit=&minSample=.
func (h *StatsHandler) HandleRare(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats_rare"
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	minSample, err := queryInt(r, "minSample")
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	out, err := h.deps.Rare(r.Context(), limit, minSample)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	if out == nil {
		out = []model.RareEntry{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleOverview handles GET /stats/overview. It is 404 until the first recompute.
func (h *StatsHandler) HandleOverview(w http.ResponseWriter, r *http.Request) {
	const op = "api.stats_overview"
	s, err := h.deps.Overview(r.Context())
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, s)
}

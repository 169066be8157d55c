package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/gorilla/mux"

	"github.com/okian/dropwatch/internal/domain/clears"
	"github.com/okian/dropwatch/internal/domain/model"
	"github.com/okian/dropwatch/internal/domain/period"
	"github.com/okian/dropwatch/pkg/logger"
)

// ClearsDependencies is the write path plus clear lookups.
type ClearsDependencies interface {
	RecordClear(ctx context.Context, in clears.RecordInput) (model.ClearEvent, error)
	GetClear(ctx context.Context, id string) (model.ClearEvent, error)
	ListClears(ctx context.Context, f model.ClearFilter) ([]model.ClearEvent, error)
	UpdateClear(ctx context.Context, id string, in clears.UpdateInput) (model.ClearEvent, error)
	DeleteClear(ctx context.Context, id string) error
	AddDrop(ctx context.Context, clearID string, in clears.DropInput) (model.DropEvent, error)
}

// immutableFields are clear fields that exist but may not be changed.
var immutableFields = map[string]bool{
	"id":           true,
	"character_id": true,
	"boss_id":      true,
	"period_key":   true,
	"occurred_at":  true,
	"cleared":      true,
	"created_at":   true,
	"drops":        true,
}

// ClearsHandler handles /clears requests.
type ClearsHandler struct {
	deps   ClearsDependencies
	logger logger.Logger
}

// NewClearsHandler creates a new clears handler.
func NewClearsHandler(deps ClearsDependencies, l logger.Logger) *ClearsHandler {
	return &ClearsHandler{deps: deps, logger: l}
}

// HandleRecord handles POST /clears.
func (h *ClearsHandler) HandleRecord(w http.ResponseWriter, r *http.Request) {
	const op = "api.record_clear"
	var in clears.RecordInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	c, err := h.deps.RecordClear(r.Context(), in)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HandleGet handles GET /clears/{id}.
func (h *ClearsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_clear"
	c, err := h.deps.GetClear(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleList handles GET /clears?character_id=&boss_id=&period=&limit=.
func (h *ClearsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_clears"
	q := r.URL.Query()
	f := model.ClearFilter{
		CharacterID: q.Get("character_id"),
		BossID:      q.Get("boss_id"),
	}
	if raw := q.Get("period"); raw != "" {
		k, err := period.ParseKey(raw)
		if err != nil {
			writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, fmt.Errorf("period: %w", err)))
			return
		}
		f.PeriodKey = k
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	f.Limit = limit

	out, err := h.deps.ListClears(r.Context(), f)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	if out == nil {
		out = []model.ClearEvent{}
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleUpdate handles PUT /clears/{id}. Only party_size and notes may change.
func (h *ClearsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_clear"
	var raw map[string]json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := checkMutable(raw); err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}

	var in clears.UpdateInput
	if v, ok := raw["party_size"]; ok {
		if err := json.Unmarshal(v, &in.PartySize); err != nil || in.PartySize == nil {
			writeError(r.Context(), w, h.logger, NewKind(op, model.NewValidationError("party_size", "must be an integer")))
			return
		}
	}
	if v, ok := raw["notes"]; ok {
		if err := json.Unmarshal(v, &in.Notes); err != nil || in.Notes == nil {
			writeError(r.Context(), w, h.logger, NewKind(op, model.NewValidationError("notes", "must be a string")))
			return
		}
	}

	c, err := h.deps.UpdateClear(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HandleDelete handles DELETE /clears/{id}.
func (h *ClearsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_clear"
	if err := h.deps.DeleteClear(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddDrop handles POST /clears/{id}/drops.
func (h *ClearsHandler) HandleAddDrop(w http.ResponseWriter, r *http.Request) {
	const op = "api.add_drop"
	var in clears.DropInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(r.Context(), w, h.logger, WrapKind(op, ErrBadRequest, err))
		return
	}
	d, err := h.deps.AddDrop(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(r.Context(), w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// checkMutable rejects bodies naming immutable or unknown fields.
func checkMutable(raw map[string]json.RawMessage) error {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch {
		case k == "party_size" || k == "notes":
		case immutableFields[k]:
			return fmt.Errorf("%s: %w", k, model.ErrImmutableField)
		default:
			return model.NewValidationError(k, "unknown field")
		}
	}
	return nil
}

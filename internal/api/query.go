package api

import (
	"encoding/json"
	"net/http"
	"time"

	"presencelog/internal/cache"
	"presencelog/internal/poller"
	"presencelog/internal/store"
)

// QueryHandler serves the read side: members, history, and the latest
// presence view.
type QueryHandler struct {
	store store.PresenceStore
	cache cache.Cache
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(st store.PresenceStore, c cache.Cache) *QueryHandler {
	return &QueryHandler{store: st, cache: c}
}

// ListUsers handles GET /api/users. The active filter defaults to true;
// pass ?all=1 to include members that left the directory.
func (h *QueryHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""

	members, err := h.store.ListMembers(r.Context(), activeOnly)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ReasonInternalError, "failed to list users")
		return
	}
	if members == nil {
		members = []*store.Member{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{"users": members})
}

// HistoryEntry is one row of the history response.
type HistoryEntry struct {
	Status     string `json:"status"`
	Activity   string `json:"activity,omitempty"`
	CapturedAt string `json:"captured_at"`
}

// History handles GET /api/history?user_id=&from=&to=.
// Bounds are RFC 3339 and inclusive; from defaults to the epoch, to
// defaults to now.
func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	userID := q.Get("user_id")
	if userID == "" {
		WriteBadRequest(w, ReasonMissingField, "user_id is required")
		return
	}

	from := time.Unix(0, 0)
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteBadRequest(w, ReasonInvalidField, "from must be RFC 3339")
			return
		}
		from = t
	}

	to := time.Now()
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			WriteBadRequest(w, ReasonInvalidField, "to must be RFC 3339")
			return
		}
		to = t
	}

	if to.Before(from) {
		WriteBadRequest(w, ReasonInvalidField, "to is before from")
		return
	}

	recs, err := h.store.History(r.Context(), userID, from, to)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ReasonInternalError, "failed to read history")
		return
	}

	entries := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, HistoryEntry{
			Status:     rec.Status,
			Activity:   rec.Activity,
			CapturedAt: time.Unix(rec.CapturedAt, 0).UTC().Format(time.RFC3339),
		})
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"history": entries,
	})
}

// CurrentPresence handles GET /api/presence/current, served from the
// latest-presence cache refreshed by the poll cycle. Members absent
// from the cache (never polled, or entry expired) are omitted.
func (h *QueryHandler) CurrentPresence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	keys, err := h.cache.Keys(ctx, poller.CurrentPresencePrefix+"*")
	if err != nil {
		WriteError(w, http.StatusInternalServerError, ReasonInternalError, "failed to read presence cache")
		return
	}

	current := make([]json.RawMessage, 0, len(keys))
	for _, key := range keys {
		val, err := h.cache.Get(ctx, key)
		if err != nil {
			// Expired between Keys and Get.
			continue
		}
		current = append(current, json.RawMessage(val))
	}

	WriteJSON(w, http.StatusOK, map[string]any{"presence": current})
}

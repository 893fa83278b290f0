package handler

import (
	"net/http"
	"strconv"

	"remindly/internal/auth"
	"remindly/internal/notify"

	"github.com/rs/zerolog/hlog"
)

type NotificationHandler struct {
	Inbox *notify.Inbox
}

// List supports ?unread=true and ?limit=N.
func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	unread, _ := strconv.ParseBool(q.Get("unread"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	items, err := h.Inbox.List(r.Context(), uid, unread, limit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list notifications")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	found, err := h.Inbox.MarkRead(r.Context(), uid, id)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("mark notification read")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "notification not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

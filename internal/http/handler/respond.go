package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"remindly/internal/reminder"
	"remindly/internal/task"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// writeStoreErr maps reminder and task store errors onto HTTP status codes.
func writeStoreErr(w http.ResponseWriter, r *http.Request, err error) {
	var ve *reminder.ValidationError
	switch {
	case errors.Is(err, reminder.ErrNotFound), errors.Is(err, task.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, task.ErrInvalid):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, reminder.ErrStoreUnavailable), errors.Is(err, task.ErrStoreUnavailable):
		hlog.FromRequest(r).Error().Err(err).Msg("store unavailable")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("unexpected store error")
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}

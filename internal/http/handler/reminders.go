package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"remindly/internal/auth"
	"remindly/internal/reminder"
)

const (
	defaultSnoozeMinutes = 10
	upcomingHorizon      = 24 * time.Hour
)

type ReminderHandler struct {
	Store *reminder.Store
	Clock reminder.Clock
}

func (h *ReminderHandler) now() time.Time {
	if h.Clock == nil {
		return reminder.SystemClock.Now()
	}
	return h.Clock.Now()
}

type createReminderReq struct {
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	ReminderDateTime time.Time `json:"reminder_date_time"`
	ReminderType     string    `json:"reminder_type"`
	Priority         string    `json:"priority"`
	Category         string    `json:"category"`
}

type updateReminderReq struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	ReminderDateTime *time.Time `json:"reminder_date_time"`
	ReminderType     *string    `json:"reminder_type"`
	Priority         *string    `json:"priority"`
	Category         *string    `json:"category"`
	IsActive         *bool      `json:"is_active"`
}

type snoozeReq struct {
	Minutes *int `json:"minutes"`
}

func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	items, err := h.Store.List(r.Context(), uid, reminder.Filter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Priority: q.Get("priority"),
	})
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ReminderHandler) Due(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	items, err := h.Store.FindDueForUser(r.Context(), uid, h.now())
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ReminderHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	items, err := h.Store.FindUpcoming(r.Context(), uid, h.now(), upcomingHorizon)
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *ReminderHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	st, err := h.Store.Stats(r.Context(), uid, h.now())
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	rem, err := h.Store.Get(r.Context(), id, uid)
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())

	var req createReminderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	rem, err := h.Store.Create(r.Context(), uid, reminder.CreateInput{
		Title:            req.Title,
		Description:      req.Description,
		ReminderDateTime: req.ReminderDateTime,
		ReminderType:     reminder.Type(req.ReminderType),
		Priority:         reminder.Priority(req.Priority),
		Category:         reminder.Category(req.Category),
	})
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

func (h *ReminderHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req updateReminderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	in := reminder.UpdateInput{
		Title:            req.Title,
		Description:      req.Description,
		ReminderDateTime: req.ReminderDateTime,
		IsActive:         req.IsActive,
	}
	if req.ReminderType != nil {
		t := reminder.Type(*req.ReminderType)
		in.ReminderType = &t
	}
	if req.Priority != nil {
		p := reminder.Priority(*req.Priority)
		in.Priority = &p
	}
	if req.Category != nil {
		c := reminder.Category(*req.Category)
		in.Category = &c
	}

	rem, err := h.Store.Update(r.Context(), id, uid, in)
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *ReminderHandler) Complete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	done, next, err := h.Store.CompleteWithNext(r.Context(), id, uid)
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reminder": done,
		"next":     next,
	})
}

// Snooze accepts an empty body, which snoozes for the default ten minutes.
func (h *ReminderHandler) Snooze(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req snoozeReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	minutes := defaultSnoozeMinutes
	if req.Minutes != nil {
		minutes = *req.Minutes
	}

	rem, err := h.Store.Snooze(r.Context(), id, uid, minutes)
	if err != nil {
		writeStoreErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := idParam(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	if err := h.Store.Delete(r.Context(), id, uid); err != nil {
		writeStoreErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

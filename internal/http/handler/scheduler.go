package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"remindly/internal/scheduler"

	"github.com/rs/zerolog/hlog"
)

type SchedulerHandler struct {
	Scheduler *scheduler.Scheduler
}

type schedulerStatusResp struct {
	IsRunning  bool       `json:"is_running"`
	CadenceMS  int64      `json:"cadence_ms"`
	LastCheck  *time.Time `json:"last_check"`
	Passes     uint64     `json:"passes"`
	Dispatched uint64     `json:"dispatched"`
	Failures   uint64     `json:"failures"`
}

const (
	minCadence = time.Second
	maxCadence = 24 * time.Hour
)

type cadenceReq struct {
	CadenceMS int64 `json:"cadence_ms"`
}

func (h *SchedulerHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

// SetCadence changes the check interval, restarting the schedule when it is
// running.
func (h *SchedulerHandler) SetCadence(w http.ResponseWriter, r *http.Request) {
	var req cadenceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.CadenceMS < minCadence.Milliseconds() || req.CadenceMS > maxCadence.Milliseconds() {
		http.Error(w, "cadence_ms must be between 1s and 24h", http.StatusBadRequest)
		return
	}
	every := time.Duration(req.CadenceMS) * time.Millisecond

	if err := h.Scheduler.SetCadence(r.Context(), every); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("set cadence")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.writeStatus(w)
}

func (h *SchedulerHandler) writeStatus(w http.ResponseWriter) {
	st := h.Scheduler.Status()
	writeJSON(w, http.StatusOK, schedulerStatusResp{
		IsRunning:  st.IsRunning,
		CadenceMS:  st.Cadence.Milliseconds(),
		LastCheck:  st.LastCheck,
		Passes:     st.Passes,
		Dispatched: st.Dispatched,
		Failures:   st.Failures,
	})
}

// Trigger runs one check pass synchronously.
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.TriggerCheck(r.Context())
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("manual check pass failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"found":   res.Found,
		"sent":    res.Sent,
		"skipped": res.Skipped,
		"failed":  res.Failed,
	})
}

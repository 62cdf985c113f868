package api

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/tariff"
)

// ScheduleDTO is a schedule as served by the API.
type ScheduleDTO struct {
	tariff.Schedule
	Description string `json:"description"`
}

func toDTO(s tariff.Schedule) ScheduleDTO {
	return ScheduleDTO{Schedule: s, Description: s.Describe()}
}

func (s *server) listSchedules(w http.ResponseWriter, r *http.Request) {
	list := s.Billing.Catalog().List()
	out := make([]ScheduleDTO, 0, len(list))
	for _, sched := range list {
		out = append(out, toDTO(sched))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) getSchedule(w http.ResponseWriter, r *http.Request) {
	sched, err := s.Billing.Catalog().Get(r.PathValue("key"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toDTO(sched))
}

func (s *server) putSchedule(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	var sched tariff.Schedule
	if err := json.Unmarshal(body, &sched); err != nil {
		writeError(w, http.StatusBadRequest, "decode schedule: "+err.Error())
		return
	}
	sched.Key = r.PathValue("key")

	if err := s.Billing.Catalog().Put(r.Context(), sched); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.Logger.Info("schedule updated", zap.String("schedule", sched.Key), zap.String("slabs", sched.Describe()))
	writeJSON(w, http.StatusOK, toDTO(sched))
}

func (s *server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	found, err := s.Billing.Catalog().Delete(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "unknown schedule: "+key)
		return
	}
	s.Logger.Info("schedule deleted", zap.String("schedule", key))
	w.WriteHeader(http.StatusNoContent)
}

package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/billing"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

// CostResponse is the result of pricing an explicit consumption.
type CostResponse struct {
	Schedule  string              `json:"schedule"`
	KWh       float64             `json:"kwh"`
	Cost      float64             `json:"cost"`
	Display   string              `json:"display"`
	Rounded   int64               `json:"rounded"`
	Breakdown []tariff.SlabCharge `json:"breakdown"`
}

// EstimateResponse is the result of pricing a power reading over assumed hours.
type EstimateResponse struct {
	Schedule     string  `json:"schedule"`
	Watts        float64 `json:"watts"`
	AssumedHours float64 `json:"assumed_hours"`
	KWh          float64 `json:"kwh"`
	Cost         float64 `json:"cost"`
	Display      string  `json:"display"`
	Rounded      int64   `json:"rounded"`
	Estimated    bool    `json:"estimated"`
}

// WeeklyResponse is the per-day cost series.
type WeeklyResponse struct {
	Schedule     string            `json:"schedule"`
	AssumedHours float64           `json:"assumed_hours"`
	Days         []billing.DayCost `json:"days"`
}

// LiveResponse reports the live feed state.
type LiveResponse struct {
	Enabled   bool               `json:"enabled"`
	Connected bool               `json:"connected"`
	Reading   *telemetry.Reading `json:"reading,omitempty"`
}

func (s *server) scheduleFor(r *http.Request) (tariff.Schedule, error) {
	key := r.URL.Query().Get("schedule")
	if key == "" {
		key = s.Billing.Config().DefaultSchedule
	}
	return s.Billing.Catalog().Get(key)
}

func (s *server) handleCost(w http.ResponseWriter, r *http.Request) {
	sched, err := s.scheduleFor(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	kwh, err := floatParam(r, "kwh")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cost, err := tariff.CalculateCost(sched, kwh)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	breakdown, _ := tariff.Breakdown(sched, kwh)
	writeJSON(w, http.StatusOK, CostResponse{
		Schedule:  sched.Key,
		KWh:       kwh,
		Cost:      cost,
		Display:   tariff.FormatCost(cost),
		Rounded:   tariff.RoundCost(cost),
		Breakdown: breakdown,
	})
}

func (s *server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	sched, err := s.scheduleFor(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	watts, err := floatParam(r, "watts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	hours, err := floatParam(r, "hours")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cost, err := tariff.EstimateDailyCostFromPower(watts, hours, sched)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	kwh, _ := tariff.EstimateKWh(watts, hours)
	writeJSON(w, http.StatusOK, EstimateResponse{
		Schedule:     sched.Key,
		Watts:        watts,
		AssumedHours: hours,
		KWh:          kwh,
		Cost:         cost,
		Display:      tariff.FormatCost(cost),
		Rounded:      tariff.RoundCost(cost),
		Estimated:    true,
	})
}

// handleToday resolves today's cost from telemetry. With cached=true, or
// when the upstream fails, the latest stored snapshot is served instead.
func (s *server) handleToday(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("schedule")
	if _, err := s.scheduleFor(r); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	if r.URL.Query().Get("cached") == "true" {
		res, err := s.Billing.CachedTodayCost(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if res == nil {
			writeError(w, http.StatusNotFound, "no cached cost yet")
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	res, err := s.Billing.TodayCost(r.Context(), key)
	if err != nil {
		s.Logger.Warn("today cost failed", zap.String("schedule", key), zap.Error(err))
		if cached, cerr := s.Billing.CachedTodayCost(r.Context(), key); cerr == nil && cached != nil {
			writeJSON(w, http.StatusOK, cached)
			return
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleWeekly(w http.ResponseWriter, r *http.Request) {
	sched, err := s.scheduleFor(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	days, err := s.Billing.WeeklyCosts(r.Context(), sched.Key, time.Now())
	if err != nil {
		s.Logger.Warn("weekly costs failed", zap.String("schedule", sched.Key), zap.Error(err))
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, WeeklyResponse{
		Schedule:     sched.Key,
		AssumedHours: s.Billing.Config().WeeklyEstimateHours,
		Days:         days,
	})
}

func (s *server) handleLive(w http.ResponseWriter, r *http.Request) {
	if s.Feed == nil {
		writeJSON(w, http.StatusOK, LiveResponse{})
		return
	}
	resp := LiveResponse{Enabled: true, Connected: s.Feed.Connected()}
	if reading, ok := s.Feed.Latest(); ok {
		resp.Reading = &reading
	}
	writeJSON(w, http.StatusOK, resp)
}

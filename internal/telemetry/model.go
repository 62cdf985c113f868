package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Reading is one live sample pushed by the meter.
type Reading struct {
	Time    Timestamp `json:"time"`
	Current float64   `json:"current"` // mA
	Voltage float64   `json:"voltage"` // V
	Power   float64   `json:"power"`   // W
	KWh     *float64  `json:"kwh,omitempty"`
}

// Timestamp decodes either an RFC 3339 string or Unix milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			if ms, nerr := strconv.ParseInt(s, 10, 64); nerr == nil {
				t.Time = time.UnixMilli(ms).UTC()
				return nil
			}
			return fmt.Errorf("telemetry: parse timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("telemetry: parse timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// TodayConsumption is the data block of GET /today-consumption. Fields are
// optional; which ones are present depends on the backend deployment.
type TodayConsumption struct {
	Cost        *float64 `json:"cost,omitempty"`
	Consumption *float64 `json:"consumption,omitempty"`
	KWh         *float64 `json:"kwh,omitempty"`
	Power       *float64 `json:"power,omitempty"`
}

// WeekPoint is one day of GET /main-chart/data, oldest first.
type WeekPoint struct {
	Power float64  `json:"power"`
	KWh   *float64 `json:"kwh,omitempty"`
}

// Device is one meter known to the backend, from GET /devices.
type Device struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Online bool   `json:"online"`
}

type chartData struct {
	Week []WeekPoint `json:"week"`
}

// envelope is the response wrapper used by every backend endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error,omitempty"`
}

// Sample is the latest consumption information a Source can offer. At
// least one of Cost, Consumption or Power is set.
type Sample struct {
	// Cost is a cost the upstream computed itself.
	Cost *float64 `json:"cost,omitempty"`
	// Consumption is metered energy for the day in kWh.
	Consumption *float64 `json:"consumption,omitempty"`
	// Power is an instantaneous reading in watts.
	Power      *float64  `json:"power,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	Source     string    `json:"source"`
}

// Empty reports whether the sample carries no usable value.
func (s Sample) Empty() bool {
	return s.Cost == nil && s.Consumption == nil && s.Power == nil
}

// SampleFromToday maps the today-consumption block onto a Sample. A metered
// kwh total is used when consumption is absent.
func SampleFromToday(tc TodayConsumption, observedAt time.Time) Sample {
	s := Sample{
		Cost:        tc.Cost,
		Consumption: tc.Consumption,
		Power:       tc.Power,
		ObservedAt:  observedAt,
		Source:      "http",
	}
	if s.Consumption == nil {
		s.Consumption = tc.KWh
	}
	return s
}

// SampleFromReading maps a live reading onto a Sample. The reading's kwh is
// a cumulative meter value, not today's consumption, so only power is used.
func SampleFromReading(r Reading) Sample {
	p := r.Power
	return Sample{
		Power:      &p,
		ObservedAt: r.Time.Time,
		Source:     "live",
	}
}

package tariff

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Unbounded is the capacity of the trailing slab of a schedule.
var Unbounded = math.Inf(1)

var (
	// ErrInvalidInput is returned for negative or non-finite amounts and
	// empty schedules. Every validation error in this package wraps it.
	ErrInvalidInput = errors.New("tariff: invalid input")

	// ErrInvalidSchedule is returned for schedules whose slabs break the
	// ordering rules (non-positive capacity, negative rate, missing or
	// misplaced unbounded slab).
	ErrInvalidSchedule = fmt.Errorf("%w: invalid schedule", ErrInvalidInput)
)

// Slab is one band of a tariff schedule: up to Capacity units are charged
// at Rate per unit before consumption spills into the next slab.
type Slab struct {
	Capacity float64 `json:"capacity" yaml:"capacity"`
	Rate     float64 `json:"rate" yaml:"rate"`
}

// IsUnbounded reports whether the slab accepts any remaining consumption.
func (s Slab) IsUnbounded() bool {
	return math.IsInf(s.Capacity, 1)
}

// slabWire is the encoded form of a Slab. JSON has no infinity, so an
// unbounded capacity is written as null and a missing capacity decodes as
// unbounded.
type slabWire struct {
	Capacity *float64 `json:"capacity" yaml:"capacity"`
	Rate     float64  `json:"rate" yaml:"rate"`
}

func (s Slab) toWire() slabWire {
	w := slabWire{Rate: s.Rate}
	if !s.IsUnbounded() {
		c := s.Capacity
		w.Capacity = &c
	}
	return w
}

func (w slabWire) toSlab() Slab {
	s := Slab{Capacity: Unbounded, Rate: w.Rate}
	if w.Capacity != nil {
		s.Capacity = *w.Capacity
	}
	return s
}

func (s Slab) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toWire())
}

func (s *Slab) UnmarshalJSON(data []byte) error {
	var w slabWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = w.toSlab()
	return nil
}

func (s Slab) MarshalYAML() (interface{}, error) {
	return s.toWire(), nil
}

func (s *Slab) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w slabWire
	if err := unmarshal(&w); err != nil {
		return err
	}
	*s = w.toSlab()
	return nil
}

// Schedule is an ordered list of slabs, consumed lowest band first. A valid
// schedule always ends in exactly one unbounded slab.
type Schedule struct {
	Key      string `json:"key" yaml:"key"`
	Name     string `json:"name" yaml:"name"`
	Currency string `json:"currency,omitempty" yaml:"currency,omitempty"`
	Notes    string `json:"notes,omitempty" yaml:"notes,omitempty"`
	Slabs    []Slab `json:"slabs" yaml:"slabs"`
}

// Validate checks the structural invariants of the schedule.
func (s Schedule) Validate() error {
	if len(s.Slabs) == 0 {
		return fmt.Errorf("%w: empty schedule", ErrInvalidInput)
	}
	last := len(s.Slabs) - 1
	for i, slab := range s.Slabs {
		if math.IsNaN(slab.Rate) || math.IsInf(slab.Rate, 0) || slab.Rate < 0 {
			return fmt.Errorf("%w: slab %d has rate %v", ErrInvalidSchedule, i, slab.Rate)
		}
		if math.IsNaN(slab.Capacity) || slab.Capacity <= 0 {
			return fmt.Errorf("%w: slab %d has capacity %v", ErrInvalidSchedule, i, slab.Capacity)
		}
		if slab.IsUnbounded() && i != last {
			return fmt.Errorf("%w: unbounded slab %d is not last", ErrInvalidSchedule, i)
		}
	}
	if !s.Slabs[last].IsUnbounded() {
		return fmt.Errorf("%w: last slab must be unbounded", ErrInvalidSchedule)
	}
	return nil
}

// Flat returns a single-slab schedule charging rate for every unit.
func Flat(key string, rate float64) Schedule {
	return Schedule{
		Key:      key,
		Name:     fmt.Sprintf("Flat %s per unit", formatNumber(rate)),
		Currency: CurrencyBDT,
		Slabs:    []Slab{{Capacity: Unbounded, Rate: rate}},
	}
}

// SlabCharge is the part of a cost attributed to one slab.
type SlabCharge struct {
	Index  int     `json:"index"`
	From   float64 `json:"from"`
	To     float64 `json:"-"`
	Units  float64 `json:"units"`
	Rate   float64 `json:"rate"`
	Charge float64 `json:"charge"`
}

// MarshalJSON writes an open-ended upper bound as null.
func (c SlabCharge) MarshalJSON() ([]byte, error) {
	type alias SlabCharge
	out := struct {
		alias
		To *float64 `json:"to"`
	}{alias: alias(c)}
	if !math.IsInf(c.To, 1) {
		to := c.To
		out.To = &to
	}
	return json.Marshal(out)
}

package tariff

import (
	"fmt"
	"math"
)

// CalculateCost prices amount units against the schedule, filling each
// slab's capacity before spilling into the next. The result is not rounded.
func CalculateCost(s Schedule, amount float64) (float64, error) {
	if err := checkAmount("amount", amount); err != nil {
		return 0, err
	}
	if err := s.Validate(); err != nil {
		return 0, err
	}

	var cost float64
	remaining := amount
	for _, slab := range s.Slabs {
		if remaining <= 0 {
			break
		}
		here := math.Min(remaining, slab.Capacity)
		cost += here * slab.Rate
		remaining -= here
	}
	if math.IsInf(cost, 0) {
		return 0, errOverflow("cost")
	}
	return cost, nil
}

// Breakdown returns the per-slab split of CalculateCost. Slabs that receive
// no consumption are omitted; the charges sum to CalculateCost(s, amount).
func Breakdown(s Schedule, amount float64) ([]SlabCharge, error) {
	if err := checkAmount("amount", amount); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var out []SlabCharge
	var from float64
	remaining := amount
	for i, slab := range s.Slabs {
		if remaining <= 0 {
			break
		}
		here := math.Min(remaining, slab.Capacity)
		if math.IsInf(here*slab.Rate, 0) {
			return nil, errOverflow("cost")
		}
		out = append(out, SlabCharge{
			Index:  i,
			From:   from,
			To:     from + slab.Capacity,
			Units:  here,
			Rate:   slab.Rate,
			Charge: here * slab.Rate,
		})
		remaining -= here
		from += slab.Capacity
	}
	return out, nil
}

// EstimateKWh converts an instantaneous power reading into energy, assuming
// the load was drawn for hours.
func EstimateKWh(watts, hours float64) (float64, error) {
	if err := checkAmount("power", watts); err != nil {
		return 0, err
	}
	if err := checkAmount("hours", hours); err != nil {
		return 0, err
	}
	kwh := watts / 1000 * hours
	if math.IsInf(kwh, 0) {
		return 0, errOverflow("energy")
	}
	return kwh, nil
}

// EstimateDailyCostFromPower prices the energy a constant load of watts
// would use over assumedHours. The result is an approximation and must not
// be presented as billed consumption.
func EstimateDailyCostFromPower(watts, assumedHours float64, s Schedule) (float64, error) {
	kwh, err := EstimateKWh(watts, assumedHours)
	if err != nil {
		return 0, err
	}
	return CalculateCost(s, kwh)
}

func checkAmount(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalidInput, name)
	}
	if v < 0 {
		return fmt.Errorf("%w: %s %v is negative", ErrInvalidInput, name, v)
	}
	return nil
}

func errOverflow(what string) error {
	return fmt.Errorf("%w: %s overflows", ErrInvalidInput, what)
}

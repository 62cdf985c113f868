package tariff

import (
	"errors"
	"math"
	"testing"
)

func TestCalculateCost_SlabBoundaries(t *testing.T) {
	s := BDResidential2024()
	cases := []struct {
		amount float64
		want   float64
	}{
		{0, 0},
		{8, 36},
		{75, 337.5},
		{200, 1025.0},
		{300, 1675.0},
		{400, 2525.0},
		{450, 3075.0},
	}
	for _, tc := range cases {
		got, err := CalculateCost(s, tc.amount)
		if err != nil {
			t.Fatalf("CalculateCost(%v) unexpected error: %v", tc.amount, err)
		}
		if got != tc.want {
			t.Errorf("CalculateCost(%v) = %v, want %v", tc.amount, got, tc.want)
		}
	}
}

func TestCalculateCost_ZeroIsZero(t *testing.T) {
	schedules := []Schedule{
		BDResidential2024(),
		Flat(KeyFlat10, 10),
		{Key: "free", Slabs: []Slab{{Capacity: 50, Rate: 0}, {Capacity: Unbounded, Rate: 3}}},
	}
	for _, s := range schedules {
		got, err := CalculateCost(s, 0)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", s.Key, err)
		}
		if got != 0 {
			t.Errorf("%s: expected 0 for zero consumption, got %v", s.Key, got)
		}
	}
}

func TestCalculateCost_Monotonic(t *testing.T) {
	s := BDResidential2024()
	prev := -1.0
	for amount := 0.0; amount <= 600; amount += 0.25 {
		got, err := CalculateCost(s, amount)
		if err != nil {
			t.Fatalf("CalculateCost(%v) unexpected error: %v", amount, err)
		}
		if got < prev {
			t.Fatalf("cost decreased at %v: %v < %v", amount, got, prev)
		}
		prev = got
	}
}

func TestCalculateCost_AdditiveWithinSlab(t *testing.T) {
	s := BDResidential2024()
	cases := []struct {
		x, d, rate float64
	}{
		{10, 20, 4.5},
		{80, 100, 5.5},
		{210, 50, 6.5},
		{320, 60, 8.5},
		{500, 1000, 11.0},
	}
	for _, tc := range cases {
		base, err := CalculateCost(s, tc.x)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		next, err := CalculateCost(s, tc.x+tc.d)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if math.Abs(base+tc.rate*tc.d-next) > 1e-9 {
			t.Errorf("x=%v d=%v: %v + %v*%v != %v", tc.x, tc.d, base, tc.rate, tc.d, next)
		}
	}
}

func TestCalculateCost_FlatSchedule(t *testing.T) {
	got, err := CalculateCost(Flat(KeyFlat10, 10), 12.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 125 {
		t.Errorf("expected 125, got %v", got)
	}
}

func TestCalculateCost_InvalidAmount(t *testing.T) {
	s := BDResidential2024()
	for _, amount := range []float64{-1, -0.0001, math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := CalculateCost(s, amount); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("CalculateCost(%v): expected ErrInvalidInput, got %v", amount, err)
		}
	}
}

func TestCalculateCost_Overflow(t *testing.T) {
	s := BDResidential2024()
	if cost, err := CalculateCost(s, 1e308); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v (cost %v)", err, cost)
	}
	if _, err := Breakdown(s, 1e308); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Breakdown: expected ErrInvalidInput, got %v", err)
	}
	if _, err := EstimateKWh(1e308, 1e10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("EstimateKWh: expected ErrInvalidInput, got %v", err)
	}
}

func TestCalculateCost_EmptySchedule(t *testing.T) {
	_, err := CalculateCost(Schedule{Key: "empty"}, 10)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCalculateCost_ScheduleWithoutUnboundedSlabFails(t *testing.T) {
	s := Schedule{Key: "capped", Slabs: []Slab{{Capacity: 75, Rate: 4.5}, {Capacity: 125, Rate: 5.5}}}
	_, err := CalculateCost(s, 10)
	if !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidSchedule to wrap ErrInvalidInput")
	}
}

func TestCalculateCost_Deterministic(t *testing.T) {
	s := BDResidential2024()
	a, err := CalculateCost(s, 123.456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := CalculateCost(s, 123.456)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Float64bits(a) != math.Float64bits(b) {
		t.Fatalf("results differ: %v vs %v", a, b)
	}
}

func TestEstimateDailyCostFromPower(t *testing.T) {
	s := BDResidential2024()
	got, err := EstimateDailyCostFromPower(1000, 8, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := CalculateCost(s, 8)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}

	got24, err := EstimateDailyCostFromPower(1000, 24, s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got24 != 108 {
		t.Errorf("expected 24 kWh to cost 108, got %v", got24)
	}
}

func TestEstimateDailyCostFromPower_InvalidInput(t *testing.T) {
	s := BDResidential2024()
	if _, err := EstimateDailyCostFromPower(-5, 8, s); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("negative watts: expected ErrInvalidInput, got %v", err)
	}
	if _, err := EstimateDailyCostFromPower(100, math.NaN(), s); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("NaN hours: expected ErrInvalidInput, got %v", err)
	}
}

func TestBreakdown_SumsToCost(t *testing.T) {
	s := BDResidential2024()
	parts, err := Breakdown(s, 450)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 5 {
		t.Fatalf("expected 5 slab charges, got %d", len(parts))
	}
	var sum float64
	for _, p := range parts {
		sum += p.Charge
	}
	if sum != 3075 {
		t.Errorf("breakdown sums to %v, want 3075", sum)
	}
	last := parts[4]
	if last.Units != 50 || last.From != 400 || !math.IsInf(last.To, 1) {
		t.Errorf("unexpected last slab charge: %+v", last)
	}
}

func TestBreakdown_StopsAtConsumption(t *testing.T) {
	parts, err := Breakdown(BDResidential2024(), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("expected 2 slab charges, got %d: %+v", len(parts), parts)
	}
	if parts[1].Units != 25 {
		t.Errorf("expected 25 units in second slab, got %v", parts[1].Units)
	}
}

func TestBreakdown_ZeroHasNoCharges(t *testing.T) {
	parts, err := Breakdown(BDResidential2024(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parts) != 0 {
		t.Fatalf("expected no charges, got %+v", parts)
	}
}

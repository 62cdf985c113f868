package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bher20/powerdash/internal/alerting"
	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

func f(v float64) *float64 { return &v }

func newCatalog(t *testing.T, st storage.Storage) *Catalog {
	t.Helper()
	reg, err := tariff.NewRegistry([]tariff.Schedule{tariff.BDResidential2024(), tariff.Flat(tariff.KeyFlat10, 10)})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return NewCatalog(reg, st, nil)
}

func staticSource(s telemetry.Sample) telemetry.Source {
	return telemetry.SourceFunc(func(ctx context.Context) (telemetry.Sample, error) {
		return s, nil
	})
}

type weekFunc func(ctx context.Context) ([]telemetry.WeekPoint, error)

func (w weekFunc) WeekData(ctx context.Context) ([]telemetry.WeekPoint, error) { return w(ctx) }

type recordingNotifier struct {
	alerts []alerting.BudgetAlert
	err    error
}

func (n *recordingNotifier) SendBudgetAlert(ctx context.Context, a alerting.BudgetAlert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

func defaultConfig() Config {
	return Config{
		DefaultSchedule:     tariff.KeyBDResidential2024,
		TodayEstimateHours:  24,
		WeeklyEstimateHours: 8,
	}
}

func TestTodayCost_ResolutionOrder(t *testing.T) {
	cases := []struct {
		name      string
		sample    telemetry.Sample
		method    string
		cost      float64
		kwh       float64
		estimated bool
	}{
		{"reported cost wins", telemetry.Sample{Cost: f(123.4), Consumption: f(10), Power: f(500)}, MethodReported, 123.4, 10, false},
		{"metered consumption", telemetry.Sample{Consumption: f(200), Power: f(500)}, MethodMetered, 1025, 200, false},
		{"estimated from power", telemetry.Sample{Power: f(1000)}, MethodEstimated, 108, 24, true},
		{"zero power is a zero estimate", telemetry.Sample{Power: f(0)}, MethodEstimated, 0, 0, true},
		{"negative consumption falls through to power", telemetry.Sample{Consumption: f(-1), Power: f(1000)}, MethodEstimated, 108, 24, true},
		{"negative reported cost is ignored", telemetry.Sample{Cost: f(-5), Consumption: f(75)}, MethodMetered, 337.5, 75, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(defaultConfig(), newCatalog(t, nil), staticSource(tc.sample))
			res, err := svc.TodayCost(context.Background(), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Method != tc.method || res.Cost != tc.cost || res.KWh != tc.kwh || res.Estimated != tc.estimated {
				t.Fatalf("got method=%s cost=%v kwh=%v estimated=%v, want %s %v %v %v",
					res.Method, res.Cost, res.KWh, res.Estimated, tc.method, tc.cost, tc.kwh, tc.estimated)
			}
			if res.Display != tariff.FormatCost(tc.cost) {
				t.Fatalf("unexpected display %q", res.Display)
			}
		})
	}
}

func TestTodayCost_EstimateMatchesCalculator(t *testing.T) {
	cfg := defaultConfig()
	cfg.TodayEstimateHours = 8
	svc := NewService(cfg, newCatalog(t, nil), staticSource(telemetry.Sample{Power: f(1000)}))
	res, err := svc.TodayCost(context.Background(), tariff.KeyBDResidential2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := tariff.CalculateCost(tariff.BDResidential2024(), 8)
	if res.Cost != want || res.AssumedHours != 8 {
		t.Fatalf("expected %v over 8h, got %+v", want, res)
	}
}

func TestTodayCost_NoUsableReading(t *testing.T) {
	svc := NewService(defaultConfig(), newCatalog(t, nil), staticSource(telemetry.Sample{Consumption: f(-3)}))
	if _, err := svc.TodayCost(context.Background(), ""); !errors.Is(err, ErrNoUsableReading) {
		t.Fatalf("expected ErrNoUsableReading, got %v", err)
	}
}

func TestTodayCost_UnknownSchedule(t *testing.T) {
	svc := NewService(defaultConfig(), newCatalog(t, nil), staticSource(telemetry.Sample{Power: f(1)}))
	if _, err := svc.TodayCost(context.Background(), "nope"); !errors.Is(err, tariff.ErrUnknownSchedule) {
		t.Fatalf("expected ErrUnknownSchedule, got %v", err)
	}
}

func TestTodayCost_SourceError(t *testing.T) {
	boom := errors.New("backend down")
	src := telemetry.SourceFunc(func(ctx context.Context) (telemetry.Sample, error) {
		return telemetry.Sample{}, boom
	})
	svc := NewService(defaultConfig(), newCatalog(t, nil), src)
	if _, err := svc.TodayCost(context.Background(), ""); !errors.Is(err, boom) {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestTodayCost_SnapshotAndCache(t *testing.T) {
	st := storage.NewMemory()
	svc := NewService(defaultConfig(), newCatalog(t, st), staticSource(telemetry.Sample{Consumption: f(450)}), WithStorage(st))

	cached, err := svc.CachedTodayCost(context.Background(), "")
	if err != nil || cached != nil {
		t.Fatalf("expected no cached cost yet, got %+v %v", cached, err)
	}
	if _, err := svc.TodayCost(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cached, err = svc.CachedTodayCost(context.Background(), "")
	if err != nil || cached == nil {
		t.Fatalf("expected cached cost, got %+v %v", cached, err)
	}
	if !cached.Cached || cached.Cost != 3075 || cached.Method != MethodMetered || cached.Rounded != 3075 {
		t.Fatalf("unexpected cached result: %+v", cached)
	}
}

func TestWeeklyCosts(t *testing.T) {
	week := weekFunc(func(ctx context.Context) ([]telemetry.WeekPoint, error) {
		return []telemetry.WeekPoint{{Power: 1000}, {Power: 0}, {Power: 2500}, {Power: 50, KWh: f(75)}}, nil
	})
	svc := NewService(defaultConfig(), newCatalog(t, nil), nil, WithWeekSource(week))

	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) // Thursday
	days, err := svc.WeeklyCosts(context.Background(), "", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []DayCost{
		{Day: "Mon", Date: "2024-04-29", Power: 1000, KWh: 8, Cost: 36, Rounded: 36, Estimated: true},
		{Day: "Tue", Date: "2024-04-30", Power: 0, KWh: 0, Cost: 0, Rounded: 0, Estimated: true},
		{Day: "Wed", Date: "2024-05-01", Power: 2500, KWh: 20, Cost: 90, Rounded: 90, Estimated: true},
		{Day: "Thu", Date: "2024-05-02", Power: 50, KWh: 75, Cost: 337.5, Rounded: 338, Estimated: false},
	}
	if len(days) != len(want) {
		t.Fatalf("expected %d days, got %d", len(want), len(days))
	}
	for i := range want {
		if days[i] != want[i] {
			t.Errorf("day %d = %+v, want %+v", i, days[i], want[i])
		}
	}
}

func TestWeeklyCosts_FlatSchedule(t *testing.T) {
	week := weekFunc(func(ctx context.Context) ([]telemetry.WeekPoint, error) {
		return []telemetry.WeekPoint{{Power: 1500}}, nil
	})
	svc := NewService(defaultConfig(), newCatalog(t, nil), nil, WithWeekSource(week))
	days, err := svc.WeeklyCosts(context.Background(), tariff.KeyFlat10, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if days[0].Cost != 120 {
		t.Fatalf("expected 12 kWh at 10/unit, got %+v", days[0])
	}
}

func TestCheckBudget(t *testing.T) {
	st := storage.NewMemory()
	n := &recordingNotifier{}
	cfg := defaultConfig()
	cfg.DailyBudget = 100
	svc := NewService(cfg, newCatalog(t, st), nil, WithStorage(st), WithNotifiers(n))

	under := &TodayCost{Schedule: "bd-residential-2024", Cost: 99}
	if fired, err := svc.CheckBudget(context.Background(), under); fired || err != nil {
		t.Fatalf("expected no alert under budget, got %v %v", fired, err)
	}

	over := &TodayCost{Schedule: "bd-residential-2024", Method: MethodMetered, KWh: 30, Cost: 135}
	fired, err := svc.CheckBudget(context.Background(), over)
	if !fired || err != nil {
		t.Fatalf("expected alert, got %v %v", fired, err)
	}
	if len(n.alerts) != 1 || n.alerts[0].Budget != 100 || n.alerts[0].Overspend() != 35 {
		t.Fatalf("unexpected alerts: %+v", n.alerts)
	}

	_ = st.SetSetting(context.Background(), storage.SettingDailyBudget, "500")
	if fired, _ := svc.CheckBudget(context.Background(), over); fired {
		t.Fatalf("expected stored budget to override the configured one")
	}
}

func TestCheckBudget_NotifierError(t *testing.T) {
	n := &recordingNotifier{err: errors.New("webhook down")}
	cfg := defaultConfig()
	cfg.DailyBudget = 1
	svc := NewService(cfg, newCatalog(t, nil), nil, WithNotifiers(n, &recordingNotifier{}))
	fired, err := svc.CheckBudget(context.Background(), &TodayCost{Cost: 2})
	if !fired || err == nil {
		t.Fatalf("expected alert with joined error, got %v %v", fired, err)
	}
}

func TestCheckBudget_OncePerDay(t *testing.T) {
	st := storage.NewMemory()
	n := &recordingNotifier{}
	cfg := defaultConfig()
	cfg.DailyBudget = 100
	svc := NewService(cfg, newCatalog(t, st), nil, WithStorage(st), WithNotifiers(n))
	day := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	over := &TodayCost{Schedule: tariff.KeyBDResidential2024, Cost: 150}
	for i := 0; i < 5; i++ {
		if _, err := svc.CheckBudget(context.Background(), over); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(n.alerts) != 1 {
		t.Fatalf("expected one alert on the same day, got %d", len(n.alerts))
	}
	if v, _ := st.GetSetting(context.Background(), storage.SettingBudgetAlertPrefix+tariff.KeyBDResidential2024); v != "2024-05-02" {
		t.Fatalf("expected alert marker for 2024-05-02, got %q", v)
	}

	day = day.Add(24 * time.Hour)
	fired, err := svc.CheckBudget(context.Background(), over)
	if !fired || err != nil || len(n.alerts) != 2 {
		t.Fatalf("expected a new alert the next day, got %v %v (%d alerts)", fired, err, len(n.alerts))
	}
}

func TestCheckBudget_RetriesWhenAllNotifiersFail(t *testing.T) {
	n := &recordingNotifier{err: errors.New("smtp down")}
	cfg := defaultConfig()
	cfg.DailyBudget = 1
	svc := NewService(cfg, newCatalog(t, nil), nil, WithNotifiers(n))

	res := &TodayCost{Schedule: tariff.KeyFlat10, Cost: 2}
	_, _ = svc.CheckBudget(context.Background(), res)
	n.err = nil
	fired, err := svc.CheckBudget(context.Background(), res)
	if !fired || err != nil || len(n.alerts) != 2 {
		t.Fatalf("expected the failed alert to be retried, got %v %v (%d attempts)", fired, err, len(n.alerts))
	}
	if fired, _ := svc.CheckBudget(context.Background(), res); fired {
		t.Fatalf("expected no further alert once delivered")
	}
}

func TestCachedTodayCost_IgnoresEarlierDays(t *testing.T) {
	st := storage.NewMemory()
	svc := NewService(defaultConfig(), newCatalog(t, st), staticSource(telemetry.Sample{Consumption: f(100)}), WithStorage(st))
	day := time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	if _, err := svc.TodayCost(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached, _ := svc.CachedTodayCost(context.Background(), ""); cached == nil {
		t.Fatalf("expected today's snapshot to be served")
	}

	day = day.Add(2 * time.Hour)
	cached, err := svc.CachedTodayCost(context.Background(), "")
	if err != nil || cached != nil {
		t.Fatalf("expected yesterday's snapshot to be ignored, got %+v %v", cached, err)
	}
}

func TestPruneSnapshots(t *testing.T) {
	st := storage.NewMemory()
	cfg := defaultConfig()
	cfg.SnapshotRetention = 48 * time.Hour
	svc := NewService(cfg, newCatalog(t, st), staticSource(telemetry.Sample{Consumption: f(10)}), WithStorage(st))
	day := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	for i := 0; i < 4; i++ {
		if _, err := svc.TodayCost(context.Background(), ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		day = day.Add(24 * time.Hour)
	}
	// Snapshots from May 1-4; now is May 5 noon, cutoff May 3 noon.
	n, err := svc.PruneSnapshots(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("expected 2 pruned, got %d %v", n, err)
	}
	latest, err := st.LatestCostSnapshot(context.Background(), tariff.KeyBDResidential2024)
	if err != nil || latest == nil || !latest.CreatedAt.Equal(time.Date(2024, 5, 4, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected the May 4 snapshot to survive, got %+v %v", latest, err)
	}
}

func TestTodayCost_MeteredFirstWithLiveFeed(t *testing.T) {
	metered := staticSource(telemetry.Sample{Source: "http", Consumption: f(75)})
	powerOnly := staticSource(telemetry.Sample{Source: "http", Power: f(2000)})
	feed := telemetry.NewLiveFeed("ws://meter.invalid/ws")
	feed.Observe(telemetry.Reading{Power: 1000})
	stale := telemetry.SourceFunc(func(ctx context.Context) (telemetry.Sample, error) {
		return telemetry.Sample{}, telemetry.ErrNoSample
	})

	cases := []struct {
		name   string
		src    telemetry.Source
		method string
		cost   float64
	}{
		{"metered consumption beats a fresh live reading", telemetry.MeteredFirst{Metered: metered, Live: feed}, MethodMetered, 337.5},
		{"metered consumption with a stale live feed", telemetry.MeteredFirst{Metered: metered, Live: stale}, MethodMetered, 337.5},
		{"fresh live power replaces http power", telemetry.MeteredFirst{Metered: powerOnly, Live: feed}, MethodEstimated, 108},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(defaultConfig(), newCatalog(t, nil), tc.src)
			res, err := svc.TodayCost(context.Background(), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Method != tc.method || res.Cost != tc.cost {
				t.Fatalf("got method=%s cost=%v, want %s %v", res.Method, res.Cost, tc.method, tc.cost)
			}
		})
	}
}

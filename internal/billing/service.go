package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/alerting"
	"github.com/bher20/powerdash/internal/metrics"
	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/tariff"
	"github.com/bher20/powerdash/internal/telemetry"
)

// ErrNoUsableReading is returned when the source offered no cost,
// consumption or power value that could be priced.
var ErrNoUsableReading = errors.New("billing: no usable reading")

// How a cost was obtained.
const (
	MethodReported  = "reported"
	MethodMetered   = "metered"
	MethodEstimated = "estimated"
)

// Config holds the pricing assumptions of the service.
type Config struct {
	DefaultSchedule string
	// TodayEstimateHours is used when today's cost comes from a power reading.
	TodayEstimateHours float64
	// WeeklyEstimateHours is used for each day of the weekly series.
	WeeklyEstimateHours float64
	// DailyBudget enables budget alerts when positive.
	DailyBudget float64
	// SnapshotRetention is how long stored cost snapshots are kept.
	SnapshotRetention time.Duration
}

// DefaultSnapshotRetention applies when Config.SnapshotRetention is unset.
const DefaultSnapshotRetention = 7 * 24 * time.Hour

const dateLayout = "2006-01-02"

// WeekSource returns per-day readings, oldest first.
type WeekSource interface {
	WeekData(ctx context.Context) ([]telemetry.WeekPoint, error)
}

// Notifier delivers budget alerts.
type Notifier interface {
	SendBudgetAlert(ctx context.Context, alert alerting.BudgetAlert) error
}

// TodayCost is the resolved cost of today's consumption.
type TodayCost struct {
	Schedule     string              `json:"schedule"`
	Method       string              `json:"method"`
	Source       string              `json:"source"`
	KWh          float64             `json:"kwh"`
	Cost         float64             `json:"cost"`
	Display      string              `json:"display"`
	Rounded      int64               `json:"rounded"`
	Estimated    bool                `json:"estimated"`
	AssumedHours float64             `json:"assumed_hours,omitempty"`
	ObservedAt   time.Time           `json:"observed_at"`
	Breakdown    []tariff.SlabCharge `json:"breakdown,omitempty"`
	Cached       bool                `json:"cached,omitempty"`
}

// DayCost is one point of the weekly series.
type DayCost struct {
	Day       string  `json:"day"`
	Date      string  `json:"date"`
	Power     float64 `json:"power"`
	KWh       float64 `json:"kwh"`
	Cost      float64 `json:"cost"`
	Rounded   int64   `json:"rounded"`
	Estimated bool    `json:"estimated"`
}

// Service prices telemetry against tariff schedules.
type Service struct {
	cfg       Config
	catalog   *Catalog
	source    telemetry.Source
	week      WeekSource
	store     storage.Storage
	notifiers []Notifier
	logger    *zap.Logger
	now       func() time.Time

	// alerted holds the date of the last budget alert per schedule.
	alertMu sync.Mutex
	alerted map[string]string
}

// Option configures a Service.
type Option func(*Service)

func WithStorage(st storage.Storage) Option {
	return func(s *Service) { s.store = st }
}

func WithWeekSource(w WeekSource) Option {
	return func(s *Service) { s.week = w }
}

func WithNotifiers(n ...Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(cfg Config, catalog *Catalog, source telemetry.Source, opts ...Option) *Service {
	if cfg.DefaultSchedule == "" {
		cfg.DefaultSchedule = tariff.KeyBDResidential2024
	}
	if cfg.SnapshotRetention <= 0 {
		cfg.SnapshotRetention = DefaultSnapshotRetention
	}
	s := &Service{
		cfg:     cfg,
		catalog: catalog,
		source:  source,
		logger:  zap.NewNop(),
		now:     time.Now,
		alerted: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the schedules the service prices against.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Config returns the pricing assumptions.
func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) schedule(key string) (tariff.Schedule, error) {
	if key == "" {
		key = s.cfg.DefaultSchedule
	}
	return s.catalog.Get(key)
}

// TodayCost pulls the latest sample and resolves today's cost. A cost the
// upstream reported wins, then metered consumption priced on the schedule,
// then an estimate from instantaneous power over TodayEstimateHours.
func (s *Service) TodayCost(ctx context.Context, scheduleKey string) (*TodayCost, error) {
	sched, err := s.schedule(scheduleKey)
	if err != nil {
		return nil, err
	}
	if s.source == nil {
		return nil, fmt.Errorf("%w: no telemetry source configured", ErrNoUsableReading)
	}
	sample, err := s.source.LatestConsumption(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.resolve(sched, sample)
	if err != nil {
		return nil, err
	}
	metrics.RecordCost(res.Schedule, res.Method, res.KWh, res.Cost)
	s.saveSnapshot(ctx, res)
	return res, nil
}

func (s *Service) resolve(sched tariff.Schedule, sample telemetry.Sample) (*TodayCost, error) {
	observed := sample.ObservedAt
	if observed.IsZero() {
		observed = s.now()
	}
	res := &TodayCost{
		Schedule:   sched.Key,
		Source:     sample.Source,
		ObservedAt: observed,
	}

	if sample.Cost != nil && usable(*sample.Cost) {
		res.Method = MethodReported
		res.Cost = *sample.Cost
		if sample.Consumption != nil && usable(*sample.Consumption) {
			res.KWh = *sample.Consumption
		}
		return finish(res), nil
	}

	if sample.Consumption != nil {
		kwh := *sample.Consumption
		cost, err := tariff.CalculateCost(sched, kwh)
		if err == nil {
			res.Method = MethodMetered
			res.KWh = kwh
			res.Cost = cost
			res.Breakdown, _ = tariff.Breakdown(sched, kwh)
			return finish(res), nil
		}
		s.logger.Warn("ignoring unusable consumption", zap.Float64("consumption", kwh), zap.Error(err))
	}

	if sample.Power != nil {
		watts := *sample.Power
		hours := s.cfg.TodayEstimateHours
		cost, err := tariff.EstimateDailyCostFromPower(watts, hours, sched)
		if err == nil {
			kwh, _ := tariff.EstimateKWh(watts, hours)
			res.Method = MethodEstimated
			res.Estimated = true
			res.AssumedHours = hours
			res.KWh = kwh
			res.Cost = cost
			res.Breakdown, _ = tariff.Breakdown(sched, kwh)
			return finish(res), nil
		}
		s.logger.Warn("ignoring unusable power reading", zap.Float64("power", watts), zap.Error(err))
	}

	return nil, ErrNoUsableReading
}

func finish(res *TodayCost) *TodayCost {
	res.Display = tariff.FormatCost(res.Cost)
	res.Rounded = tariff.RoundCost(res.Cost)
	return res
}

func usable(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (s *Service) saveSnapshot(ctx context.Context, res *TodayCost) {
	if s.store == nil {
		return
	}
	snap := storage.CostSnapshot{
		ID:         uuid.NewString(),
		Schedule:   res.Schedule,
		Method:     res.Method,
		Source:     res.Source,
		KWh:        res.KWh,
		Cost:       res.Cost,
		Estimated:  res.Estimated,
		ObservedAt: res.ObservedAt,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.SaveCostSnapshot(ctx, snap); err != nil {
		s.logger.Warn("failed to save cost snapshot", zap.String("schedule", res.Schedule), zap.Error(err))
	}
}

// CachedTodayCost returns the most recent snapshot stored today for the
// schedule, or nil when there is none.
func (s *Service) CachedTodayCost(ctx context.Context, scheduleKey string) (*TodayCost, error) {
	if scheduleKey == "" {
		scheduleKey = s.cfg.DefaultSchedule
	}
	if s.store == nil {
		return nil, nil
	}
	snap, err := s.store.LatestCostSnapshot(ctx, scheduleKey)
	if err != nil || snap == nil {
		return nil, err
	}
	now := s.now()
	if snap.CreatedAt.In(now.Location()).Format(dateLayout) != now.Format(dateLayout) {
		return nil, nil
	}
	res := &TodayCost{
		Schedule:   snap.Schedule,
		Method:     snap.Method,
		Source:     snap.Source,
		KWh:        snap.KWh,
		Cost:       snap.Cost,
		Estimated:  snap.Estimated,
		ObservedAt: snap.ObservedAt,
		Cached:     true,
	}
	if res.Estimated {
		res.AssumedHours = s.cfg.TodayEstimateHours
	}
	return finish(res), nil
}

// WeeklyCosts prices each day of the upstream week series. A day with a
// metered kwh uses it; otherwise its power is assumed to run for
// WeeklyEstimateHours. Day labels count back from now, the last point being
// today.
func (s *Service) WeeklyCosts(ctx context.Context, scheduleKey string, now time.Time) ([]DayCost, error) {
	sched, err := s.schedule(scheduleKey)
	if err != nil {
		return nil, err
	}
	if s.week == nil {
		return nil, fmt.Errorf("%w: no week source configured", ErrNoUsableReading)
	}
	points, err := s.week.WeekData(ctx)
	if err != nil {
		return nil, err
	}
	if now.IsZero() {
		now = s.now()
	}

	out := make([]DayCost, 0, len(points))
	for i, p := range points {
		date := now.AddDate(0, 0, -(len(points) - 1 - i))
		day := DayCost{
			Day:   date.Format("Mon"),
			Date:  date.Format("2006-01-02"),
			Power: p.Power,
		}
		if p.KWh != nil && usable(*p.KWh) {
			day.KWh = *p.KWh
		} else {
			watts := p.Power
			if !usable(watts) {
				watts = 0
			}
			day.KWh, _ = tariff.EstimateKWh(watts, s.cfg.WeeklyEstimateHours)
			day.Estimated = true
		}
		cost, err := tariff.CalculateCost(sched, day.KWh)
		if err != nil {
			return nil, fmt.Errorf("billing: day %s: %w", day.Date, err)
		}
		day.Cost = cost
		day.Rounded = tariff.RoundCost(cost)
		day.KWh = math.Round(day.KWh*100) / 100
		out = append(out, day)
	}
	return out, nil
}

// CheckBudget dispatches a budget alert to every notifier when res is over
// the configured daily budget. At most one alert is raised per schedule and
// day; a run in which every notifier failed is retried on the next check.
// It reports whether an alert was raised.
func (s *Service) CheckBudget(ctx context.Context, res *TodayCost) (bool, error) {
	if res == nil {
		return false, nil
	}
	budget := s.DailyBudget(ctx)
	if budget <= 0 || res.Cost <= budget {
		return false, nil
	}
	now := s.now()
	today := now.Format(dateLayout)
	if s.lastAlertDate(ctx, res.Schedule) == today {
		return false, nil
	}

	alert := alerting.BudgetAlert{
		Schedule:  res.Schedule,
		Method:    res.Method,
		KWh:       res.KWh,
		Cost:      res.Cost,
		Budget:    budget,
		Estimated: res.Estimated,
		Timestamp: now.UTC(),
	}
	var errs []error
	for _, n := range s.notifiers {
		if err := n.SendBudgetAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	if len(s.notifiers) == 0 || len(errs) < len(s.notifiers) {
		s.markAlerted(ctx, res.Schedule, today)
	}
	return true, errors.Join(errs...)
}

func (s *Service) lastAlertDate(ctx context.Context, schedule string) string {
	if s.store != nil {
		v, err := s.store.GetSetting(ctx, storage.SettingBudgetAlertPrefix+schedule)
		if err == nil {
			return v
		}
		s.logger.Warn("read budget alert marker failed", zap.String("schedule", schedule), zap.Error(err))
	}
	s.alertMu.Lock()
	defer s.alertMu.Unlock()
	return s.alerted[schedule]
}

func (s *Service) markAlerted(ctx context.Context, schedule, date string) {
	s.alertMu.Lock()
	s.alerted[schedule] = date
	s.alertMu.Unlock()
	if s.store == nil {
		return
	}
	if err := s.store.SetSetting(ctx, storage.SettingBudgetAlertPrefix+schedule, date); err != nil {
		s.logger.Warn("store budget alert marker failed", zap.String("schedule", schedule), zap.Error(err))
	}
}

// PruneSnapshots removes snapshots older than the retention period.
func (s *Service) PruneSnapshots(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, nil
	}
	n, err := s.store.PruneCostSnapshots(ctx, s.now().Add(-s.cfg.SnapshotRetention))
	if err != nil {
		return 0, fmt.Errorf("billing: prune snapshots: %w", err)
	}
	return n, nil
}

// DailyBudget returns the alert threshold. A daily_budget setting in
// storage overrides the configured value.
func (s *Service) DailyBudget(ctx context.Context) float64 {
	if s.store != nil {
		v, err := s.store.GetSetting(ctx, storage.SettingDailyBudget)
		if err == nil && v != "" {
			if f, perr := strconv.ParseFloat(v, 64); perr == nil && f >= 0 {
				return f
			}
			s.logger.Warn("ignoring invalid daily_budget setting", zap.String("value", v))
		}
	}
	return s.cfg.DailyBudget
}

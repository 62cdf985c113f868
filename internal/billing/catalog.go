package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bher20/powerdash/internal/storage"
	"github.com/bher20/powerdash/internal/tariff"
)

// Catalog is the set of schedules the service can price against: the
// built-in and file-loaded schedules held in a tariff.Registry, with writes
// persisted to storage so they survive a restart.
type Catalog struct {
	reg    *tariff.Registry
	store  storage.Storage
	logger *zap.Logger
}

// NewCatalog wraps reg. store may be nil, in which case writes stay in memory.
func NewCatalog(reg *tariff.Registry, store storage.Storage, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{reg: reg, store: store, logger: logger}
}

// Load overlays persisted schedules onto the registry. Records that no
// longer validate are skipped.
func (c *Catalog) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	recs, err := c.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("billing: load schedules: %w", err)
	}
	for _, rec := range recs {
		s, err := scheduleFromRecord(rec)
		if err == nil {
			err = c.reg.Put(s)
		}
		if err != nil {
			c.logger.Warn("skipping stored schedule", zap.String("schedule", rec.Key), zap.Error(err))
			continue
		}
	}
	return nil
}

func (c *Catalog) Get(key string) (tariff.Schedule, error) {
	return c.reg.Get(key)
}

func (c *Catalog) List() []tariff.Schedule {
	return c.reg.List()
}

// Put validates s, persists it and then registers it, so a failed write
// leaves the served schedules unchanged.
func (c *Catalog) Put(ctx context.Context, s tariff.Schedule) error {
	if s.Key == "" {
		return fmt.Errorf("%w: schedule key is empty", tariff.ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return fmt.Errorf("schedule %q: %w", s.Key, err)
	}
	if c.store != nil {
		rec, err := recordFromSchedule(s)
		if err != nil {
			return err
		}
		if err := c.store.UpsertSchedule(ctx, rec); err != nil {
			return fmt.Errorf("billing: persist schedule %q: %w", s.Key, err)
		}
	}
	return c.reg.Put(s)
}

// Delete removes key from the registry and from storage and reports
// whether it existed in either.
func (c *Catalog) Delete(ctx context.Context, key string) (bool, error) {
	found := c.reg.Delete(key)
	if c.store == nil {
		return found, nil
	}
	stored, err := c.store.DeleteSchedule(ctx, key)
	if err != nil {
		return found, fmt.Errorf("billing: delete schedule %q: %w", key, err)
	}
	return found || stored, nil
}

func recordFromSchedule(s tariff.Schedule) (storage.ScheduleRecord, error) {
	slabs, err := json.Marshal(s.Slabs)
	if err != nil {
		return storage.ScheduleRecord{}, fmt.Errorf("billing: encode slabs: %w", err)
	}
	return storage.ScheduleRecord{
		Key:       s.Key,
		Name:      s.Name,
		Currency:  s.Currency,
		Notes:     s.Notes,
		Slabs:     slabs,
		UpdatedAt: time.Now().UTC(),
	}, nil
}

func scheduleFromRecord(rec storage.ScheduleRecord) (tariff.Schedule, error) {
	s := tariff.Schedule{
		Key:      rec.Key,
		Name:     rec.Name,
		Currency: rec.Currency,
		Notes:    rec.Notes,
	}
	if err := json.Unmarshal(rec.Slabs, &s.Slabs); err != nil {
		return tariff.Schedule{}, fmt.Errorf("billing: decode slabs of %q: %w", rec.Key, err)
	}
	return s, nil
}

package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStorage is an in-memory Storage implementation suitable for tests
// and local development. Nothing survives a restart.
type MemoryStorage struct {
	mu        sync.RWMutex
	schedules map[string]ScheduleRecord
	snapshots []CostSnapshot
	settings  map[string]string
	jobs      map[string]ScheduledJob
	tokens    map[string]Token
	rules     []CasbinRule
	nextRule  uint
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		schedules: make(map[string]ScheduleRecord),
		settings:  make(map[string]string),
		jobs:      make(map[string]ScheduledJob),
		tokens:    make(map[string]Token),
	}
}

// Schedules

func (m *MemoryStorage) ListSchedules(ctx context.Context) ([]ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ScheduleRecord, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, copySchedule(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStorage) GetSchedule(ctx context.Context, key string) (*ScheduleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[key]
	if !ok {
		return nil, nil
	}
	cp := copySchedule(s)
	return &cp, nil
}

func (m *MemoryStorage) UpsertSchedule(ctx context.Context, s ScheduleRecord) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.Key] = copySchedule(s)
	return nil
}

func (m *MemoryStorage) DeleteSchedule(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[key]; !ok {
		return false, nil
	}
	delete(m.schedules, key)
	return true, nil
}

func copySchedule(s ScheduleRecord) ScheduleRecord {
	s.Slabs = append([]byte(nil), s.Slabs...)
	return s
}

// Cost snapshots

func (m *MemoryStorage) SaveCostSnapshot(ctx context.Context, snap CostSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *MemoryStorage) LatestCostSnapshot(ctx context.Context, schedule string) (*CostSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *CostSnapshot
	for i := range m.snapshots {
		s := m.snapshots[i]
		if s.Schedule != schedule {
			continue
		}
		if latest == nil || !s.CreatedAt.Before(latest.CreatedAt) {
			cp := s
			latest = &cp
		}
	}
	return latest, nil
}

func (m *MemoryStorage) PruneCostSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.snapshots[:0]
	for _, s := range m.snapshots {
		if !s.CreatedAt.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	removed := int64(len(m.snapshots) - len(kept))
	m.snapshots = kept
	return removed, nil
}

func (m *MemoryStorage) ListCostSnapshots(ctx context.Context, schedule string, limit int) ([]CostSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CostSnapshot
	for _, s := range m.snapshots {
		if schedule == "" || s.Schedule == schedule {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Settings

func (m *MemoryStorage) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings[key], nil
}

func (m *MemoryStorage) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

// Jobs

func (m *MemoryStorage) UpdateScheduledJob(ctx context.Context, name string, startedAt time.Time, duration time.Duration, success bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[name] = ScheduledJob{
		Name:           name,
		LastRunAt:      startedAt,
		LastDurationMs: duration.Milliseconds(),
		LastSuccess:    success,
		LastError:      errMsg,
	}
	return nil
}

func (m *MemoryStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

// Tokens

func (m *MemoryStorage) CreateToken(ctx context.Context, t Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[t.ID] = t
	return nil
}

func (m *MemoryStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tokens {
		if t.TokenHash == hash {
			cp := t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) ListTokens(ctx context.Context) ([]Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStorage) DeleteToken(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, id)
	return nil
}

func (m *MemoryStorage) UpdateTokenLastUsed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok {
		return nil
	}
	t.LastUsedAt = &at
	m.tokens[id] = t
	return nil
}

// Casbin

func (m *MemoryStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]CasbinRule(nil), m.rules...), nil
}

func (m *MemoryStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRule++
	rule.ID = m.nextRule
	m.rules = append(m.rules, rule)
	return nil
}

func (m *MemoryStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rules[:0]
	for _, r := range m.rules {
		if sameRule(r, rule) {
			continue
		}
		kept = append(kept, r)
	}
	m.rules = kept
	return nil
}

func sameRule(a, b CasbinRule) bool {
	return a.PType == b.PType && a.V0 == b.V0 && a.V1 == b.V1 && a.V2 == b.V2 &&
		a.V3 == b.V3 && a.V4 == b.V4 && a.V5 == b.V5
}

func (m *MemoryStorage) Ping(ctx context.Context) error { return ctx.Err() }

func (m *MemoryStorage) Close() error { return nil }

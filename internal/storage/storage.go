package storage

import (
	"context"
	"time"
)

// Storage abstracts persistence for schedules, cost snapshots, settings,
// job status and API credentials. Getters return (nil, nil) when the
// record does not exist.
type Storage interface {
	// Schedules
	ListSchedules(ctx context.Context) ([]ScheduleRecord, error)
	GetSchedule(ctx context.Context, key string) (*ScheduleRecord, error)
	UpsertSchedule(ctx context.Context, s ScheduleRecord) error
	DeleteSchedule(ctx context.Context, key string) (bool, error)

	// Cost snapshots
	SaveCostSnapshot(ctx context.Context, snap CostSnapshot) error
	LatestCostSnapshot(ctx context.Context, schedule string) (*CostSnapshot, error)
	ListCostSnapshots(ctx context.Context, schedule string, limit int) ([]CostSnapshot, error)
	// PruneCostSnapshots deletes snapshots created before cutoff and
	// returns how many were removed.
	PruneCostSnapshots(ctx context.Context, cutoff time.Time) (int64, error)

	// Settings
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	// Jobs
	UpdateScheduledJob(ctx context.Context, name string, startedAt time.Time, duration time.Duration, success bool, errMsg string) error
	GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error)

	// Tokens
	CreateToken(ctx context.Context, t Token) error
	GetTokenByHash(ctx context.Context, hash string) (*Token, error)
	ListTokens(ctx context.Context) ([]Token, error)
	DeleteToken(ctx context.Context, id string) error
	UpdateTokenLastUsed(ctx context.Context, id string, at time.Time) error

	// Casbin
	LoadCasbinRules(ctx context.Context) ([]CasbinRule, error)
	AddCasbinRule(ctx context.Context, rule CasbinRule) error
	RemoveCasbinRule(ctx context.Context, rule CasbinRule) error

	Ping(ctx context.Context) error
	// Close releases any resources (no-op for in-memory).
	Close() error
}

const defaultSnapshotLimit = 100

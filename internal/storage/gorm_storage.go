package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStorage struct {
	db *gorm.DB
}

func NewGormStorage(driver, dsn string) (*GormStorage, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		if dsn == "" {
			dsn = "postgres://localhost:5432/powerdash?sslmode=disable"
		}
		dialector = postgres.Open(dsn)
	case "sqlite":
		if dsn == "" {
			dsn = "powerdash.db"
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	return &GormStorage{db: db}, nil
}

func (s *GormStorage) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&ScheduleRecord{},
		&CostSnapshot{},
		&Setting{},
		&ScheduledJob{},
		&Token{},
		&CasbinRule{},
	)
}

// Schedules

func (s *GormStorage) ListSchedules(ctx context.Context) ([]ScheduleRecord, error) {
	var out []ScheduleRecord
	result := s.db.WithContext(ctx).Order("key").Find(&out)
	return out, result.Error
}

func (s *GormStorage) GetSchedule(ctx context.Context, key string) (*ScheduleRecord, error) {
	var rec ScheduleRecord
	result := s.db.WithContext(ctx).First(&rec, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

func (s *GormStorage) UpsertSchedule(ctx context.Context, rec ScheduleRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		UpdateAll: true,
	}).Create(&rec).Error
}

func (s *GormStorage) DeleteSchedule(ctx context.Context, key string) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&ScheduleRecord{}, "key = ?", key)
	return result.RowsAffected > 0, result.Error
}

// Cost snapshots

func (s *GormStorage) SaveCostSnapshot(ctx context.Context, snap CostSnapshot) error {
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(&snap).Error
}

func (s *GormStorage) LatestCostSnapshot(ctx context.Context, schedule string) (*CostSnapshot, error) {
	var snap CostSnapshot
	result := s.db.WithContext(ctx).Order("created_at desc").First(&snap, "schedule = ?", schedule)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &snap, nil
}

func (s *GormStorage) PruneCostSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&CostSnapshot{})
	return result.RowsAffected, result.Error
}

func (s *GormStorage) ListCostSnapshots(ctx context.Context, schedule string, limit int) ([]CostSnapshot, error) {
	if limit <= 0 {
		limit = defaultSnapshotLimit
	}
	q := s.db.WithContext(ctx).Order("created_at desc").Limit(limit)
	if schedule != "" {
		q = q.Where("schedule = ?", schedule)
	}
	var out []CostSnapshot
	return out, q.Find(&out).Error
}

// Settings

func (s *GormStorage) GetSetting(ctx context.Context, key string) (string, error) {
	var setting Setting
	result := s.db.WithContext(ctx).First(&setting, "key = ?", key)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", result.Error
	}
	return setting.Value, nil
}

func (s *GormStorage) SetSetting(ctx context.Context, key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

// Jobs

func (s *GormStorage) UpdateScheduledJob(ctx context.Context, name string, startedAt time.Time, duration time.Duration, success bool, errMsg string) error {
	job := ScheduledJob{
		Name:           name,
		LastRunAt:      startedAt,
		LastDurationMs: duration.Milliseconds(),
		LastSuccess:    success,
		LastError:      errMsg,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(&job).Error
}

func (s *GormStorage) GetScheduledJob(ctx context.Context, name string) (*ScheduledJob, error) {
	var job ScheduledJob
	result := s.db.WithContext(ctx).First(&job, "name = ?", name)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &job, nil
}

// Tokens

func (s *GormStorage) CreateToken(ctx context.Context, t Token) error {
	return s.db.WithContext(ctx).Create(&t).Error
}

func (s *GormStorage) GetTokenByHash(ctx context.Context, hash string) (*Token, error) {
	var t Token
	result := s.db.WithContext(ctx).First(&t, "token_hash = ?", hash)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &t, nil
}

func (s *GormStorage) ListTokens(ctx context.Context) ([]Token, error) {
	var out []Token
	return out, s.db.WithContext(ctx).Order("created_at").Find(&out).Error
}

func (s *GormStorage) DeleteToken(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Token{}, "id = ?", id).Error
}

func (s *GormStorage) UpdateTokenLastUsed(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&Token{}).Where("id = ?", id).Update("last_used_at", at).Error
}

// Casbin

func (s *GormStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	var rules []CasbinRule
	return rules, s.db.WithContext(ctx).Find(&rules).Error
}

func (s *GormStorage) AddCasbinRule(ctx context.Context, rule CasbinRule) error {
	rule.ID = 0
	return s.db.WithContext(ctx).Create(&rule).Error
}

func (s *GormStorage) RemoveCasbinRule(ctx context.Context, rule CasbinRule) error {
	return s.db.WithContext(ctx).Where(
		"ptype = ? AND v0 = ? AND v1 = ? AND v2 = ? AND v3 = ? AND v4 = ? AND v5 = ?",
		rule.PType, rule.V0, rule.V1, rule.V2, rule.V3, rule.V4, rule.V5,
	).Delete(&CasbinRule{}).Error
}

func (s *GormStorage) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SQLDB exposes the underlying connection pool for tools that work on
// database/sql, such as schema migrations.
func (s *GormStorage) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

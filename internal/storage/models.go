package storage

import "time"

// ScheduleRecord is a persisted tariff schedule. Slabs holds the JSON
// encoding of the slab list, with a null capacity for the open-ended slab.
type ScheduleRecord struct {
	Key       string    `json:"key" gorm:"primaryKey;column:key"`
	Name      string    `json:"name" gorm:"column:name"`
	Currency  string    `json:"currency" gorm:"column:currency"`
	Notes     string    `json:"notes,omitempty" gorm:"column:notes"`
	Slabs     []byte    `json:"slabs" gorm:"column:slabs"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (ScheduleRecord) TableName() string { return "schedules" }

// CostSnapshot is one resolved cost for today, written by the refresh worker.
type CostSnapshot struct {
	ID         string    `json:"id" gorm:"primaryKey;column:id"`
	Schedule   string    `json:"schedule" gorm:"index;column:schedule"`
	Method     string    `json:"method" gorm:"column:method"`
	Source     string    `json:"source" gorm:"column:source"`
	KWh        float64   `json:"kwh" gorm:"column:kwh"`
	Cost       float64   `json:"cost" gorm:"column:cost"`
	Estimated  bool      `json:"estimated" gorm:"column:estimated"`
	ObservedAt time.Time `json:"observed_at" gorm:"column:observed_at"`
	CreatedAt  time.Time `json:"created_at" gorm:"index;column:created_at"`
}

// Setting is a runtime key/value override.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the outcome of the last run of a background job.
type ScheduledJob struct {
	Name           string    `json:"name" gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `json:"last_run_at" gorm:"column:last_run_at"`
	LastDurationMs int64     `json:"last_duration_ms" gorm:"column:last_duration_ms"`
	LastSuccess    bool      `json:"last_success" gorm:"column:last_success"`
	LastError      string    `json:"last_error,omitempty" gorm:"column:last_error"`
}

// Token represents an API access token. Only the sha256 of the secret is kept.
type Token struct {
	ID         string     `json:"id" gorm:"primaryKey;column:id"`
	Name       string     `json:"name" gorm:"column:name"`
	TokenHash  string     `json:"-" gorm:"uniqueIndex;column:token_hash"`
	Role       string     `json:"role" gorm:"column:role"`
	CreatedAt  time.Time  `json:"created_at" gorm:"column:created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" gorm:"column:expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" gorm:"column:last_used_at"`
}

// CasbinRule represents a policy rule for RBAC.
type CasbinRule struct {
	ID    uint   `gorm:"primaryKey"`
	PType string `json:"ptype" gorm:"column:ptype"`
	V0    string `json:"v0" gorm:"column:v0"`
	V1    string `json:"v1" gorm:"column:v1"`
	V2    string `json:"v2" gorm:"column:v2"`
	V3    string `json:"v3" gorm:"column:v3"`
	V4    string `json:"v4" gorm:"column:v4"`
	V5    string `json:"v5" gorm:"column:v5"`
}

// Setting keys understood by the service.
const (
	SettingRefreshInterval = "refresh_interval"
	SettingDailyBudget     = "daily_budget"

	// SettingBudgetAlertPrefix plus a schedule key holds the date of the
	// last budget alert sent for that schedule.
	SettingBudgetAlertPrefix = "budget_alert_sent:"
)

package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ScheduleType mirrors spec.md §3's schedule_type enum.
type ScheduleType string

const (
	ScheduleInterval ScheduleType = "interval"
	ScheduleCron     ScheduleType = "cron"
)

// JSONMap is a gorm-friendly map that (de)serializes to a JSON column,
// grounded on the teacher's db.Task.Params/Result TEXT-backed JSON columns
// generalized from string-blobs to structured maps.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = JSONMap{}
		return nil
	}
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONMap source type %T", value)
	}
	if len(b) == 0 {
		*m = JSONMap{}
		return nil
	}
	out := JSONMap{}
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// Task is the persisted task definition of spec.md §3, table scheduled_tasks.
type Task struct {
	ID          string `gorm:"primaryKey;type:varchar(64)"`
	Name        string `gorm:"type:varchar(255)"`
	Description string `gorm:"type:text"`
	Tags        string `gorm:"type:varchar(255)"`
	TaskType    string `gorm:"column:task_type;type:varchar(64);index"`

	PluginName string  `gorm:"column:plugin_name;type:varchar(128);index"`
	Parameters JSONMap `gorm:"column:parameters;type:text"`

	ScheduleType   ScheduleType `gorm:"column:schedule_type;type:varchar(16)"`
	ScheduleConfig JSONMap      `gorm:"column:schedule_config;type:text"`

	Enabled bool `gorm:"column:enabled;index"`

	Priority       int `gorm:"column:priority"`
	MaxRetries     int `gorm:"column:max_retries"`
	TimeoutSeconds int `gorm:"column:timeout_seconds"`

	LastRun *time.Time `gorm:"column:last_run"`
	NextRun *time.Time `gorm:"column:next_run"`

	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;index"`
}

func (Task) TableName() string { return "scheduled_tasks" }

// IntervalConfig is the decoded shape of ScheduleConfig when ScheduleType is
// interval, per spec.md §6.
type IntervalConfig struct {
	IntervalSeconds int `json:"interval_seconds"`
}

// CronConfig is the decoded shape of ScheduleConfig when ScheduleType is
// cron, per spec.md §6.
type CronConfig struct {
	Minute      string `json:"minute"`
	Hour        string `json:"hour"`
	DayOfMonth  string `json:"day_of_month"`
	MonthOfYear string `json:"month_of_year"`
	DayOfWeek   string `json:"day_of_week"`
}

// DecodeInterval pulls an IntervalConfig out of the generic schedule_config map.
func (t Task) DecodeInterval() IntervalConfig {
	cfg := IntervalConfig{}
	if v, ok := t.ScheduleConfig["interval_seconds"]; ok {
		switch n := v.(type) {
		case float64:
			cfg.IntervalSeconds = int(n)
		case int:
			cfg.IntervalSeconds = n
		}
	}
	return cfg
}

// DecodeCron pulls a CronConfig out of the generic schedule_config map.
func (t Task) DecodeCron() CronConfig {
	get := func(k, def string) string {
		if v, ok := t.ScheduleConfig[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
		return def
	}
	return CronConfig{
		Minute:      get("minute", "*"),
		Hour:        get("hour", "*"),
		DayOfMonth:  get("day_of_month", "*"),
		MonthOfYear: get("month_of_year", "*"),
		DayOfWeek:   get("day_of_week", "*"),
	}
}

package config

type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Store controls the task definition store (JSON document on disk).
	Store StoreConfig `json:"store"`

	// History controls the optional run history database.
	// Omit the section (or leave path empty) to disable it.
	History *HistoryConfig `json:"history,omitempty"`

	// Notify controls the async operator notification pipeline.
	// If the whole section is omitted, notifications default to enabled.
	Notify *NotifyConfig `json:"notify,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig controls task persistence.
//
// SaveCoalesce is a Go duration string (e.g. "5s"); deferred saves within
// the window are merged into one disk write.
type StoreConfig struct {
	Path         string `json:"path"`
	SaveCoalesce string `json:"save_coalesce,omitempty"`
}

type HistoryConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
	Retention   string `json:"retention,omitempty"`    // Go duration string, default 720h
}

// NotifyConfig controls the notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifyConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
}

// SchedulerConfig controls trigger evaluation and per-tenant limits.
type SchedulerConfig struct {
	// DefaultTimezone is the IANA zone used for tenants without an explicit
	// timezone setting. Default "UTC".
	DefaultTimezone string `json:"default_timezone,omitempty"`

	// TierFloors maps tier name to the minimum allowed gap between fires,
	// as Go duration strings (e.g. {"free": "5m", "plus": "1m"}).
	TierFloors map[string]string `json:"tier_floors,omitempty"`

	// DefaultFloor applies to tenants whose tier has no entry in TierFloors.
	DefaultFloor string `json:"default_floor,omitempty"`

	// MaxTasksPerTenant caps enabled plus disabled tasks per tenant.
	// Zero means the built-in default.
	MaxTasksPerTenant int `json:"max_tasks_per_tenant,omitempty"`

	// InvokeTimeout bounds a single action invocation. Default "30s".
	InvokeTimeout string `json:"invoke_timeout,omitempty"`
}

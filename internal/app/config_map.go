package app

import (
	"strings"
	"time"

	"chime/internal/config"
	"chime/internal/history"
	"chime/internal/notify"
	"chime/internal/scheduler"
	"chime/internal/store"
)

// The map* helpers translate the file-level config (duration strings,
// optional sections) into component configs, failing on anything that
// would otherwise surface deep inside a component at runtime.

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	coalesce, err := config.ParseDurationOrDefault("store.save_coalesce", cfg.Store.SaveCoalesce, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{
		Path:         strings.TrimSpace(cfg.Store.Path),
		SaveCoalesce: coalesce,
	}, nil
}

func mapHistoryConfig(cfg *config.Config) (history.Config, error) {
	h := cfg.History
	if h == nil {
		return history.Config{}, nil
	}
	busy, err := config.ParseDurationField("history.busy_timeout", h.BusyTimeout)
	if err != nil {
		return history.Config{}, err
	}
	retention, err := config.ParseDurationOrDefault("history.retention", h.Retention, 30*24*time.Hour)
	if err != nil {
		return history.Config{}, err
	}
	return history.Config{
		Path:        strings.TrimSpace(h.Path),
		BusyTimeout: busy,
		Retention:   retention,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notify
	if n == nil {
		// Omitted section means notifications on, with defaults.
		return notify.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notify.retry_base", n.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notify.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	dedup, err := config.ParseDurationField("notify.dedup_window", n.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedup,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	s := cfg.Scheduler

	floors := make(map[string]time.Duration, len(s.TierFloors))
	for tier, raw := range s.TierFloors {
		d, err := config.ParseDurationField("scheduler.tier_floors."+tier, raw)
		if err != nil {
			return scheduler.Config{}, err
		}
		if d > 0 {
			floors[strings.ToLower(strings.TrimSpace(tier))] = d
		}
	}
	defFloor, err := config.ParseDurationField("scheduler.default_floor", s.DefaultFloor)
	if err != nil {
		return scheduler.Config{}, err
	}
	invoke, err := config.ParseDurationField("scheduler.invoke_timeout", s.InvokeTimeout)
	if err != nil {
		return scheduler.Config{}, err
	}

	return scheduler.Config{
		DefaultTimezone:   strings.TrimSpace(s.DefaultTimezone),
		TierFloors:        floors,
		DefaultFloor:      defFloor,
		MaxTasksPerTenant: s.MaxTasksPerTenant,
		InvokeTimeout:     invoke,
	}, nil
}

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks the config for structural problems. It is used both at
// startup and as the Watch() validator so a bad edit never replaces a
// working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		return fmt.Errorf("store.path: required")
	}
	if _, err := ParseDurationField("store.save_coalesce", cfg.Store.SaveCoalesce); err != nil {
		return err
	}
	if h := cfg.History; h != nil {
		if _, err := ParseDurationField("history.busy_timeout", h.BusyTimeout); err != nil {
			return err
		}
		if _, err := ParseDurationField("history.retention", h.Retention); err != nil {
			return err
		}
	}
	if n := cfg.Notify; n != nil {
		for path, raw := range map[string]string{
			"notify.retry_base":      n.RetryBase,
			"notify.retry_max_delay": n.RetryMaxDelay,
			"notify.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				return err
			}
		}
	}

	s := cfg.Scheduler
	if tz := strings.TrimSpace(s.DefaultTimezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.default_timezone: unknown zone %q", tz)
		}
	}
	for tier, raw := range s.TierFloors {
		if _, err := ParseDurationField("scheduler.tier_floors."+tier, raw); err != nil {
			return err
		}
	}
	if _, err := ParseDurationField("scheduler.default_floor", s.DefaultFloor); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.invoke_timeout", s.InvokeTimeout); err != nil {
		return err
	}
	if s.MaxTasksPerTenant < 0 {
		return fmt.Errorf("scheduler.max_tasks_per_tenant: must be >= 0")
	}
	return nil
}

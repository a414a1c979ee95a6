package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "chimed.json", `{
		"logging": {"level": "debug", "console": true, "file": {"enabled": false, "path": ""}},
		"store": {"path": "./tasks.json", "save_coalesce": "5s"},
		"history": {"path": "./history.db", "retention": "168h"},
		"scheduler": {"default_timezone": "Europe/Berlin", "tier_floors": {"free": "5m"}, "default_floor": "1m"}
	}`)

	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Store.Path != "./tasks.json" {
		t.Fatalf("store.path = %q", cfg.Store.Path)
	}
	if cfg.History == nil || cfg.History.Retention != "168h" {
		t.Fatalf("history = %+v", cfg.History)
	}
	if cfg.Scheduler.TierFloors["free"] != "5m" {
		t.Fatalf("tier_floors = %+v", cfg.Scheduler.TierFloors)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "chimed.yaml", `
logging:
  level: info
  console: true
  file:
    enabled: false
    path: ""
store:
  path: ./tasks.json
scheduler:
  default_timezone: UTC
`)

	cfg, err := NewManager(p).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" || cfg.Store.Path != "./tasks.json" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "chimed.json", `{"store": {"path": "x"}, "bogus": 1}`)
	if _, err := NewManager(p).Parse(); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("Parse: got %v, want unknown field error", err)
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "chimed.json", `{"store": {"path": "x"}}{"again": true}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatalf("Parse: expected error for trailing data")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing store path", func(c *Config) { c.Store.Path = "" }, "store.path"},
		{"bad coalesce", func(c *Config) { c.Store.SaveCoalesce = "soon" }, "save_coalesce"},
		{"bad timezone", func(c *Config) { c.Scheduler.DefaultTimezone = "Mars/Olympus" }, "default_timezone"},
		{"bad tier floor", func(c *Config) { c.Scheduler.TierFloors = map[string]string{"free": "-5m"} }, "tier_floors"},
		{"negative cap", func(c *Config) { c.Scheduler.MaxTasksPerTenant = -1 }, "max_tasks_per_tenant"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{Store: StoreConfig{Path: "./tasks.json"}}
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Validate: got %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Store: StoreConfig{Path: "a"}}
	newCfg := &Config{
		Store:     StoreConfig{Path: "b"},
		Scheduler: SchedulerConfig{DefaultTimezone: "UTC"},
	}
	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"store": true, "scheduler": true}
	if len(changed) != 2 {
		t.Fatalf("changed = %v", changed)
	}
	for _, c := range changed {
		if !want[c] {
			t.Fatalf("unexpected section %q in %v", c, changed)
		}
	}
}

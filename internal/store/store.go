package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	logx "chime/pkg/logx"
)

type Config struct {
	Path string

	// SaveCoalesce is the minimum spacing between eventual saves.
	// Explicit Save() calls always go through immediately.
	SaveCoalesce time.Duration
}

// Store holds the task table and tenant settings in memory and persists
// them as a single JSON document. All methods are safe for concurrent use.
type Store struct {
	path     string
	coalesce time.Duration
	log      logx.Logger

	mu       sync.Mutex
	doc      document
	lastSave time.Time
	pending  *time.Timer
}

// Open loads the store from cfg.Path. A missing file is a fresh empty
// store, not an error.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	coalesce := cfg.SaveCoalesce
	if coalesce <= 0 {
		coalesce = 5 * time.Second
	}

	s := &Store{
		path:     cfg.Path,
		coalesce: coalesce,
		log:      log,
		doc: document{
			Version: documentVersion,
			Tasks:   map[string]*Task{},
			Tenants: map[string]*TenantSettings{},
		},
	}

	b, err := os.ReadFile(cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("store file absent; starting empty", logx.String("path", cfg.Path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", cfg.Path, err)
	}
	if s.doc.Tasks == nil {
		s.doc.Tasks = map[string]*Task{}
	}
	if s.doc.Tenants == nil {
		s.doc.Tenants = map[string]*TenantSettings{}
	}
	s.log.Info("store loaded",
		logx.String("path", cfg.Path),
		logx.Int("tasks", len(s.doc.Tasks)),
		logx.Int("tenants", len(s.doc.Tenants)))
	return s, nil
}

// Save writes the document immediately (atomic rename; fsync file and dir).
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// SaveEventually requests a save but coalesces bursts: if a save happened
// within the coalesce window, the write is deferred (not dropped) until the
// window elapses.
func (s *Store) SaveEventually() {
	s.mu.Lock()
	defer s.mu.Unlock()

	since := time.Since(s.lastSave)
	if since >= s.coalesce {
		if err := s.saveLocked(); err != nil {
			s.log.Error("store save failed", logx.Err(err))
		}
		return
	}
	if s.pending != nil {
		return // a deferred save is already queued
	}
	s.pending = time.AfterFunc(s.coalesce-since, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending = nil
		if err := s.saveLocked(); err != nil {
			s.log.Error("store save failed", logx.Err(err))
		}
	})
}

// Close flushes any deferred save.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
		return s.saveLocked()
	}
	return nil
}

func (s *Store) saveLocked() error {
	start := time.Now()
	b, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	b = append(b, '\n')

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write-to-temp then rename so a crash mid-write cannot corrupt the
	// previous document.
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	// Best-effort directory fsync so the rename itself is durable.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	s.lastSave = time.Now()
	s.log.Debug("store saved",
		logx.Int("bytes", len(b)),
		logx.Duration("took", time.Since(start)))
	return nil
}

// ---- Task accessors ----

// Add inserts a new task. maxTasks caps the tenant's total task count
// (enabled plus disabled); 0 means uncapped.
func (s *Store) Add(t Task, maxTasks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.doc.Tasks[t.ID]; ok {
		return ErrTaskExists
	}
	if maxTasks > 0 && s.countTenantLocked(t.Tenant) >= maxTasks {
		return ErrTaskLimit
	}
	cp := t
	s.doc.Tasks[t.ID] = &cp
	return nil
}

// Remove deletes a task. It reports whether the id existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.doc.Tasks[id]; !ok {
		return false
	}
	delete(s.doc.Tasks, id)
	return true
}

// Task returns a copy of the task with the given id.
func (s *Store) Task(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc.Tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Mutate applies fn to the task in place. The id is restored afterwards so
// it stays immutable no matter what fn does.
func (s *Store) Mutate(id string, fn func(*Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc.Tasks[id]
	if !ok {
		return ErrNotFound
	}
	fn(t)
	t.ID = id
	return nil
}

// Tasks returns copies of all tasks, ordered by id for determinism.
func (s *Store) Tasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		out = append(out, *t)
	}
	sortTasks(out)
	return out
}

// EnabledTasks returns copies of all enabled tasks.
func (s *Store) EnabledTasks() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.doc.Tasks))
	for _, t := range s.doc.Tasks {
		if t.Enabled {
			out = append(out, *t)
		}
	}
	sortTasks(out)
	return out
}

// TasksByTenant returns copies of one tenant's tasks.
func (s *Store) TasksByTenant(tenant string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Task
	for _, t := range s.doc.Tasks {
		if t.Tenant == tenant {
			out = append(out, *t)
		}
	}
	sortTasks(out)
	return out
}

func (s *Store) countTenantLocked(tenant string) int {
	n := 0
	for _, t := range s.doc.Tasks {
		if t.Tenant == tenant {
			n++
		}
	}
	return n
}

func sortTasks(ts []Task) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].ID < ts[j].ID })
}

// ---- Tenant settings ----

// Settings returns the tenant's settings; ok is false when none are stored.
func (s *Store) Settings(tenant string) (TenantSettings, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.doc.Tenants[tenant]
	if !ok {
		return TenantSettings{}, false
	}
	return *ts, true
}

// SetSettings stores the tenant's settings.
func (s *Store) SetSettings(tenant string, ts TenantSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ts
	s.doc.Tenants[tenant] = &cp
}

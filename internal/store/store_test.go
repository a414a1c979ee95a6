package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chime/internal/recurrence"
	logx "chime/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "chime.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func testTask(id, tenant string) Task {
	return Task{
		ID:        id,
		Name:      "task-" + id,
		Tenant:    tenant,
		Target:    "chan-1",
		Action:    "report daily",
		CreatedOn: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Spec: recurrence.Spec{
			Interval: &recurrence.IntervalSpec{Every: 5, Unit: recurrence.UnitMinutes},
		},
	}
}

func TestOpenMissingFileIsEmpty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if got := len(s.Tasks()); got != 0 {
		t.Fatalf("Tasks() = %d entries, want 0", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chime.json")

	s, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	lastRun := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)
	task := testTask("a1", "guild-1")
	task.Enabled = true
	task.LastRun = &lastRun
	if err := s.Add(task, 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.SetSettings("guild-1", TenantSettings{Timezone: "Europe/Berlin", Tier: "premium"})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	// Load into a fresh store and save again: the document must be
	// byte-identical (idempotent serialization).
	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := s2.Save(); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("save(load()) changed the document:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}

	got, ok := s2.Task("a1")
	if !ok {
		t.Fatal("task a1 missing after reload")
	}
	if !got.Enabled || got.LastRun == nil || !got.LastRun.Equal(lastRun) {
		t.Fatalf("task round-trip mismatch: %+v", got)
	}
	ts, ok := s2.Settings("guild-1")
	if !ok || ts.Timezone != "Europe/Berlin" {
		t.Fatalf("settings round-trip mismatch: %+v", ts)
	}
}

func TestAddEnforcesIDAndCap(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	if err := s.Add(testTask("a1", "g1"), 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(testTask("a1", "g1"), 2); !errors.Is(err, ErrTaskExists) {
		t.Fatalf("duplicate Add error = %v, want ErrTaskExists", err)
	}
	if err := s.Add(testTask("a2", "g1"), 2); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(testTask("a3", "g1"), 2); !errors.Is(err, ErrTaskLimit) {
		t.Fatalf("over-cap Add error = %v, want ErrTaskLimit", err)
	}
	// Another tenant is not affected by g1's count.
	if err := s.Add(testTask("b1", "g2"), 2); err != nil {
		t.Fatalf("Add other tenant: %v", err)
	}
}

func TestMutateKeepsIDImmutable(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	if err := s.Add(testTask("a1", "g1"), 0); err != nil {
		t.Fatalf("Add: %v", err)
	}

	err := s.Mutate("a1", func(task *Task) {
		task.ID = "evil"
		task.Name = "renamed"
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	got, ok := s.Task("a1")
	if !ok || got.Name != "renamed" {
		t.Fatalf("mutation lost: %+v", got)
	}
	if _, ok := s.Task("evil"); ok {
		t.Fatal("id mutation leaked")
	}

	if err := s.Mutate("nope", func(*Task) {}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Mutate missing error = %v, want ErrNotFound", err)
	}
}

func TestDefinitionHashIgnoresLastRun(t *testing.T) {
	t.Parallel()
	a := testTask("a1", "g1")
	b := a
	lastRun := time.Now()
	b.LastRun = &lastRun
	if a.DefinitionHash() != b.DefinitionHash() {
		t.Fatal("LastRun changed the definition hash")
	}

	c := a
	c.Spec.Interval = &recurrence.IntervalSpec{Every: 10, Unit: recurrence.UnitMinutes}
	if a.DefinitionHash() == c.DefinitionHash() {
		t.Fatal("spec edit did not change the definition hash")
	}
}

func TestSaveEventuallyCoalesces(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "chime.json")
	s, err := Open(Config{Path: path, SaveCoalesce: time.Hour}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.Stat(path)

	if err := s.Add(testTask("a1", "g1"), 0); err != nil {
		t.Fatalf("Add: %v", err)
	}
	// Within the coalesce window the write is deferred, not performed.
	s.SaveEventually()
	after, _ := os.Stat(path)
	if after.ModTime() != before.ModTime() || after.Size() != before.Size() {
		t.Fatal("SaveEventually wrote inside the coalesce window")
	}

	// Close flushes the deferred write.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s2, err := Open(Config{Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, ok := s2.Task("a1"); !ok {
		t.Fatal("deferred save lost the task")
	}
}

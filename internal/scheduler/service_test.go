package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"chime/internal/engine"
	"chime/internal/notify"
	"chime/internal/recurrence"
	"chime/internal/store"
	"chime/pkg/logx"
)

type fakeInvoker struct {
	mu       sync.Mutex
	calls    int
	outcome  Outcome
	err      error
	panicMsg string
}

func (f *fakeInvoker) Invoke(ctx context.Context, t store.Task) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.outcome, f.err
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeResolver struct {
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, tenant, target string) error { return f.err }

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (f *fakeNotifier) Notify(ctx context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testRig struct {
	svc      *Service
	invoker  *fakeInvoker
	resolver *fakeResolver
	notifier *fakeNotifier
}

func newRig(t *testing.T, cfg Config) *testRig {
	t.Helper()
	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "tasks.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	r := &testRig{
		invoker:  &fakeInvoker{},
		resolver: &fakeResolver{},
		notifier: &fakeNotifier{},
	}
	r.svc = New(cfg, Deps{
		Store:    st,
		Engine:   engine.New(logx.Nop()),
		Invoker:  r.invoker,
		Resolver: r.resolver,
		Notifier: r.notifier,
	})
	return r
}

func minuteSpec(every int) recurrence.Spec {
	return recurrence.Spec{Interval: &recurrence.IntervalSpec{Every: every, Unit: recurrence.UnitMinutes}}
}

func TestCreateTask(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{})
	task, err := r.svc.CreateTask("g1", "standup", "room-1", "ping", minuteSpec(30))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.ID == "" || task.Enabled {
		t.Fatalf("task = %+v, want generated id and disabled", task)
	}

	// Name collisions are case-insensitive within the tenant.
	if _, err := r.svc.CreateTask("g1", "StandUp", "room-1", "ping", minuteSpec(5)); !errors.Is(err, ErrNameTaken) {
		t.Fatalf("duplicate name: got %v, want ErrNameTaken", err)
	}
	// Other tenants are unaffected.
	if _, err := r.svc.CreateTask("g2", "standup", "room-1", "ping", minuteSpec(5)); err != nil {
		t.Fatalf("same name other tenant: %v", err)
	}

	var verr *recurrence.ValidationError
	if _, err := r.svc.CreateTask("g1", "bad", "room-1", "ping", recurrence.Spec{}); !errors.As(err, &verr) {
		t.Fatalf("empty spec: got %v, want ValidationError", err)
	}
}

func TestCreateTaskRespectsTenantCap(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{MaxTasksPerTenant: 2})
	for i, name := range []string{"a", "b"} {
		if _, err := r.svc.CreateTask("g1", name, "x", "ping", minuteSpec(10)); err != nil {
			t.Fatalf("CreateTask #%d: %v", i, err)
		}
	}
	if _, err := r.svc.CreateTask("g1", "c", "x", "ping", minuteSpec(10)); !errors.Is(err, store.ErrTaskLimit) {
		t.Fatalf("over cap: got %v, want ErrTaskLimit", err)
	}
}

func TestEnableGate(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: 5 * time.Minute})

	task, err := r.svc.CreateTask("g1", "fast", "x", "ping", minuteSpec(1))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	var use *recurrence.UnsafeScheduleError
	if err := r.svc.Enable(task.ID); !errors.As(err, &use) {
		t.Fatalf("Enable below floor: got %v, want UnsafeScheduleError", err)
	}
	if got, _ := r.svc.Task(task.ID); got.Enabled {
		t.Fatalf("task must stay disabled after rejected Enable")
	}

	slow, err := r.svc.CreateTask("g1", "slow", "x", "ping", minuteSpec(10))
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := r.svc.Enable(slow.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if _, ok := r.svc.eng.Hash(slow.ID); !ok {
		t.Fatalf("enabled task has no live job")
	}
}

func TestEnableRejectsExhaustedSchedule(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{})
	past := time.Now().Add(-time.Hour)
	spec := recurrence.Spec{
		Interval: &recurrence.IntervalSpec{Every: 1, Unit: recurrence.UnitHours},
		EndDate:  &past,
	}
	task, err := r.svc.CreateTask("g1", "done", "x", "ping", spec)
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := r.svc.Enable(task.ID); !errors.Is(err, ErrScheduleExhausted) {
		t.Fatalf("Enable: got %v, want ErrScheduleExhausted", err)
	}
}

func TestEnsureJobsIdempotent(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	if changed := r.svc.EnsureJobs(); changed != 0 {
		t.Fatalf("second reconcile changed %d jobs, want 0", changed)
	}

	// An edit replaces the job.
	before, _ := r.svc.eng.Hash(task.ID)
	if err := r.svc.UpdateSpec(task.ID, minuteSpec(20)); err != nil {
		t.Fatalf("UpdateSpec: %v", err)
	}
	after, ok := r.svc.eng.Hash(task.ID)
	if !ok || after == before {
		t.Fatalf("job hash unchanged after spec edit")
	}

	// Disable removes the job synchronously.
	if err := r.svc.Disable(task.ID); err != nil {
		t.Fatalf("Disable: %v", err)
	}
	if _, ok := r.svc.eng.Hash(task.ID); ok {
		t.Fatalf("disabled task still has a live job")
	}
}

func TestTimezoneChangeRebuildsJobs(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	spec := recurrence.Spec{Calendar: &recurrence.CalendarSpec{Hour: "9"}}
	task, _ := r.svc.CreateTask("g1", "daily", "x", "ping", spec)
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	before, _ := r.svc.eng.Hash(task.ID)

	if err := r.svc.SetTenantTimezone("g1", "Asia/Tokyo"); err != nil {
		t.Fatalf("SetTenantTimezone: %v", err)
	}
	after, ok := r.svc.eng.Hash(task.ID)
	if !ok || after == before {
		t.Fatalf("job not rebuilt after timezone change")
	}

	if err := r.svc.SetTenantTimezone("g1", "Moon/Crater"); err == nil {
		t.Fatalf("bogus timezone accepted")
	}
}

func TestRunTaskSuccess(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	r.svc.runTask(task.ID)

	if r.invoker.callCount() != 1 {
		t.Fatalf("invoker called %d times, want 1", r.invoker.callCount())
	}
	got, _ := r.svc.Task(task.ID)
	if got.LastRun == nil {
		t.Fatalf("LastRun not recorded after success")
	}
	if !got.Enabled {
		t.Fatalf("task disabled after success")
	}
}

func TestRunTaskPanicIsContained(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	r.invoker.panicMsg = "nil map write"

	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	// Must not propagate; the panic is a transient failure like any other.
	r.svc.runTask(task.ID)

	if r.invoker.callCount() != 1 {
		t.Fatalf("invoker calls = %d, want 1", r.invoker.callCount())
	}
	got, _ := r.svc.Task(task.ID)
	if !got.Enabled {
		t.Fatalf("task disabled after a panicking invocation")
	}
	if got.LastRun != nil {
		t.Fatalf("LastRun recorded for a panicking fire")
	}
	if _, ok := r.svc.eng.Hash(task.ID); !ok {
		t.Fatalf("job removed after a panicking invocation")
	}
	if r.notifier.count() != 0 {
		t.Fatalf("panicking fire must not notify")
	}
}

func TestRunTaskTransientKeepsEnabled(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	r.invoker.outcome = OutcomeTransient
	r.invoker.err = errors.New("upstream busy")

	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	r.svc.runTask(task.ID)

	got, _ := r.svc.Task(task.ID)
	if !got.Enabled {
		t.Fatalf("task disabled after transient failure")
	}
	if got.LastRun != nil {
		t.Fatalf("LastRun recorded for a failed fire")
	}
	if r.notifier.count() != 0 {
		t.Fatalf("transient failure must not notify")
	}
}

func TestRunTaskFatalDisables(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	r.invoker.outcome = OutcomeNotFound
	r.invoker.err = errors.New("channel deleted")

	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	r.svc.runTask(task.ID)

	got, _ := r.svc.Task(task.ID)
	if got.Enabled {
		t.Fatalf("task still enabled after fatal outcome")
	}
	if _, ok := r.svc.eng.Hash(task.ID); ok {
		t.Fatalf("job still live after fatal outcome")
	}
	if r.notifier.count() != 1 {
		t.Fatalf("notified %d times, want exactly 1", r.notifier.count())
	}

	// A late dispatch against the now-disabled task is a no-op.
	calls := r.invoker.callCount()
	r.svc.runTask(task.ID)
	if r.invoker.callCount() != calls {
		t.Fatalf("disabled task was invoked")
	}
	if r.notifier.count() != 1 {
		t.Fatalf("second dispatch notified again")
	}
}

func TestRunTaskResolverFailure(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	r.resolver.err = ErrTargetNotFound

	task, _ := r.svc.CreateTask("g1", "a", "gone", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	r.svc.runTask(task.ID)

	if r.invoker.callCount() != 0 {
		t.Fatalf("invoker ran despite missing target")
	}
	got, _ := r.svc.Task(task.ID)
	if got.Enabled {
		t.Fatalf("task still enabled after target vanished")
	}
	if r.notifier.count() != 1 {
		t.Fatalf("notified %d times, want 1", r.notifier.count())
	}
}

func TestUpdateSpecGatesEnabledTasks(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: 5 * time.Minute})
	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}

	var use *recurrence.UnsafeScheduleError
	if err := r.svc.UpdateSpec(task.ID, minuteSpec(1)); !errors.As(err, &use) {
		t.Fatalf("UpdateSpec below floor: got %v, want UnsafeScheduleError", err)
	}
	// The old spec stays in effect.
	got, _ := r.svc.Task(task.ID)
	if got.Spec.Interval == nil || got.Spec.Interval.Every != 10 {
		t.Fatalf("spec = %+v, want original kept", got.Spec)
	}
}

func TestTierFloors(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{
		DefaultFloor: 5 * time.Minute,
		TierFloors:   map[string]time.Duration{"plus": time.Minute},
	})
	task, _ := r.svc.CreateTask("g1", "fast", "x", "ping", minuteSpec(1))

	if err := r.svc.Enable(task.ID); err == nil {
		t.Fatalf("default tier must reject 1m spec under 5m floor")
	}
	if err := r.svc.SetTenantTier("g1", "Plus"); err != nil {
		t.Fatalf("SetTenantTier: %v", err)
	}
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable under plus tier: %v", err)
	}
}

func TestDeleteTask(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	task, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if err := r.svc.Enable(task.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if err := r.svc.DeleteTask(task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, ok := r.svc.Task(task.ID); ok {
		t.Fatalf("task still stored after delete")
	}
	if _, ok := r.svc.eng.Hash(task.ID); ok {
		t.Fatalf("job still live after delete")
	}
	if err := r.svc.DeleteTask(task.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("double delete: got %v, want ErrNotFound", err)
	}
}

func TestSnapshot(t *testing.T) {
	t.Parallel()

	r := newRig(t, Config{DefaultFloor: time.Second})
	a, _ := r.svc.CreateTask("g1", "a", "x", "ping", minuteSpec(10))
	if _, err := r.svc.CreateTask("g1", "b", "x", "ping", minuteSpec(15)); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := r.svc.Enable(a.ID); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	r.svc.eng.Start()
	defer r.svc.eng.Stop(context.Background())

	snap := r.svc.Snapshot("g1")
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d tasks, want 2", len(snap))
	}
	for _, st := range snap {
		if st.Description == "" {
			t.Fatalf("empty description for %s", st.Task.Name)
		}
		if st.Task.ID == a.ID && st.Task.Enabled {
			if st.NextFire == nil {
				t.Fatalf("enabled task has no next fire")
			}
			if time.Until(*st.NextFire) > 10*time.Minute+time.Second {
				t.Fatalf("next fire too far out: %v", st.NextFire)
			}
		}
		if !st.Task.Enabled && st.NextFire != nil {
			t.Fatalf("disabled task has a next fire")
		}
	}
}

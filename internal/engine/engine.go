package engine

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"chime/internal/recurrence"
	logx "chime/pkg/logx"
)

// Engine owns the live job table: a cron runner with one entry per enabled
// task, keyed by task id. Entries carry the definition hash they were built
// from so the reconciler can detect stale jobs without comparing triggers.
//
// Overlapping fires of the same job are skipped, not queued: a task mutates
// its own bookkeeping, so at most one execution per id is in flight.
type Engine struct {
	log logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	jobs map[string]*jobEntry
}

type jobEntry struct {
	entry cron.EntryID
	hash  uint64
}

func New(log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	e := &Engine{log: log, jobs: map[string]*jobEntry{}}
	cl := cronLogger{log: log}
	// Triggers carry their own tenant timezone; the runner itself stays in UTC.
	// Recover is outermost so a panicking job never takes down the dispatch
	// goroutine.
	e.c = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		cron.WithLogger(cl),
	)
	return e
}

// Start begins dispatching. Jobs may be added before or after.
func (e *Engine) Start() {
	e.c.Start()
	e.log.Debug("engine started")
}

// Stop halts dispatching and waits for in-flight jobs, bounded by ctx.
func (e *Engine) Stop(ctx context.Context) {
	start := time.Now()
	select {
	case <-e.c.Stop().Done():
	case <-ctx.Done():
		// best-effort
	}
	e.log.Debug("engine stopped", logx.Duration("took", time.Since(start)))
}

// Set ensures a job with the given id exists and was built from hash.
// An existing job with the same hash is left untouched (no fire-time drift);
// a differing hash replaces the entry. It reports whether anything changed.
func (e *Engine) Set(id string, hash uint64, sched cron.Schedule, run func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if j, ok := e.jobs[id]; ok {
		if j.hash == hash {
			return false
		}
		e.c.Remove(j.entry)
	}
	entry := e.c.Schedule(sched, cron.FuncJob(run))
	e.jobs[id] = &jobEntry{entry: entry, hash: hash}
	return true
}

// Remove cancels the pending job for id. It reports whether one existed.
func (e *Engine) Remove(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return false
	}
	e.c.Remove(j.entry)
	delete(e.jobs, id)
	return true
}

// IDs returns the ids of all live jobs.
func (e *Engine) IDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.jobs))
	for id := range e.jobs {
		out = append(out, id)
	}
	return out
}

// Hash returns the definition hash a live job was built from.
func (e *Engine) Hash(id string) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return 0, false
	}
	return j.hash, true
}

// Times returns the next and previous activation of a live job.
func (e *Engine) Times(id string) (next, prev time.Time, ok bool) {
	e.mu.Lock()
	j, jok := e.jobs[id]
	e.mu.Unlock()
	if !jok {
		return time.Time{}, time.Time{}, false
	}
	ent := e.c.Entry(j.entry)
	return ent.Next, ent.Prev, ent.Valid()
}

// NewTriggerSchedule adapts a compiled trigger to the cron runner.
//
// The adapter remembers the last computed fire so interval triggers keep
// their phase across dispatches; the initial anchor is the task's last run,
// which is how fires missed while the process was down get skipped.
func NewTriggerSchedule(tr recurrence.Trigger, lastRun *time.Time) cron.Schedule {
	ts := &triggerSchedule{tr: tr}
	if lastRun != nil {
		ts.after = *lastRun
	}
	return ts
}

type triggerSchedule struct {
	mu    sync.Mutex
	tr    recurrence.Trigger
	after time.Time
}

func (ts *triggerSchedule) Next(now time.Time) time.Time {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.tr.NextFire(ts.after, now)
	if !ok {
		// Zero tells the runner this entry never activates again.
		return time.Time{}
	}
	ts.after = t
	return t
}

// cronLogger bridges the runner's log calls onto logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}

package scheduler

import (
	"encoding/binary"
	"hash/fnv"

	"chime/internal/engine"
	"chime/internal/recurrence"
	"chime/internal/store"
	"chime/pkg/logx"
)

// EnsureJobs reconciles the live job table against the store: every enabled
// task gets exactly one job built from its current definition, and jobs for
// disabled or deleted tasks are removed. Jobs whose definition is unchanged
// are left alone so their pending fire time does not drift.
//
// It returns the number of jobs added, replaced or removed, and is safe to
// call from any goroutine; concurrent calls serialize.
func (s *Service) EnsureJobs() int {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()

	changed := 0
	desired := map[string]bool{}

	for _, t := range s.store.EnabledTasks() {
		loc := s.tenantLocation(t.Tenant)
		tr, err := recurrence.Compile(t.Spec, loc)
		if err != nil {
			// A stored spec that stops compiling (e.g. after a code upgrade)
			// must not take down reconciliation; the task just gets no job.
			s.log.Error("stored spec failed to compile",
				logx.String("id", t.ID),
				logx.String("tenant", t.Tenant),
				logx.Err(err))
			continue
		}
		desired[t.ID] = true

		hash := jobHash(t, loc.String())
		id := t.ID
		sched := engine.NewTriggerSchedule(tr, t.LastRun)
		if s.eng.Set(id, hash, sched, func() { s.runTask(id) }) {
			changed++
		}
	}

	for _, id := range s.eng.IDs() {
		if !desired[id] {
			if s.eng.Remove(id) {
				changed++
			}
		}
	}

	if changed > 0 {
		s.log.Debug("jobs reconciled", logx.Int("changed", changed))
	}
	return changed
}

// jobHash extends the task's definition hash with the effective timezone,
// so a tenant zone change rebuilds jobs even though the task is untouched.
func jobHash(t store.Task, zone string) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], t.DefinitionHash())
	_, _ = h.Write(buf[:])
	_, _ = h.Write([]byte(zone))
	return h.Sum64()
}

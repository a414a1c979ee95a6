package scheduler

import (
	"context"
	"time"

	"chime/internal/recurrence"
	"chime/internal/store"
)

// Snapshot returns one tenant's tasks with their live scheduling state,
// for status output. Disabled tasks have no fire times.
func (s *Service) Snapshot(tenant string) []TaskStatus {
	tasks := s.store.TasksByTenant(tenant)
	out := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, s.status(t))
	}
	return out
}

// Status returns the live state of one task.
func (s *Service) Status(id string) (TaskStatus, error) {
	t, ok := s.store.Task(id)
	if !ok {
		return TaskStatus{}, store.ErrNotFound
	}
	return s.status(t), nil
}

func (s *Service) status(t store.Task) TaskStatus {
	st := TaskStatus{Task: t, Description: recurrence.Describe(t.Spec)}
	if next, prev, ok := s.eng.Times(t.ID); ok {
		if !next.IsZero() {
			n := next
			st.NextFire = &n
		}
		if !prev.IsZero() {
			p := prev
			st.PrevFire = &p
		}
	}
	if s.history != nil {
		// Best-effort; a slow history database must not stall status output.
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		if recs, err := s.history.Recent(ctx, t.ID, 1); err == nil && len(recs) > 0 {
			st.LastOutcome = recs[0].Outcome
		}
		cancel()
	}
	return st
}

// Stats summarizes the whole service for the periodic status log.
type Stats struct {
	Tasks   int `json:"tasks"`
	Enabled int `json:"enabled"`
	Jobs    int `json:"jobs"`
}

func (s *Service) Stats() Stats {
	tasks := s.store.Tasks()
	st := Stats{Tasks: len(tasks), Jobs: len(s.eng.IDs())}
	for _, t := range tasks {
		if t.Enabled {
			st.Enabled++
		}
	}
	return st
}

package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"chime/internal/recurrence"
	"chime/internal/store"
	"chime/pkg/logx"
)

// CreateTask validates the spec and stores a new, disabled task. Name
// collisions within the tenant are rejected case-insensitively.
func (s *Service) CreateTask(tenant, name, target, action string, spec recurrence.Spec) (store.Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Task{}, fmt.Errorf("task name is required")
	}
	if err := recurrence.Validate(spec); err != nil {
		return store.Task{}, err
	}
	if s.nameTaken(tenant, name, "") {
		return store.Task{}, ErrNameTaken
	}

	t := store.Task{
		ID:        uuid.NewString(),
		Name:      name,
		Tenant:    tenant,
		Target:    strings.TrimSpace(target),
		Action:    strings.TrimSpace(action),
		CreatedOn: s.now().UTC(),
		Spec:      spec,
	}
	if err := s.store.Add(t, s.maxTasksFor(tenant)); err != nil {
		return store.Task{}, err
	}
	s.store.SaveEventually()
	s.log.Info("task created",
		logx.String("id", t.ID),
		logx.String("tenant", tenant),
		logx.String("name", name))
	return t, nil
}

// UpdateSpec replaces a task's recurrence. For enabled tasks the new spec
// must pass the same safety gate as Enable; the previous spec stays in
// effect if it does not.
func (s *Service) UpdateSpec(id string, spec recurrence.Spec) error {
	if err := recurrence.Validate(spec); err != nil {
		return err
	}
	t, ok := s.store.Task(id)
	if !ok {
		return store.ErrNotFound
	}
	if t.Enabled {
		if err := s.gate(t.Tenant, spec); err != nil {
			return err
		}
	}
	if err := s.store.Mutate(id, func(t *store.Task) { t.Spec = spec }); err != nil {
		return err
	}
	s.EnsureJobs()
	s.store.SaveEventually()
	return nil
}

// Rename changes a task's display name, keeping per-tenant uniqueness.
func (s *Service) Rename(id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("task name is required")
	}
	t, ok := s.store.Task(id)
	if !ok {
		return store.ErrNotFound
	}
	if s.nameTaken(t.Tenant, name, id) {
		return ErrNameTaken
	}
	if err := s.store.Mutate(id, func(t *store.Task) { t.Name = name }); err != nil {
		return err
	}
	s.EnsureJobs()
	s.store.SaveEventually()
	return nil
}

// SetTarget repoints a task at a new destination.
func (s *Service) SetTarget(id, target string) error {
	if err := s.store.Mutate(id, func(t *store.Task) { t.Target = strings.TrimSpace(target) }); err != nil {
		return err
	}
	s.EnsureJobs()
	s.store.SaveEventually()
	return nil
}

// SetAction replaces what a task does when it fires.
func (s *Service) SetAction(id, action string) error {
	if err := s.store.Mutate(id, func(t *store.Task) { t.Action = strings.TrimSpace(action) }); err != nil {
		return err
	}
	s.EnsureJobs()
	s.store.SaveEventually()
	return nil
}

// Enable turns a task on. The spec must compile in the tenant's timezone,
// have an upcoming fire, and respect the tenant's minimum fire gap.
func (s *Service) Enable(id string) error {
	t, ok := s.store.Task(id)
	if !ok {
		return store.ErrNotFound
	}
	if t.Enabled {
		return nil
	}
	if err := s.gate(t.Tenant, t.Spec); err != nil {
		return err
	}
	if err := s.store.Mutate(id, func(t *store.Task) { t.Enabled = true }); err != nil {
		return err
	}
	s.EnsureJobs()
	s.store.SaveEventually()
	s.log.Info("task enabled", logx.String("id", id), logx.String("tenant", t.Tenant))
	return nil
}

// gate is the enable-time safety check shared by Enable and UpdateSpec.
func (s *Service) gate(tenant string, spec recurrence.Spec) error {
	tr, err := recurrence.Compile(spec, s.tenantLocation(tenant))
	if err != nil {
		return err
	}
	now := s.now()
	if _, ok := tr.NextFire(time.Time{}, now); !ok {
		return ErrScheduleExhausted
	}
	return recurrence.CheckMinInterval(tr, now, s.floorFor(tenant))
}

// Disable turns a task off. The job is removed synchronously, so no fire
// can start after Disable returns.
func (s *Service) Disable(id string) error {
	t, ok := s.store.Task(id)
	if !ok {
		return store.ErrNotFound
	}
	if err := s.store.Mutate(id, func(t *store.Task) { t.Enabled = false }); err != nil {
		return err
	}
	s.eng.Remove(id)
	s.store.SaveEventually()
	s.log.Info("task disabled", logx.String("id", id), logx.String("tenant", t.Tenant))
	return nil
}

// DeleteTask removes a task and its job.
func (s *Service) DeleteTask(id string) error {
	s.eng.Remove(id)
	if !s.store.Remove(id) {
		return store.ErrNotFound
	}
	s.store.SaveEventually()
	s.log.Info("task deleted", logx.String("id", id))
	return nil
}

// Task returns one task by id.
func (s *Service) Task(id string) (store.Task, bool) { return s.store.Task(id) }

// Tasks returns all of one tenant's tasks.
func (s *Service) Tasks(tenant string) []store.Task { return s.store.TasksByTenant(tenant) }

// Describe renders a task's recurrence as a human sentence.
func (s *Service) Describe(id string) (string, error) {
	t, ok := s.store.Task(id)
	if !ok {
		return "", store.ErrNotFound
	}
	return recurrence.Describe(t.Spec), nil
}

// PreviewFires returns the next n fire times of a task's spec, whether or
// not the task is enabled.
func (s *Service) PreviewFires(id string, n int) ([]time.Time, error) {
	t, ok := s.store.Task(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	tr, err := recurrence.Compile(t.Spec, s.tenantLocation(t.Tenant))
	if err != nil {
		return nil, err
	}
	return recurrence.PreviewNext(tr, s.now(), n), nil
}

// SetTenantTimezone stores a tenant's IANA zone and rebuilds its jobs,
// since calendar triggers evaluate in tenant local time.
func (s *Service) SetTenantTimezone(tenant, zone string) error {
	zone = strings.TrimSpace(zone)
	if _, err := time.LoadLocation(zone); err != nil {
		return fmt.Errorf("unknown timezone %q", zone)
	}
	set, _ := s.store.Settings(tenant)
	set.Timezone = zone
	s.store.SetSettings(tenant, set)
	s.EnsureJobs()
	s.store.SaveEventually()
	return nil
}

// SetTenantTier stores a tenant's rate tier. It affects future Enable
// calls, not already-enabled tasks.
func (s *Service) SetTenantTier(tenant, tier string) error {
	set, _ := s.store.Settings(tenant)
	set.Tier = strings.ToLower(strings.TrimSpace(tier))
	s.store.SetSettings(tenant, set)
	s.store.SaveEventually()
	return nil
}

func (s *Service) nameTaken(tenant, name, excludeID string) bool {
	for _, t := range s.store.TasksByTenant(tenant) {
		if t.ID != excludeID && strings.EqualFold(t.Name, name) {
			return true
		}
	}
	return false
}

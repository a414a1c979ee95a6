package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"chime/internal/eventbus"
	"chime/internal/history"
	"chime/internal/store"
	"chime/pkg/logx"
)

// Deps are the service's collaborators. Store, Engine and Invoker are
// required; the rest are optional.
type Deps struct {
	Store    *store.Store
	Engine   JobTable
	Invoker  ActionInvoker
	Resolver TargetResolver
	Notifier Notifier
	Bus      eventbus.Bus
	History  *history.Store
	Log      logx.Logger
}

type Service struct {
	log logx.Logger

	store    *store.Store
	eng      JobTable
	invoker  ActionInvoker
	resolver TargetResolver
	notifier Notifier
	bus      eventbus.Bus
	history  *history.Store

	cfgMu sync.RWMutex
	cfg   Config

	// reconcileMu makes EnsureJobs single-flight: concurrent callers
	// serialize instead of double-building jobs.
	reconcileMu sync.Mutex

	// now is swapped in tests.
	now func() time.Time
}

func New(cfg Config, d Deps) *Service {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		store:    d.Store,
		eng:      d.Engine,
		invoker:  d.Invoker,
		resolver: d.Resolver,
		notifier: d.Notifier,
		bus:      d.Bus,
		history:  d.History,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// Start builds jobs for every enabled task and begins dispatching.
func (s *Service) Start(_ context.Context) {
	changed := s.EnsureJobs()
	s.eng.Start()
	s.log.Info("scheduler started",
		logx.Int("jobs", changed),
		logx.Int("tasks", len(s.store.Tasks())))
}

// Stop halts dispatching and flushes deferred store writes.
func (s *Service) Stop(ctx context.Context) {
	s.eng.Stop(ctx)
	if err := s.store.Close(); err != nil {
		s.log.Error("store flush on stop failed", logx.Err(err))
	}
	s.log.Info("scheduler stopped")
}

// Apply installs new policy and rebuilds jobs whose effective definition
// changed (a tier or timezone default shift can alter compiled triggers).
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
	s.EnsureJobs()
}

func (s *Service) config() Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// floorFor returns the minimum fire gap for one tenant, by tier.
func (s *Service) floorFor(tenant string) time.Duration {
	cfg := s.config()
	if set, ok := s.store.Settings(tenant); ok {
		if d, ok := cfg.TierFloors[strings.ToLower(strings.TrimSpace(set.Tier))]; ok && d > 0 {
			return d
		}
	}
	return cfg.DefaultFloor
}

// maxTasksFor returns the task cap for one tenant.
func (s *Service) maxTasksFor(tenant string) int {
	if set, ok := s.store.Settings(tenant); ok && set.MaxTasks > 0 {
		return set.MaxTasks
	}
	return s.config().MaxTasksPerTenant
}

// tenantLocation resolves a tenant's IANA zone, falling back to the
// configured default and finally UTC.
func (s *Service) tenantLocation(tenant string) *time.Location {
	name := ""
	if set, ok := s.store.Settings(tenant); ok {
		name = strings.TrimSpace(set.Timezone)
	}
	if name == "" {
		name = s.config().DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		s.log.Warn("unknown tenant timezone; using UTC",
			logx.String("tenant", tenant),
			logx.String("zone", name))
		return time.UTC
	}
	return loc
}

func (s *Service) publish(typ string, t store.Task, outcome, errText string) {
	if s.bus == nil {
		return
	}
	now := s.now()
	s.bus.Publish(eventbus.Event{Type: typ, Time: now, Data: TaskEvent{
		TaskID: t.ID, Tenant: t.Tenant, Name: t.Name,
		At: now, Outcome: outcome, Error: errText,
	}})
}

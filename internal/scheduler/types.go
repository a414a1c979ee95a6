package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"chime/internal/notify"
	"chime/internal/store"
)

var (
	ErrNameTaken         = errors.New("task name already used in tenant")
	ErrScheduleExhausted = errors.New("schedule has no upcoming fire")
	ErrTargetNotFound    = errors.New("target not found")
)

// Outcome classifies one action invocation.
type Outcome int

const (
	// OutcomeOK is a successful fire.
	OutcomeOK Outcome = iota
	// OutcomeTransient is a failure worth retrying on the next fire
	// (timeouts, temporary unavailability). The task stays enabled.
	OutcomeTransient
	// OutcomePermissionDenied means the action is no longer allowed to run
	// against its target. The task is disabled.
	OutcomePermissionDenied
	// OutcomeNotFound means the target or action no longer exists.
	// The task is disabled.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomePermissionDenied:
		return "permission_denied"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// fatal reports whether the outcome disables the task.
func (o Outcome) fatal() bool {
	return o == OutcomePermissionDenied || o == OutcomeNotFound
}

// ActionInvoker performs one fire of a task. The returned Outcome drives
// what happens to the task; err carries detail for logs and history.
type ActionInvoker interface {
	Invoke(ctx context.Context, task store.Task) (Outcome, error)
}

// TargetResolver confirms a task's target still exists before invoking.
// Return ErrTargetNotFound (or wrap it) to mark the target gone; any other
// error is treated as transient.
type TargetResolver interface {
	Resolve(ctx context.Context, tenant, target string) error
}

// Notifier delivers operator-facing messages. notify.Service satisfies it.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// JobTable is the live job store the reconciler drives. engine.Engine
// satisfies it; tests may substitute a fake.
type JobTable interface {
	Start()
	Stop(ctx context.Context)
	Set(id string, hash uint64, sched cron.Schedule, run func()) bool
	Remove(id string) bool
	IDs() []string
	Hash(id string) (uint64, bool)
	Times(id string) (next, prev time.Time, ok bool)
}

// Config carries scheduler policy. All fields have working defaults.
type Config struct {
	// DefaultTimezone applies to tenants without an explicit setting.
	DefaultTimezone string

	// TierFloors maps tenant tier to the minimum allowed gap between
	// consecutive fires. DefaultFloor covers unknown tiers.
	TierFloors   map[string]time.Duration
	DefaultFloor time.Duration

	// MaxTasksPerTenant caps enabled plus disabled tasks per tenant.
	MaxTasksPerTenant int

	// InvokeTimeout bounds one action invocation.
	InvokeTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = "UTC"
	}
	if c.DefaultFloor <= 0 {
		c.DefaultFloor = time.Minute
	}
	if c.MaxTasksPerTenant <= 0 {
		c.MaxTasksPerTenant = 25
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = 30 * time.Second
	}
	return c
}

// TaskEvent is the payload published on the bus for task.* events.
type TaskEvent struct {
	TaskID  string    `json:"task_id"`
	Tenant  string    `json:"tenant"`
	Name    string    `json:"name"`
	At      time.Time `json:"at"`
	Outcome string    `json:"outcome,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// TaskStatus is one task plus its live scheduling state.
type TaskStatus struct {
	Task        store.Task `json:"task"`
	Description string     `json:"description"`
	NextFire    *time.Time `json:"next_fire,omitempty"`
	PrevFire    *time.Time `json:"prev_fire,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
}

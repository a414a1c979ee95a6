package store

import (
	"encoding/json"
	"errors"
	"hash/fnv"
	"time"

	"chime/internal/recurrence"
)

var (
	ErrTaskExists = errors.New("task id already exists")
	ErrTaskLimit  = errors.New("tenant task limit reached")
	ErrNotFound   = errors.New("task not found")
)

// Task is one scheduled task. ID is generated at creation and immutable;
// Target and Action are opaque handles interpreted by the host application,
// not by the scheduler.
type Task struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Tenant  string `json:"tenant"`
	Target  string `json:"target"`
	Action  string `json:"action"`
	Enabled bool   `json:"enabled,omitempty"`

	CreatedOn time.Time  `json:"created_on"`
	LastRun   *time.Time `json:"last_run,omitempty"`

	Spec recurrence.Spec `json:"spec"`
}

// TenantSettings scope timezone, rate floor tier and task caps to one
// tenant. Zero values fall back to the scheduler's configured defaults.
type TenantSettings struct {
	Timezone string `json:"timezone,omitempty"` // IANA name
	Tier     string `json:"tier,omitempty"`
	MaxTasks int    `json:"max_tasks,omitempty"`
}

// document is the persisted shape of the store.
type document struct {
	Version int                        `json:"version"`
	Tasks   map[string]*Task           `json:"tasks"`
	Tenants map[string]*TenantSettings `json:"tenant_settings,omitempty"`
}

const documentVersion = 1

// DefinitionHash returns a stable hash over the task's defining fields.
// Bookkeeping (LastRun) is excluded so an execution does not look like an
// edit to the reconciler.
func (t Task) DefinitionHash() uint64 {
	cp := t
	cp.LastRun = nil
	b, err := json.Marshal(cp)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

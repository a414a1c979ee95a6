package notify

import (
	"context"
	"time"
)

// Transport delivers one operator message. Implementations should be safe
// for concurrent use; the pipeline bounds every call with a timeout.
type Transport interface {
	Send(ctx context.Context, tenant, message string) error
}

// Notification is one operator-facing message about a task.
type Notification struct {
	Tenant   string
	TaskID   string
	Priority int // 0..9, higher is more urgent
	Text     string
}

type Config struct {
	Enabled bool

	Workers    int
	QueueSize  int
	RatePerSec int

	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration

	// DedupWindow suppresses identical notifications within the window.
	// Zero disables dedup.
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Event is the payload published on the bus for notify.* events.
type Event struct {
	Tenant string    `json:"tenant"`
	TaskID string    `json:"task_id"`
	Key    string    `json:"key,omitempty"`
	At     time.Time `json:"at"`
	Error  string    `json:"error,omitempty"`
}

// HistoryItem is one recently sent message, kept for status output.
type HistoryItem struct {
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

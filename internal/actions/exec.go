// Package actions provides the built-in collaborator implementations used
// by chimed: a subprocess action invoker, a directory target resolver and a
// log-backed notification transport.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"chime/internal/scheduler"
	"chime/internal/store"
	"chime/pkg/logx"
)

// Cmd is the action payload: a command plus arguments, stored as JSON in
// the task's action field.
type Cmd struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// ExecInvoker runs a task's action as a subprocess. The task target, when
// set, is used as the working directory.
type ExecInvoker struct {
	log logx.Logger
}

func NewExecInvoker(log logx.Logger) *ExecInvoker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &ExecInvoker{log: log}
}

func (e *ExecInvoker) Invoke(ctx context.Context, t store.Task) (scheduler.Outcome, error) {
	var c Cmd
	if err := json.Unmarshal([]byte(t.Action), &c); err != nil {
		// A payload that stopped parsing will never succeed; don't retry it.
		return scheduler.OutcomeNotFound, fmt.Errorf("action payload: %w", err)
	}
	if strings.TrimSpace(c.Command) == "" {
		return scheduler.OutcomeNotFound, errors.New("action payload: command is required")
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	if strings.TrimSpace(t.Target) != "" {
		cmd.Dir = t.Target
	}
	out, err := cmd.CombinedOutput()
	if err == nil {
		e.log.Debug("action ran",
			logx.String("task", t.ID),
			logx.String("command", c.Command),
			logx.Int("output_bytes", len(out)))
		return scheduler.OutcomeOK, nil
	}

	werr := fmt.Errorf("%s: %w; out=%s", c.Command, err, truncate(string(out), 512))
	return classify(ctx, err), werr
}

func classify(ctx context.Context, err error) scheduler.Outcome {
	if ctx.Err() != nil {
		return scheduler.OutcomeTransient
	}
	if errors.Is(err, exec.ErrNotFound) {
		return scheduler.OutcomeNotFound
	}
	if errors.Is(err, os.ErrPermission) {
		return scheduler.OutcomePermissionDenied
	}
	// Non-zero exits and everything else are worth retrying on the next fire.
	return scheduler.OutcomeTransient
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// DirResolver treats the task target as a directory that must exist.
// An empty target always resolves.
type DirResolver struct{}

func (DirResolver) Resolve(ctx context.Context, tenant, target string) error {
	if strings.TrimSpace(target) == "" {
		return nil
	}
	fi, err := os.Stat(target)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", scheduler.ErrTargetNotFound, target)
	}
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", scheduler.ErrTargetNotFound, target)
	}
	return nil
}

// LogTransport delivers operator notifications to the process log. It is
// the default transport when no external one is wired in.
type LogTransport struct {
	Log logx.Logger
}

func (t LogTransport) Send(ctx context.Context, tenant, message string) error {
	t.Log.Warn("operator notification",
		logx.String("tenant", tenant),
		logx.String("message", message))
	return nil
}

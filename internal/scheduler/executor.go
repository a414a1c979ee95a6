package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"chime/internal/history"
	"chime/internal/notify"
	"chime/internal/store"
	"chime/pkg/logx"
)

// runTask is the body of every job: resolve the target, invoke the action,
// then update bookkeeping according to the outcome.
//
// The store row is re-read at fire time so a Disable or Delete that raced
// the dispatch wins: a task observed disabled here does not run.
func (s *Service) runTask(id string) {
	t, ok := s.store.Task(id)
	if !ok || !t.Enabled {
		s.eng.Remove(id)
		return
	}

	start := s.now()
	ctx, cancel := context.WithTimeout(context.Background(), s.config().InvokeTimeout)
	defer cancel()

	outcome, err := s.fire(ctx, t)
	took := time.Since(start)

	s.record(t, start, took, outcome, err)

	switch {
	case outcome == OutcomeOK:
		now := start.UTC()
		if merr := s.store.Mutate(id, func(t *store.Task) { t.LastRun = &now }); merr != nil {
			s.log.Error("last run update failed", logx.String("id", id), logx.Err(merr))
		}
		s.store.SaveEventually()
		s.publish("task.fired", t, outcome.String(), "")
		s.log.Debug("task fired",
			logx.String("id", id),
			logx.String("tenant", t.Tenant),
			logx.Duration("took", took))

	case outcome.fatal():
		s.disableFailed(t, outcome, err)

	default: // transient
		s.publish("task.failed", t, outcome.String(), errText(err))
		s.log.Warn("task fire failed; will retry on next fire",
			logx.String("id", id),
			logx.String("tenant", t.Tenant),
			logx.String("outcome", outcome.String()),
			logx.Err(err))
	}
}

// fire performs one resolution + invocation. A panic in either collaborator
// is contained here and reported as a transient failure; it must never reach
// the engine's dispatch goroutine.
func (s *Service) fire(ctx context.Context, t store.Task) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("action panicked",
				logx.String("id", t.ID),
				logx.String("tenant", t.Tenant),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
			out, err = OutcomeTransient, fmt.Errorf("action panic: %v", r)
		}
	}()

	if s.resolver != nil {
		if err := s.resolver.Resolve(ctx, t.Tenant, t.Target); err != nil {
			if errors.Is(err, ErrTargetNotFound) {
				return OutcomeNotFound, err
			}
			return OutcomeTransient, err
		}
	}
	if s.invoker == nil {
		return OutcomeTransient, errors.New("no action invoker configured")
	}
	return s.invoker.Invoke(ctx, t)
}

// disableFailed handles a fatal outcome: persist the disable before the job
// is torn down, then tell the operator exactly once.
func (s *Service) disableFailed(t store.Task, outcome Outcome, cause error) {
	if err := s.store.Mutate(t.ID, func(t *store.Task) { t.Enabled = false }); err != nil {
		s.log.Error("disable after fatal outcome failed", logx.String("id", t.ID), logx.Err(err))
	}
	if err := s.store.Save(); err != nil {
		s.log.Error("store save after disable failed", logx.Err(err))
	}
	s.eng.Remove(t.ID)

	s.publish("task.disabled", t, outcome.String(), errText(cause))
	s.log.Warn("task auto-disabled",
		logx.String("id", t.ID),
		logx.String("tenant", t.Tenant),
		logx.String("name", t.Name),
		logx.String("outcome", outcome.String()),
		logx.Err(cause))

	if s.notifier != nil {
		nctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.notifier.Notify(nctx, notify.Notification{
			Tenant:   t.Tenant,
			TaskID:   t.ID,
			Priority: 7,
			Text:     fmt.Sprintf("task %q was disabled: %s", t.Name, outcome),
		})
		if err != nil && !errors.Is(err, notify.ErrDisabled) {
			s.log.Debug("disable notification not delivered", logx.Err(err))
		}
	}
}

func (s *Service) record(t store.Task, at time.Time, took time.Duration, outcome Outcome, cause error) {
	if s.history == nil {
		return
	}
	// Fresh context: the invocation may have exhausted its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.history.Append(ctx, history.Record{
		TaskID:  t.ID,
		Tenant:  t.Tenant,
		At:      at,
		Took:    took,
		Outcome: outcome.String(),
		Error:   errText(cause),
	})
	if err != nil && !errors.Is(err, history.ErrDisabled) {
		s.log.Debug("history append failed", logx.Err(err))
	}
}

// History returns the most recent fires of one task, newest first.
func (s *Service) History(ctx context.Context, id string, limit int) ([]history.Record, error) {
	if _, ok := s.store.Task(id); !ok {
		return nil, store.ErrNotFound
	}
	recs, err := s.history.Recent(ctx, id, limit)
	if errors.Is(err, history.ErrDisabled) {
		return nil, nil
	}
	return recs, err
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package recurrence defines the persisted description of *when* a task
// should run and compiles it into concrete triggers.
//
// A Spec is either interval-based ("every 2 hours") or calendar-based
// (cron-style field expressions). An interval spec bounded to a daily
// clock window is compiled into a calendar trigger covering exactly that
// window. Compiled triggers are stateless and never persisted; they are
// recomputed whenever the spec or the tenant timezone changes.
package recurrence

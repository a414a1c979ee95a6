// Package scheduler owns the task lifecycle: creation and edits, the
// enable-time safety gate, reconciliation of the live job table against the
// store, and execution with outcome-based disabling.
//
// The service is the only writer of task state. Host applications plug in
// an ActionInvoker (what a fire actually does), a TargetResolver (does the
// destination still exist) and a Notifier (how operators hear about
// auto-disabled tasks).
package scheduler

// Package store is the durable home for scheduled tasks and per-tenant
// settings.
//
// The whole store is one JSON document, loaded into memory at startup and
// written back atomically (temp file + rename + fsync) on mutation. Saves
// can be coalesced so rapid edits don't amplify into rapid disk writes; the
// in-memory state stays authoritative if a write fails.
package store

// Package credstore holds per-principal credential records for the broker.
//
// A record is scoped to one (principal, capability) pair and is never
// shared across principals. The capability key is derived from the
// canonical scope set, so two requests for the same scopes by the same
// principal resolve to the same stored credential.
//
// Two implementations are provided: MemoryStore for tests and single
// process deployments, and FileStore for persistence across restarts.
// Both are safe for concurrent use from independent sessions.
package credstore

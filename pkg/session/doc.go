// Package session keeps the chat sessions of the UI in memory.
//
// Invariants:
// - At most one send is in flight per session (Begin/release).
// - Sends on one session are at least the minimum interval apart (Allow).
// - Idle sessions are expired by the Janitor, never while a send is in flight.
//
// Usage:
//
//	store := session.NewStore(session.WithMinInterval(2 * time.Second))
//	id, sess, _ := store.Create()
//	if err := store.Allow(id); err != nil { ... }
//	_, release, err := store.Begin(id)
//	defer release()
package session

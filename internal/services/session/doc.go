// Package session creates, restores and tracks DM protocol sessions.
//
// Manager is the arena owning every live Session, keyed by address. It
// loads or generates the per-address database key through the local key
// store, constructs protocol clients, and keeps their conversation lists
// warm with a background sync. Creation for one address is exclusive;
// unrelated addresses never wait on each other.
package session

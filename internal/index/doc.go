// Package index provides an HTTP implementation of the domain.IndexClient
// interface.
//
// The backend index stores signed topic registrations so push
// notifications can be routed per conversation, and serves the legacy
// accepted/blocked topic lists of an address.
//
// All requests are JSON over HTTP and accept a context for cancellation and
// deadlines. Non-2xx statuses are returned as *StatusError carrying the
// method, path and status; 5xx and 429 responses are transient.
package index

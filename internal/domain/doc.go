// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// The interfaces describe the boundary with the two protocol SDKs (the DM
// network and the group network), the backend index and content storage.
// Orchestration code in internal/services depends only on these contracts.
package domain

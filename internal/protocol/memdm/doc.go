// Package memdm is an in-process DM protocol network.
//
// It implements the domain DM client interfaces entirely in memory: inbox
// creation requires a wallet signature, restoring an inbox requires the
// database key it was created with, conversations are shared between the
// two participants, and each inbox keeps its own native consent list.
// The CLI demo and the service tests use it in place of a remote SDK.
package memdm

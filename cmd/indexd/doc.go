// Package main runs the in-memory backend index used by dualinbox during
// development and tests. It stores signed topic registrations, serves the
// legacy consent preferences derived from them, and holds attachment
// ciphertext in a content-addressed blob store.
//
// The HTTP API is documented in package indexserver. The listen address is
// Server.Listen from the configuration file, :8080 by default.
//
// All state is held in memory and lost on process exit. The index never
// sees plaintext or private keys; it only stores ciphertext, signatures and
// public keys.
package main

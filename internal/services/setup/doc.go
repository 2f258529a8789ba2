// Package setup drives onboarding of an address onto both protocols.
//
// The machine moves Initial → {RegisterDM, RegisterGroup} →
// QuerySubscriptions → Complete. Which registration states are visited is
// decided once, at Start, from the keys already in the local store. Any
// failure moves to Error, which drops the wallet signer and only Reset
// leaves.
package setup

package types

import "time"

// KeyKind selects which protocol a locally persisted key belongs to.
type KeyKind string

const (
	// KeyDM is the random 32-byte database key of the DM protocol client.
	KeyDM KeyKind = "dm"
	// KeyGroup is the private key derived for the group protocol.
	KeyGroup KeyKind = "group"
)

// Resolution caches a name lookup result for one subject.
type Resolution struct {
	Subject  string    `cbor:"subject"`
	Address  Address   `cbor:"address"`
	Name     string    `cbor:"name"`
	Resolved time.Time `cbor:"resolved"`
}

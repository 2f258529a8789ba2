// Package store provides the local key and cache store of dualinbox.
//
// DB is a single bbolt database holding per-address protocol keys, the
// active-address marker, cached name resolutions, decrypted group messages
// and group user profiles. Values are CBOR encoded. When a passphrase is
// configured, protocol keys are sealed at rest with a scrypt-derived key.
//
// WalletFileStore keeps the development wallet seed in an encrypted file
// next to the database.
package store

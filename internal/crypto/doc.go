// Package crypto exposes the minimal primitives used by dualinbox.
//
// Contents
//
//   - Ed25519 wallet key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519, AddressFromPublicKey)
//   - Random protocol keys (NewKey)
//   - Remote attachment sealing: HKDF-SHA256 key derivation from a per-file
//     secret and salt, ChaCha20-Poly1305 encryption and a SHA-256 content
//     digest of the ciphertext (SealAttachment, OpenAttachment, Digest)
//   - Best-effort memory wiping for sensitive byte slices (Wipe)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// The wire cryptography of the DM and group protocols lives in their SDKs;
// nothing here participates in it.
package crypto

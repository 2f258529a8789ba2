// Package attachment sends and loads encrypted remote attachments.
//
// A file is CBOR encoded, sealed under a fresh content key, uploaded to
// content-addressed storage and announced to the peer as a remote
// attachment descriptor carrying the key material and the ciphertext
// digest. Receivers verify the digest of the downloaded bytes before
// decrypting anything.
package attachment

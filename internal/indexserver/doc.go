// Package indexserver implements the HTTP API of cmd/indexd, the backend
// index used during development and tests.
//
// HTTP API
//
//	POST /v1/topics/register
//	    Store signed consent assertions for an owner's conversation
//	    topics. Registrations whose signature does not verify against the
//	    inbox key in signedPublicKey are skipped. Replies {"count": N}.
//
//	GET /v1/consent/{address}
//	    Return the legacy accept/block topic lists derived from the
//	    registrations of {address}. 404 if the address never registered.
//
//	PUT /v1/blobs/
//	    Store the request body under the hex SHA-256 of its bytes and reply
//	    with the blob URL as plain text.
//
//	GET /v1/blobs/{digest}
//	    Return the stored blob.
//
//	GET /metrics
//	    Prometheus metrics.
//
// All state is held in memory and lost on process exit. The server never
// sees plaintext: blobs are attachment ciphertext.
package indexserver

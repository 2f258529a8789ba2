// Package group adapts the group protocol client for badge-gated chats.
//
// History is paginated by thread hash: the first page starts at the hash
// the network reports for the chat, and each following page starts at the
// link of the oldest message already held. Decrypted messages are cached by
// their immutable content link so no message is decrypted twice.
package group

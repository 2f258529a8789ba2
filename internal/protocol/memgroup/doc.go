// Package memgroup is an in-process group protocol network.
//
// Users register with a key derived from a wallet signature. Group chats
// are hash-linked threads: every message carries its own content link and
// the link of its predecessor, so history is walked backwards from a thread
// hash. Message bodies are sealed with a per-chat key that is wrapped for
// each member.
package memgroup

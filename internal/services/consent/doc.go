// Package consent resolves the tri-state consent of DM conversations.
//
// The protocol-native consent store is authoritative. While a conversation
// is still unknown there, the legacy accepted/blocked topic lists fetched
// from the backend index are consulted once and, on a match, written into
// the native store. After that the legacy lists are never read for that
// conversation again.
package consent

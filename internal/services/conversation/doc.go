// Package conversation maintains the DM conversation timeline.
//
// Synchronizer lists an inbox's conversations, loads the newest message and
// the consent state of each with bounded concurrency, and keeps a timeline
// sorted newest first with one entry per topic. Incoming messages are
// folded into the timeline by copy-and-replace, so a Timeline value handed
// out is never mutated afterwards. Listener feeds the all-conversations
// message stream into the synchronizer and the notification hub.
package conversation

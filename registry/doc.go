// Package registry implements the gateway's connection registry: an in-memory,
// mutation-safe directory of all live WebSocket sessions.
//
// Sessions are indexed by four independent access patterns:
//   - Broadcast sets: every session subscribed to a service's multicast messages
//   - Connection groups: arbitrary caller-defined clusters for targeted fan-out
//   - Connection store: single named slots for point-to-point retrieval
//   - Relay maps: outbound client sessions keyed by connector and originating
//     server session, used to mediate traffic toward remote peers
//
// The registry has no internal goroutines. All operations are synchronous and
// safe to call concurrently from any number of connection-handling goroutines.
// Each index is guarded independently; a cross-index operation such as
// PurgeSession applies the per-index removal to each index in turn, so another
// goroutine may observe the session gone from one index before another.
//
// The registry never closes a session. The transport layer owns the session
// lifecycle and must call PurgeSession exactly once after a connection closes.
package registry

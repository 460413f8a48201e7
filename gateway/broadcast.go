package gateway

import (
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/meshbridge/wsgate/registry"
)

// Broadcaster fans application messages out to live sessions looked up in the
// registry. An absent service, group, or connection name means "nothing to
// send", never an error.
type Broadcaster struct {
	Logger polylog.Logger

	Registry *registry.Registry
}

// BroadcastToService sends a message to every session in the service's
// broadcast set and returns the number of sessions it was delivered to.
func (b *Broadcaster) BroadcastToService(service string, messageType int, data []byte) int {
	return b.send(b.Registry.BroadcastSessions(service), messageType, data)
}

// SendToGroup sends a message to every session in the named connection group
// and returns the number of sessions it was delivered to.
func (b *Broadcaster) SendToGroup(group string, messageType int, data []byte) int {
	return b.send(b.Registry.GroupSessions(group), messageType, data)
}

// SendToStored sends a message to the session retained under the given
// connection name. It reports whether the message was delivered; false covers
// both an absent name and a failed write.
func (b *Broadcaster) SendToStored(connectionName string, messageType int, data []byte) bool {
	session, ok := b.Registry.StoredConnection(connectionName)
	if !ok {
		return false
	}

	if err := session.WriteMessage(messageType, data); err != nil {
		b.Logger.Warn().
			Err(err).
			Str("connection_name", connectionName).
			Str("session_id", session.ID()).
			Msg("failed to send message to stored connection")
		return false
	}
	return true
}

// send writes a message to each session, skipping sessions whose write fails.
// A dead session is removed from the registry by its own read loop, not here.
func (b *Broadcaster) send(sessions []registry.Session, messageType int, data []byte) int {
	delivered := 0
	for _, session := range sessions {
		if err := session.WriteMessage(messageType, data); err != nil {
			b.Logger.Warn().
				Err(err).
				Str("session_id", session.ID()).
				Msg("failed to deliver broadcast message")
			continue
		}
		delivered++
	}
	return delivered
}

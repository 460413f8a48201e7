package registry

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"github.com/pokt-network/poktroll/pkg/polylog"
)

// DefaultSessionKey is the reserved key under which a connector's initial
// client session is seeded when the connector is attached. Server sessions are
// recorded under their own session ids alongside it.
const DefaultSessionKey = "default"

// Session is an opaque handle to one live, bidirectional WebSocket connection.
// Implementations are shared by reference between every index that stores them
// and are distinguished by their process-unique id.
//
// The registry only stores and retrieves sessions; it never closes them.
// Writing is exposed here because the registry's callers (broadcast and relay
// dispatch logic) fan messages out to the sessions they look up.
type Session interface {
	// ID returns the session's process-unique identifier.
	ID() string

	// WriteMessage writes a single message to the underlying connection.
	// messageType is a gorilla/websocket message type.
	WriteMessage(messageType int, data []byte) error
}

// Connector is an opaque handle to a configured outbound-relay target.
// Connectors are distinguished by identity, not by value: implementations are
// pointers, and the registry uses them directly as map keys.
type Connector interface {
	// TargetURL returns the remote WebSocket URL the connector dials.
	TargetURL() string

	// ClientService returns the name of the local client service that owns
	// sessions established through this connector.
	ClientService() string
}

// RelayContext carries opaque connection context from the transport layer that
// accepted a server session through to the Initiator establishing the matching
// outbound relay sessions.
type RelayContext struct {
	// RemoteAddr is the network address of the accepted client connection.
	RemoteAddr string

	// Header holds the HTTP headers of the upgrade request, forwarded to the
	// relay target on establishment.
	Header http.Header
}

// Initiator establishes outbound relay sessions on behalf of the registry.
// It is expected to apply its own timeout policy to the network I/O it
// performs; the registry imposes no additional timeout.
type Initiator interface {
	Establish(ctx context.Context, connector Connector, relayCtx RelayContext) (Session, error)
}

// Registry is the connection registry. It must be constructed with New and
// shared by reference; an explicitly constructed instance (rather than a
// process-wide singleton) keeps state visible and lets tests run independent
// registries side by side.
type Registry struct {
	logger    polylog.Logger
	initiator Initiator

	// broadcast holds each service's broadcast set: service name -> session id -> session.
	broadcastMu sync.RWMutex
	broadcast   map[string]map[string]Session

	// groups holds caller-defined connection groups: group name -> session id -> session.
	groupsMu sync.RWMutex
	groups   map[string]map[string]Session

	// store holds single named connection slots: connection name -> session.
	storeMu sync.RWMutex
	store   map[string]Session

	// tags maps a client session id to the name of the client service that
	// owns it, used to dispatch inbound relay replies.
	tagsMu sync.RWMutex
	tags   map[string]string

	// relayMu guards both relay indices: the connectors attached under each
	// parent service and, per connector, the client session established for
	// each server session. The two are always consulted together.
	relayMu           sync.RWMutex
	parentConnectors  map[string][]Connector
	connectorSessions map[Connector]map[string]Session
}

// New creates an empty connection registry. The initiator is consulted by
// RegisterServerSession to establish outbound relay sessions; it may be nil
// for registries that never serve services with attached connectors.
func New(logger polylog.Logger, initiator Initiator) *Registry {
	return &Registry{
		logger:    logger.With("component", "registry"),
		initiator: initiator,

		broadcast:         make(map[string]map[string]Session),
		groups:            make(map[string]map[string]Session),
		store:             make(map[string]Session),
		tags:              make(map[string]string),
		parentConnectors:  make(map[string][]Connector),
		connectorSessions: make(map[Connector]map[string]Session),
	}
}

/* --------------------------------- Broadcast Sets -------------------------------- */

// AddToBroadcast inserts session into the broadcast set of the given service,
// creating the set on first use. Adding a session already in the set is a no-op.
func (r *Registry) AddToBroadcast(service string, session Session) {
	r.broadcastMu.Lock()
	defer r.broadcastMu.Unlock()

	sessions, ok := r.broadcast[service]
	if !ok {
		sessions = make(map[string]Session)
		r.broadcast[service] = sessions
	}
	sessions[session.ID()] = session
}

// RemoveFromBroadcast removes session from the service's broadcast set.
// A missing service or session is a no-op, not an error.
func (r *Registry) RemoveFromBroadcast(service string, session Session) {
	r.broadcastMu.Lock()
	defer r.broadcastMu.Unlock()

	if sessions, ok := r.broadcast[service]; ok {
		delete(sessions, session.ID())
	}
}

// BroadcastSessions returns every session in the service's broadcast set, in
// no significant order. It returns nil if the service key was never created;
// callers treat that as "nothing to send".
func (r *Registry) BroadcastSessions(service string) []Session {
	r.broadcastMu.RLock()
	defer r.broadcastMu.RUnlock()

	sessions, ok := r.broadcast[service]
	if !ok {
		return nil
	}
	return collectSessions(sessions)
}

/* --------------------------------- Connection Groups -------------------------------- */

// AddToGroup inserts session into the named connection group, creating the
// group on first use. Adding a session already in the group is a no-op.
func (r *Registry) AddToGroup(group string, session Session) {
	r.groupsMu.Lock()
	defer r.groupsMu.Unlock()

	sessions, ok := r.groups[group]
	if !ok {
		sessions = make(map[string]Session)
		r.groups[group] = sessions
	}
	sessions[session.ID()] = session
}

// RemoveFromGroup removes session from the named group. It reports whether the
// group existed; callers use this to decide whether to log a warning, it is
// not a failure signal.
func (r *Registry) RemoveFromGroup(group string, session Session) bool {
	r.groupsMu.Lock()
	defer r.groupsMu.Unlock()

	sessions, ok := r.groups[group]
	if !ok {
		return false
	}
	delete(sessions, session.ID())
	return true
}

// RemoveGroup removes the whole named group. It reports whether the group existed.
func (r *Registry) RemoveGroup(group string) bool {
	r.groupsMu.Lock()
	defer r.groupsMu.Unlock()

	if _, ok := r.groups[group]; !ok {
		return false
	}
	delete(r.groups, group)
	return true
}

// GroupSessions returns every session in the named group, in no significant
// order, or nil if the group was never created.
func (r *Registry) GroupSessions(group string) []Session {
	r.groupsMu.RLock()
	defer r.groupsMu.RUnlock()

	sessions, ok := r.groups[group]
	if !ok {
		return nil
	}
	return collectSessions(sessions)
}

/* --------------------------------- Connection Store -------------------------------- */

// StoreConnection retains session under the given connection name for later
// point-to-point retrieval. An existing session under the same name is
// overwritten: last write wins.
func (r *Registry) StoreConnection(connectionName string, session Session) {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	r.store[connectionName] = session
}

// RemoveStoredConnection removes the named slot from the connection store.
// It reports whether the name existed.
func (r *Registry) RemoveStoredConnection(connectionName string) bool {
	r.storeMu.Lock()
	defer r.storeMu.Unlock()

	if _, ok := r.store[connectionName]; !ok {
		return false
	}
	delete(r.store, connectionName)
	return true
}

// StoredConnection returns the session retained under the given connection
// name, and whether one was found.
func (r *Registry) StoredConnection(connectionName string) (Session, bool) {
	r.storeMu.RLock()
	defer r.storeMu.RUnlock()

	session, ok := r.store[connectionName]
	return session, ok
}

/* --------------------------------- Server Session Registration -------------------------------- */

// RegisterServerSession registers a newly accepted inbound session for a
// service. If the service has relay connectors attached, a new outbound client
// session is established for each connector using the supplied relay context;
// each client session is tagged with the connector's client service name and
// recorded under the connector, keyed by the server session's id. The server
// session is then added to the service's broadcast set.
//
// Establishment failure for any connector aborts the remaining connectors and
// returns the error. Client sessions established earlier in the same call are
// NOT rolled back and remain recorded under their connectors.
func (r *Registry) RegisterServerSession(ctx context.Context, service string, session Session, relayCtx RelayContext) error {
	logger := r.logger.With(
		"method", "RegisterServerSession",
		"service", service,
		"session_id", session.ID(),
	)

	// Snapshot the connector list so relay establishment, which blocks on
	// network I/O inside the initiator, runs without holding relayMu.
	r.relayMu.RLock()
	connectors := slices.Clone(r.parentConnectors[service])
	r.relayMu.RUnlock()

	for _, connector := range connectors {
		clientSession, err := r.initiator.Establish(ctx, connector, relayCtx)
		if err != nil {
			return fmt.Errorf("RegisterServerSession: establishing relay session for service %s: %w", service, err)
		}

		r.TagClientSession(clientSession, connector.ClientService())

		r.relayMu.Lock()
		sessions, ok := r.connectorSessions[connector]
		if !ok {
			sessions = make(map[string]Session)
			r.connectorSessions[connector] = sessions
		}
		sessions[session.ID()] = clientSession
		r.relayMu.Unlock()

		logger.Debug().
			Str("target_url", connector.TargetURL()).
			Str("client_session_id", clientSession.ID()).
			Msg("established relay session for server session")
	}

	r.AddToBroadcast(service, session)
	return nil
}

/* --------------------------------- Client Session Tags -------------------------------- */

// TagClientSession records which client service the given relay session
// belongs to, resolved later by ClientServiceName to route inbound replies.
func (r *Registry) TagClientSession(clientSession Session, clientService string) {
	r.tagsMu.Lock()
	defer r.tagsMu.Unlock()

	r.tags[clientSession.ID()] = clientService
}

// ClientServiceName returns the name of the client service that owns the given
// relay session. It returns ErrDispatchTargetUnknown if the session was never
// tagged; the caller must abandon routing that message.
func (r *Registry) ClientServiceName(clientSession Session) (string, error) {
	r.tagsMu.RLock()
	defer r.tagsMu.RUnlock()

	clientService, ok := r.tags[clientSession.ID()]
	if !ok {
		return "", ErrDispatchTargetUnknown
	}
	return clientService, nil
}

/* --------------------------------- Relay Connectors -------------------------------- */

// AttachConnector appends connector to the parent service's connector list,
// creating the list on first use, and seeds the connector's session map with
// initialSession under the reserved default key. Connector lists only grow;
// there is no detach operation.
func (r *Registry) AttachConnector(parentService string, connector Connector, initialSession Session) {
	r.relayMu.Lock()
	defer r.relayMu.Unlock()

	r.parentConnectors[parentService] = append(r.parentConnectors[parentService], connector)
	r.connectorSessions[connector] = map[string]Session{DefaultSessionKey: initialSession}
}

// AttachConnectorStandalone seeds the connector's session map with the given
// session without associating the connector to any parent service. Used for
// relays created outside any WebSocket-serving context.
func (r *Registry) AttachConnectorStandalone(connector Connector, session Session) {
	r.relayMu.Lock()
	defer r.relayMu.Unlock()

	r.connectorSessions[connector] = map[string]Session{DefaultSessionKey: session}
}

// ServiceConnectors returns the connectors attached under the given parent
// service, in attachment order, or nil if none were attached.
func (r *Registry) ServiceConnectors(parentService string) []Connector {
	r.relayMu.RLock()
	defer r.relayMu.RUnlock()

	return slices.Clone(r.parentConnectors[parentService])
}

// SessionsForConnector returns every client session established through the
// given connector, including its seed session. It returns an empty slice,
// never nil, for an unknown connector.
func (r *Registry) SessionsForConnector(connector Connector) []Session {
	r.relayMu.RLock()
	defer r.relayMu.RUnlock()

	sessions := make([]Session, 0, len(r.connectorSessions[connector]))
	for _, session := range r.connectorSessions[connector] {
		sessions = append(sessions, session)
	}
	return sessions
}

// ClientSessionForConnector returns the client session established through the
// given connector for the given server session, and whether one was found.
func (r *Registry) ClientSessionForConnector(connector Connector, serverSession Session) (Session, bool) {
	r.relayMu.RLock()
	defer r.relayMu.RUnlock()

	sessions, ok := r.connectorSessions[connector]
	if !ok {
		return nil, false
	}
	clientSession, ok := sessions[serverSession.ID()]
	return clientSession, ok
}

/* --------------------------------- Close-Time Cleanup -------------------------------- */

// PurgeSession removes session from every broadcast set, every connection
// group, and the connection store. It scans all three indices unconditionally,
// so it is safe regardless of which indices the caller knows the session is in,
// and it is idempotent: purging twice, or purging a session that was never
// registered, is a no-op.
//
// The relay indices are intentionally NOT touched: client sessions recorded
// under a connector stay until the connector itself is dropped, mirroring the
// attach-only lifecycle of connectors.
func (r *Registry) PurgeSession(session Session) {
	sessionID := session.ID()

	r.broadcastMu.Lock()
	for _, sessions := range r.broadcast {
		delete(sessions, sessionID)
	}
	r.broadcastMu.Unlock()

	r.groupsMu.Lock()
	for _, sessions := range r.groups {
		delete(sessions, sessionID)
	}
	r.groupsMu.Unlock()

	r.storeMu.Lock()
	for connectionName, stored := range r.store {
		if stored.ID() == sessionID {
			delete(r.store, connectionName)
		}
	}
	r.storeMu.Unlock()

	r.logger.Debug().Str("session_id", sessionID).Msg("purged session from all indices")
}

// collectSessions flattens a session-id-keyed map into a slice.
// Callers must hold the read lock of the index being collected.
func collectSessions(sessions map[string]Session) []Session {
	collected := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		collected = append(collected, session)
	}
	return collected
}

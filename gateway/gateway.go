// Package gateway implements the session lifecycle source for the connection
// registry: it accepts inbound WebSocket connections, registers the resulting
// server sessions with the registry (which establishes any configured relay
// sessions), mediates traffic between server sessions and their relay
// sessions, and purges sessions from the registry when a connection closes.
package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/meshbridge/wsgate/log"
	"github.com/meshbridge/wsgate/metrics"
	"github.com/meshbridge/wsgate/registry"
	"github.com/meshbridge/wsgate/websockets"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO_IMPROVE: gather allowed origins from the config YAML.
		return true
	},
}

// Gateway accepts WebSocket upgrade requests for locally served services and
// drives each accepted session's lifecycle against the registry:
//
//	accept -> RegisterServerSession -> read loop -> PurgeSession on close
//
// The registry is injected rather than reached through a package-level
// singleton so multiple gateways can run independent registries under test.
type Gateway struct {
	Logger polylog.Logger

	// Registry is the connection registry all accepted sessions are tracked in.
	Registry *registry.Registry
}

// Name satisfies the health.Check interface.
func (g *Gateway) Name() string {
	return "gateway"
}

// IsAlive satisfies the health.Check interface. The gateway is ready as soon
// as its registry is wired.
func (g *Gateway) IsAlive() bool {
	return g.Registry != nil
}

// HandleWebsocketRequest upgrades the HTTP request to a WebSocket connection
// and registers the new server session for the given service. Registration
// establishes one relay session per connector attached to the service; if any
// establishment fails the connection is closed with a policy-violation close
// code and the session never joins the broadcast set.
func (g *Gateway) HandleWebsocketRequest(w http.ResponseWriter, r *http.Request, service string) {
	logger := g.Logger.With(
		"method", "HandleWebsocketRequest",
		"service", service,
		"remote_addr", r.RemoteAddr,
	)

	relayCtx := registry.RelayContext{
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header.Clone(),
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := websockets.NewSession(g.Logger.With("service", service), conn)

	if err := g.Registry.RegisterServerSession(r.Context(), service, session, relayCtx); err != nil {
		logger.Error().Err(err).Msg("failed to register server session")
		metrics.RelayEstablishmentFailed(service)

		if err := session.CloseWithMessage(websocket.ClosePolicyViolation, "relay establishment failed"); err != nil {
			logger.Debug().Err(err).Msg("failed to close session after registration failure")
		}
		return
	}

	metrics.SessionOpened(service)
	for range g.Registry.ServiceConnectors(service) {
		metrics.RelayEstablished(service)
	}

	logger.Info().Str("session_id", session.ID()).Msg("server session registered")

	go g.serveSession(service, session)
}

// serveSession runs a server session until its connection closes: it keeps the
// connection alive, forwards inbound frames to the session's relay sessions,
// and pumps relay replies back. On exit it purges the session from every
// registry index and closes the connection; the relay maps are left to the
// connectors' attach-only lifecycle.
func (g *Gateway) serveSession(service string, session *websockets.Session) {
	logger := g.Logger.With(
		"method", "serveSession",
		"service", service,
		"session_id", session.ID(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go session.Keepalive(ctx)

	// One reply pump per relay session established for this server session.
	relaySessions := g.relaySessions(service, session)
	for _, relaySession := range relaySessions {
		go g.relayReplyLoop(ctx, relaySession, session)
	}

	defer func() {
		g.Registry.PurgeSession(session)
		if err := session.Close(); err != nil {
			logger.Debug().Err(err).Msg("error closing server session connection")
		}
		metrics.SessionPurged(service)
		logger.Info().Msg("server session purged")
	}()

	for {
		messageType, message, err := session.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("server session closed unexpectedly")
			}
			return
		}

		logger.Debug().Msgf("received message from client: %s", log.Preview(string(message)))
		g.forwardToRelays(logger, relaySessions, messageType, message)
	}
}

// relaySessions returns the relay sessions established for the given server
// session across every connector attached to the service.
func (g *Gateway) relaySessions(service string, session *websockets.Session) []registry.Session {
	var relaySessions []registry.Session
	for _, connector := range g.Registry.ServiceConnectors(service) {
		if relaySession, ok := g.Registry.ClientSessionForConnector(connector, session); ok {
			relaySessions = append(relaySessions, relaySession)
		}
	}
	return relaySessions
}

// forwardToRelays sends an inbound frame from a server session to each of its
// relay sessions. A write failure to one relay does not stop delivery to the
// others.
func (g *Gateway) forwardToRelays(logger polylog.Logger, relaySessions []registry.Session, messageType int, message []byte) {
	for _, relaySession := range relaySessions {
		if err := relaySession.WriteMessage(messageType, message); err != nil {
			logger.Warn().
				Err(err).
				Str("relay_session_id", relaySession.ID()).
				Msg("failed to forward message to relay session")
		}
	}
}

// relayReplyLoop reads replies from a relay session and routes them back to
// the originating server session. Each reply is dispatched under the client
// service that owns the relay session; a reply from an untagged session cannot
// be routed and is dropped.
func (g *Gateway) relayReplyLoop(ctx context.Context, relaySession registry.Session, serverSession *websockets.Session) {
	logger := g.Logger.With(
		"method", "relayReplyLoop",
		"relay_session_id", relaySession.ID(),
		"session_id", serverSession.ID(),
	)

	wsRelaySession, ok := relaySession.(*websockets.Session)
	if !ok {
		logger.Error().Msg("relay session does not expose a readable connection")
		return
	}

	for {
		messageType, message, err := wsRelaySession.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug().Err(err).Msg("relay session closed")
			}
			return
		}

		clientService, err := g.Registry.ClientServiceName(relaySession)
		if err != nil {
			if errors.Is(err, registry.ErrDispatchTargetUnknown) {
				// Fatal for this message only; the loop keeps serving.
				logger.Warn().Err(err).Msg("dropping relay reply with no dispatch target")
				continue
			}
			logger.Error().Err(err).Msg("failed to resolve client service for relay reply")
			continue
		}

		logger.Debug().
			Str("client_service", clientService).
			Msgf("routing relay reply: %s", log.Preview(string(message)))

		if err := serverSession.WriteMessage(messageType, message); err != nil {
			logger.Warn().Err(err).Msg("failed to write relay reply to server session")
			return
		}
	}
}

package websockets

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/meshbridge/wsgate/registry"
)

// HTTPHeaderForwardedFor carries the originating client's network address to
// the relay target when a relay session is established on its behalf.
const HTTPHeaderForwardedFor = "X-Forwarded-For"

var _ registry.Initiator = &Dialer{}

// Dialer is the relay initiator: it establishes outbound WebSocket sessions to
// connector targets on behalf of locally accepted server sessions. The
// handshake timeout set at construction is the only timeout policy applied;
// the registry imposes none of its own.
type Dialer struct {
	logger polylog.Logger
	dialer *websocket.Dialer
}

// NewDialer creates a relay initiator with the given handshake timeout.
func NewDialer(logger polylog.Logger, handshakeTimeout time.Duration) *Dialer {
	return &Dialer{
		logger: logger.With("component", "relay_dialer"),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Establish dials the connector's target URL and wraps the resulting
// connection in a new Session. The relay context's originating address is
// forwarded to the target. Failures wrap ErrRelayEstablishment and carry the
// target address.
func (d *Dialer) Establish(ctx context.Context, connector registry.Connector, relayCtx registry.RelayContext) (registry.Session, error) {
	targetURL := connector.TargetURL()

	u, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid target URL %s: %s", ErrRelayEstablishment, targetURL, err.Error())
	}

	conn, _, err := d.dialer.DialContext(ctx, u.String(), relayRequestHeaders(relayCtx))
	if err != nil {
		return nil, fmt.Errorf("%w: error connecting to %s: %s", ErrRelayEstablishment, targetURL, err.Error())
	}

	session := NewSession(d.logger, conn)

	d.logger.Info().
		Str("target_url", targetURL).
		Str("client_service", connector.ClientService()).
		Str("session_id", session.ID()).
		Msg("established relay connection")

	return session, nil
}

// relayRequestHeaders returns the headers sent to the relay target when
// establishing a new relay session on behalf of an accepted client connection.
func relayRequestHeaders(relayCtx registry.RelayContext) http.Header {
	headers := http.Header{}
	if relayCtx.RemoteAddr != "" {
		headers.Set(HTTPHeaderForwardedFor, relayCtx.RemoteAddr)
	}
	if origin := relayCtx.Header.Get("Origin"); origin != "" {
		headers.Set("Origin", origin)
	}
	return headers
}

package websockets

import "github.com/meshbridge/wsgate/registry"

var _ registry.Connector = &Connector{}

// Connector is a configured outbound-relay target: the remote WebSocket URL to
// dial and the name of the local client service that owns the sessions dialed
// through it.
//
// Connectors are attached once and never detached. The registry keys its relay
// maps by connector identity, so a Connector must always be handled as a
// pointer.
type Connector struct {
	targetURL     string
	clientService string
}

// NewConnector creates a connector for the given remote URL, owned by the
// given client service.
func NewConnector(targetURL, clientService string) *Connector {
	return &Connector{
		targetURL:     targetURL,
		clientService: clientService,
	}
}

// TargetURL returns the remote WebSocket URL the connector dials.
func (c *Connector) TargetURL() string {
	return c.targetURL
}

// ClientService returns the name of the client service that owns sessions
// established through this connector.
func (c *Connector) ClientService() string {
	return c.clientService
}

package config

import "time"

/* --------------------------------- Relay Config Defaults -------------------------------- */

const (
	// defaultHandshakeTimeout bounds the WebSocket handshake when establishing
	// an outbound relay session. This is the relay initiator's own timeout
	// policy; the registry imposes none of its own.
	defaultHandshakeTimeout = 10 * time.Second
)

/* --------------------------------- Relay Config Struct -------------------------------- */

// RelayConfig contains settings for establishing outbound relay sessions.
type RelayConfig struct {
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

/* --------------------------------- Relay Config Private Helpers -------------------------------- */

// hydrateRelayDefaults assigns default values to RelayConfig fields if they are not set.
func (c *RelayConfig) hydrateRelayDefaults() {
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
}

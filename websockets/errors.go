package websockets

import "errors"

var (
	// ErrRelayEstablishment indicates an outbound relay connection to a
	// connector's target could not be established. The wrapping error carries
	// the target address.
	ErrRelayEstablishment = errors.New("relay connection establishment failed")
)

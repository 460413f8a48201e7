package registry

import "errors"

var (
	// ErrDispatchTargetUnknown indicates a relay session was never tagged with a
	// client service name, so an inbound relay reply cannot be routed back to the
	// service logic that owns it. Fatal for that single message only; the
	// registry itself remains fully usable.
	ErrDispatchTargetUnknown = errors.New("cannot find the client service to dispatch the message")
)

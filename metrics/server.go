package metrics

import (
	"net/http"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const endpointMetrics = "/metrics"

// ServeMetrics starts a Prometheus metrics server on the given address.
func ServeMetrics(logger polylog.Logger, addr string) {
	// Start the server in a new goroutine
	go func() {
		logger.Info().Str("endpoint_addr", addr).Msg("starting Prometheus metrics server asynchronously.")

		mux := http.NewServeMux()
		mux.Handle(endpointMetrics, promhttp.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Msg("prometheus metrics server failed to start")
			return
		}
	}()
}

package router

import (
	"fmt"
	"net/http"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/meshbridge/wsgate/config"
)

const serviceNamePathParam = "service"

type (
	router struct {
		mux           *http.ServeMux
		gateway       gatewayHandler
		healthChecker healthChecker
		config        config.RouterConfig
		logger        polylog.Logger
	}

	// gatewayHandler accepts WebSocket upgrade requests for a named service.
	gatewayHandler interface {
		HandleWebsocketRequest(w http.ResponseWriter, req *http.Request, service string)
	}

	// healthChecker serves the gateway's readiness state.
	healthChecker interface {
		HealthzHandler(w http.ResponseWriter, req *http.Request)
	}

	// serviceChecker reports whether a service name is configured to be served.
	serviceChecker interface {
		ServesService(service string) bool
	}
)

// NewRouter creates a new router instance
func NewRouter(
	logger polylog.Logger,
	gateway gatewayHandler,
	healthChecker healthChecker,
	services serviceChecker,
	routerConfig config.RouterConfig,
) *router {
	r := &router{
		mux:           http.NewServeMux(),
		gateway:       gateway,
		healthChecker: healthChecker,
		config:        routerConfig,
		logger:        logger.With("package", "router"),
	}
	r.handleRoutes(services)
	return r
}

func (r *router) handleRoutes(services serviceChecker) {
	// GET /healthz - returns the gateway's readiness state
	r.mux.HandleFunc("GET /healthz", r.healthChecker.HealthzHandler)

	// GET /v1/ws/{service} - the entrypoint for all inbound WebSocket connections
	r.mux.HandleFunc(fmt.Sprintf("GET /v1/ws/{%s}", serviceNamePathParam), r.handleWebsocketRequest(services))
}

// Start starts the API server on the specified port
func (r *router) Start() error {
	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", r.config.Port),
		Handler:        r.mux,
		ReadTimeout:    r.config.ReadTimeout,
		IdleTimeout:    r.config.IdleTimeout,
		MaxHeaderBytes: r.config.MaxRequestHeaderBytes,
	}

	r.logger.Info().Msgf("wsgate gateway running on port %d", r.config.Port)

	if err := server.ListenAndServe(); err != nil {
		return err
	}

	return nil
}

/* --------------------------------- Handlers -------------------------------- */

// handleWebsocketRequest resolves the service name path parameter and hands
// the request to the gateway. Connections for unconfigured services are
// rejected before the upgrade.
func (r *router) handleWebsocketRequest(services serviceChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		service := req.PathValue(serviceNamePathParam)
		if !services.ServesService(service) {
			r.logger.Debug().Str("service", service).Msg("rejecting connection for unconfigured service")
			http.Error(w, fmt.Sprintf("unknown service: %s", service), http.StatusNotFound)
			return
		}

		r.gateway.HandleWebsocketRequest(w, req, service)
	}
}

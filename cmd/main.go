package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"

	configpkg "github.com/meshbridge/wsgate/config"
	"github.com/meshbridge/wsgate/gateway"
	"github.com/meshbridge/wsgate/health"
	"github.com/meshbridge/wsgate/metrics"
	"github.com/meshbridge/wsgate/registry"
	"github.com/meshbridge/wsgate/router"
	"github.com/meshbridge/wsgate/websockets"
)

// defaultConfigPath will be appended to the location of
// the executable to get the full path to the config file.
const defaultConfigPath = "config/.config.yaml"

// prometheusMetricsServerAddr is the address the Prometheus metrics server listens on.
const prometheusMetricsServerAddr = ":9090"

func main() {
	configPath, err := getConfigPath(defaultConfigPath)
	if err != nil {
		log.Fatalf("failed to get config path: %v", err)
	}

	config, err := configpkg.LoadGatewayConfigFromYAML(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	loggerOpts := []polylog.LoggerOption{
		polyzero.WithLevel(polyzero.ParseLevel(config.Logger.Level)),
	}
	logger := polyzero.NewLogger(loggerOpts...)

	logger.Info().Msgf("Starting wsgate using config file: %s", configPath)

	// The relay dialer establishes outbound sessions for every connector;
	// the registry consults it when registering inbound server sessions.
	dialer := websockets.NewDialer(logger, config.GetRelayConfig().HandshakeTimeout)
	connectionRegistry := registry.New(logger, dialer)

	if err := attachConfiguredConnectors(context.Background(), connectionRegistry, dialer, config); err != nil {
		log.Fatalf("failed to attach configured relay connectors: %v", err)
	}

	metrics.ServeMetrics(logger, prometheusMetricsServerAddr)

	gw := &gateway.Gateway{
		Logger:   logger,
		Registry: connectionRegistry,
	}

	// Until all components are ready, the `/healthz` endpoint will return a
	// 503 Service Unavailable status; once all components are ready, it will
	// return a 200 OK status.
	healthChecker := &health.Checker{
		Logger:          logger,
		Components:      []health.Check{gw},
		ServiceReporter: config,
	}

	apiRouter := router.NewRouter(logger, gw, healthChecker, config, config.GetRouterConfig())
	if err := apiRouter.Start(); err != nil {
		log.Fatalf("failed to start API router: %v", err)
	}
}

// attachConfiguredConnectors builds a relay connector for every configured
// relay target and attaches it under its parent service, establishing and
// seeding each connector's initial client session.
func attachConfiguredConnectors(
	ctx context.Context,
	connectionRegistry *registry.Registry,
	dialer *websockets.Dialer,
	config configpkg.GatewayConfig,
) error {
	for service, serviceConfig := range config.Services {
		for _, target := range serviceConfig.RelayTargets {
			connector := websockets.NewConnector(target.TargetURL, target.ClientService)

			seedSession, err := dialer.Establish(ctx, connector, registry.RelayContext{})
			if err != nil {
				return fmt.Errorf("service %s: %w", service, err)
			}

			connectionRegistry.TagClientSession(seedSession, target.ClientService)
			connectionRegistry.AttachConnector(service, connector, seedSession)
		}
	}
	return nil
}

// getConfigPath returns the full path to the config file
// based on the provided flag or the default value.
//
// E.g. if the binary is in `/app` and the flag is not set,
// the config file path will be `/app/config/.config.yaml`
func getConfigPath(defaultConfigPath string) (string, error) {
	var configPath string
	flag.StringVar(&configPath, "config", "", "override the default config path")
	flag.Parse()

	if configPath != "" {
		return configPath, nil
	}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	return filepath.Join(filepath.Dir(exePath), defaultConfigPath), nil
}

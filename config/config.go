package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* --------------------------------- Gateway Config Struct -------------------------------- */

// GatewayConfig is the top level struct that contains configuration details
// parsed from a YAML config file. It contains all the configuration needed to
// operate the gateway: the HTTP server, logging, relay establishment, and the
// set of locally served services with their relay targets.
type (
	GatewayConfig struct {
		Router RouterConfig `yaml:"router_config"`
		Logger LoggerConfig `yaml:"logger_config"`
		Relay  RelayConfig  `yaml:"relay_config"`

		// Services maps each locally served service name to its configuration.
		// A connection to /v1/ws/{service} is only accepted for services
		// listed here.
		Services map[string]ServiceConfig `yaml:"services"`
	}

	ServiceConfig struct {
		// RelayTargets lists the outbound relay connectors created for the
		// service at startup. Every inbound session accepted for the service
		// gets one relay session per target.
		RelayTargets []RelayTargetConfig `yaml:"relay_targets"`
	}

	RelayTargetConfig struct {
		// TargetURL is the remote WebSocket URL the connector dials.
		TargetURL string `yaml:"target_url"`
		// ClientService names the local client service that owns sessions
		// established through this connector; relay replies are dispatched
		// under this name.
		ClientService string `yaml:"client_service"`
	}
)

// LoadGatewayConfigFromYAML reads a YAML configuration file from the specified
// path and unmarshals its content into a GatewayConfig instance.
func LoadGatewayConfigFromYAML(path string) (GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return GatewayConfig{}, err
	}

	var config GatewayConfig
	if err = yaml.Unmarshal(data, &config); err != nil {
		return GatewayConfig{}, err
	}

	// hydrate required fields and set defaults for optional fields
	config.Router.hydrateRouterDefaults()
	config.Logger.hydrateLoggerDefaults()
	config.Relay.hydrateRelayDefaults()

	return config, config.validate()
}

/* --------------------------------- Gateway Config Methods -------------------------------- */

func (c GatewayConfig) GetRouterConfig() RouterConfig {
	return c.Router
}

func (c GatewayConfig) GetRelayConfig() RelayConfig {
	return c.Relay
}

// ServesService returns true if the given service name is configured to be
// served by this gateway.
func (c GatewayConfig) ServesService(service string) bool {
	_, ok := c.Services[service]
	return ok
}

// ConfiguredServices returns the names of all configured services.
func (c GatewayConfig) ConfiguredServices() []string {
	services := make([]string, 0, len(c.Services))
	for service := range c.Services {
		services = append(services, service)
	}
	return services
}

/* --------------------------------- Gateway Config Private Helpers -------------------------------- */

func (c GatewayConfig) validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}

	for service, serviceConfig := range c.Services {
		for _, target := range serviceConfig.RelayTargets {
			if target.TargetURL == "" {
				return fmt.Errorf("service %s: relay target is missing target_url", service)
			}
			if target.ClientService == "" {
				return fmt.Errorf("service %s: relay target %s is missing client_service", service, target.TargetURL)
			}
		}
	}

	return nil
}

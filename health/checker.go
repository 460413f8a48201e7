package health

import (
	"encoding/json"
	"net/http"
	"os"
	"slices"

	"github.com/pokt-network/poktroll/pkg/polylog"
)

const (
	// The image tag is set to the value of the IMAGE_TAG environment variable,
	// which is passed to the Docker image as a build argument at build time.
	imageTagEnvVar = "IMAGE_TAG"
	// If the image tag is not set by the Docker build process, the default value is "development".
	defaultImageTag = "development"
)

// The status of the health check component.
type healthCheckStatus string

const (
	// statusReady indicates that all gateway components are ready
	statusReady healthCheckStatus = "ready"
	// statusNotReady indicates that one or more gateway components are still initializing
	statusNotReady healthCheckStatus = "not_ready"
)

type (
	// health.Checker stores all components whose health needs to be checked
	// for the gateway to be considered ready to serve traffic.
	Checker struct {
		Logger          polylog.Logger
		Components      []Check
		ServiceReporter ServiceReporter
	}

	// health.Check is an interface that must be implemented
	// by components that need to report their health status
	Check interface {
		Name() string  // Name returns the name of the component being checked.
		IsAlive() bool // IsAlive returns true if the component is healthy, otherwise false.
	}

	// ServiceReporter returns the list of service names the gateway
	// instance is configured to serve.
	ServiceReporter interface {
		ConfiguredServices() []string
	}
)

// healthCheckJSON is the JSON structure of the response body
// returned by the `/healthz` endpoint along with the status code.
type healthCheckJSON struct {
	// Status is either "ready" or "not_ready".
	Status healthCheckStatus `json:"status"`
	// ImageTag is the tag of the gateway image, defaulting to `development`.
	ImageTag string `json:"imageTag"`
	// ReadyStates is a map of component names to their ready status
	ReadyStates map[string]bool `json:"readyStates,omitempty"`
	// ConfiguredServices lists the service names the gateway instance is configured for.
	ConfiguredServices []string `json:"configuredServices,omitempty"`
}

// HealthzHandler returns the health status of the gateway as a JSON response.
//
// It will return a 200 OK status code if all components are ready or
// a 503 Service Unavailable status code if any component is not ready.
func (c *Checker) HealthzHandler(w http.ResponseWriter, req *http.Request) {
	readyStates := c.getComponentReadyStates()

	status := statusReady
	for _, ready := range readyStates {
		if !ready {
			status = statusNotReady
			break
		}
	}

	imageTag := os.Getenv(imageTagEnvVar)
	if imageTag == "" {
		imageTag = defaultImageTag
	}

	response := healthCheckJSON{
		Status:      status,
		ImageTag:    imageTag,
		ReadyStates: readyStates,
	}
	if c.ServiceReporter != nil {
		services := c.ServiceReporter.ConfiguredServices()
		slices.Sort(services)
		response.ConfiguredServices = services
	}

	responseBytes, err := json.Marshal(response)
	if err != nil {
		c.Logger.Error().Err(err).Msg("error marshalling health check response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if status == statusNotReady {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if _, err := w.Write(responseBytes); err != nil {
		c.Logger.Error().Err(err).Msg("error writing health check response")
	}
}

// getComponentReadyStates returns the ready state of every registered component.
func (c *Checker) getComponentReadyStates() map[string]bool {
	readyStates := make(map[string]bool, len(c.Components))
	for _, component := range c.Components {
		readyStates[component.Name()] = component.IsAlive()
	}
	return readyStates
}

// Package metrics exports Prometheus metrics for the gateway's connection
// lifecycle and relay establishment outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// See the metrics initialization below for details.
const (
	wsgateProcess = "wsgate"

	activeSessionsName      = "active_sessions"
	sessionsOpenedTotalName = "sessions_opened_total"
	sessionsPurgedTotalName = "sessions_purged_total"
	relaysEstablishedName   = "relay_establishments_total"
)

func init() {
	prometheus.MustRegister(activeSessions)
	prometheus.MustRegister(sessionsOpenedTotal)
	prometheus.MustRegister(sessionsPurgedTotal)
	prometheus.MustRegister(relayEstablishmentsTotal)
}

var (
	// activeSessions tracks the number of currently open server sessions,
	// labeled by service. Incremented on accept, decremented on purge.
	//
	// Usage:
	// - Monitor live connection load per service.
	// - Alert on connection leaks (gauge never returning to baseline).
	activeSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Subsystem: wsgateProcess,
			Name:      activeSessionsName,
			Help:      "Number of currently open server sessions, labeled by service.",
		},
		[]string{"service"},
	)

	// sessionsOpenedTotal counts accepted server sessions per service.
	sessionsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: wsgateProcess,
			Name:      sessionsOpenedTotalName,
			Help:      "Total number of server sessions accepted, labeled by service.",
		},
		[]string{"service"},
	)

	// sessionsPurgedTotal counts close-time cleanups per service.
	sessionsPurgedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: wsgateProcess,
			Name:      sessionsPurgedTotalName,
			Help:      "Total number of server sessions purged from the registry, labeled by service.",
		},
		[]string{"service"},
	)

	// relayEstablishmentsTotal counts outbound relay establishment attempts
	// made while registering server sessions, labeled by result.
	//
	// Usage:
	// - Monitor relay target availability.
	// - Compare failure rates across deploys.
	relayEstablishmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Subsystem: wsgateProcess,
			Name:      relaysEstablishedName,
			Help:      "Total number of relay establishment attempts, labeled by service and result.",
		},
		[]string{"service", "result"},
	)
)

// SessionOpened records an accepted server session for the given service.
func SessionOpened(service string) {
	sessionsOpenedTotal.WithLabelValues(service).Inc()
	activeSessions.WithLabelValues(service).Inc()
}

// SessionPurged records the close-time cleanup of a server session.
func SessionPurged(service string) {
	sessionsPurgedTotal.WithLabelValues(service).Inc()
	activeSessions.WithLabelValues(service).Dec()
}

// RelayEstablished records a successful relay establishment for the service.
func RelayEstablished(service string) {
	relayEstablishmentsTotal.WithLabelValues(service, "success").Inc()
}

// RelayEstablishmentFailed records a failed relay establishment for the service.
func RelayEstablishmentFailed(service string) {
	relayEstablishmentsTotal.WithLabelValues(service, "failure").Inc()
}

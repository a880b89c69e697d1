// Package metrics defines the prometheus collectors of the auth service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Verification and login outcomes used as label values.
const (
	ResultOK          = "ok"
	ResultInvalid     = "invalid"
	ResultRevoked     = "revoked"
	ResultExpired     = "expired"
	ResultWrongType   = "wrong_type"
	ResultUnavailable = "unavailable"
	ResultError       = "error"
)

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	TokensIssued  *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	LoginAttempts *prometheus.CounterVec
	SweepPurged   prometheus.Counter
	SweepRuns     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldauth_tokens_issued_total",
			Help: "Tokens issued, by token type.",
		}, []string{"type"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldauth_token_verifications_total",
			Help: "Token verifications, by outcome.",
		}, []string{"result"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldauth_login_attempts_total",
			Help: "Login attempts, by outcome.",
		}, []string{"result"}),
		SweepPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldauth_sweep_purged_total",
			Help: "Tokens removed by the expiry sweep.",
		}),
		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldauth_sweep_runs_total",
			Help: "Sweep runs, by outcome.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.TokensIssued,
		m.Verifications,
		m.LoginAttempts,
		m.SweepPurged,
		m.SweepRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

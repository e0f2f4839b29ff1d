// Package metrics exposes Prometheus counters for the authentication flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the auth counters.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalidInput  = "invalid_input"
	OutcomeDuplicate     = "duplicate"
	OutcomeInvalidCreds  = "invalid_credentials"
	OutcomeRateLimited   = "rate_limited"
	OutcomeMisconfigured = "misconfigured"
	OutcomeError         = "error"
)

// Recorder is what handlers use to report auth outcomes.
type Recorder interface {
	RecordSignup(outcome string)
	RecordLogin(outcome string)
	RecordSessionRejected()
}

// Collector is the Prometheus-backed Recorder.
type Collector struct {
	signups          *prometheus.CounterVec
	logins           *prometheus.CounterVec
	sessionsRejected prometheus.Counter
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_auth_signups_total",
			Help: "Signup attempts by outcome.",
		}, []string{"outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_auth_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		sessionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_auth_sessions_rejected_total",
			Help: "Session tokens that failed verification.",
		}),
	}

	reg.MustRegister(c.signups, c.logins, c.sessionsRejected)
	return c
}

func (c *Collector) RecordSignup(outcome string) {
	c.signups.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordSessionRejected() {
	c.sessionsRejected.Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSignup(string)    {}
func (Nop) RecordLogin(string)     {}
func (Nop) RecordSessionRejected() {}

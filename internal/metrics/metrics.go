// Package metrics exposes Prometheus collectors for entitlement events.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "entitlement"

// Metrics groups the service collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	webhooks    *prometheus.CounterVec
	activations *prometheus.CounterVec
	claims      *prometheus.CounterVec
	trials      *prometheus.CounterVec
	profiles    *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_pings_total",
			Help:      "Purchase pings by outcome.",
		}, []string{"outcome"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_activations_total",
			Help:      "License activation attempts by result.",
		}, []string{"result"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "shadow_claims_total",
			Help:      "Shadow profile claim attempts by result.",
		}, []string{"result"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trial_decisions_total",
			Help:      "Trial gate decisions by action and decision.",
		}, []string{"action", "decision"}),
		profiles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "profiles",
			Help:      "Profiles by state, sampled periodically.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.webhooks, m.activations, m.claims, m.trials, m.profiles)
	return m
}

// WebhookPing counts one purchase ping by outcome.
func (m *Metrics) WebhookPing(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

// Activation counts one license activation attempt by result.
func (m *Metrics) Activation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}

// ClaimAttempt satisfies reconcile.ClaimRecorder.
func (m *Metrics) ClaimAttempt(claimed bool) {
	if m == nil {
		return
	}
	result := "no_match"
	if claimed {
		result = "claimed"
	}
	m.claims.WithLabelValues(result).Inc()
}

// TrialDecision counts one trial gate decision for action.
func (m *Metrics) TrialDecision(action string, allowed bool) {
	if m == nil {
		return
	}
	decision := "denied"
	if allowed {
		decision = "allowed"
	}
	m.trials.WithLabelValues(action, decision).Inc()
}

// SetProfiles records a sampled profile count for state.
func (m *Metrics) SetProfiles(state string, n int64) {
	if m == nil {
		return
	}
	m.profiles.WithLabelValues(state).Set(float64(n))
}

// Package observability – domain metrics
//
// This file declares the Prometheus collectors that describe what the growth
// loop did: reward outcomes, ledger spend, analytics delivery, ephemeral
// store health and open presence streams. HTTP request metrics are recorded
// by the middleware package and are not repeated here.
//
// All collectors are registered with the default registry at init, so the
// /metrics handler exposes them without extra wiring. Label values are
// bounded enums (reward types, entry types, event names, outcome classes);
// user ids never become labels.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. HTTP traffic metrics live in the middleware package;
// these describe what the growth loop did with that traffic.
var (
	// RewardOutcomes counts settled grant attempts by reward type and outcome
	// (granted, denied, replayed).
	RewardOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_grants_total",
			Help: "Reward grant attempts by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// LedgerSpendCents accumulates ledger cost by entry type. Denied entries
	// carry the would-be cost so simulations can compare the two.
	LedgerSpendCents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_spend_cents_total",
			Help: "Total ledger cost in cents by entry type.",
		},
		[]string{"entry_type"},
	)

	// AnalyticsEvents counts analytics events by name and delivery result
	// (published, dropped, failed).
	AnalyticsEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_events_total",
			Help: "Analytics events by name and delivery result.",
		},
		[]string{"event", "result"},
	)

	// EphemeralStoreErrors counts ephemeral store failures by operation and
	// error class (transient, permanent).
	EphemeralStoreErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ephemeral_store_errors_total",
			Help: "Ephemeral store errors by operation and class.",
		},
		[]string{"op", "class"},
	)

	// PresenceStreams gauges open presence push channels. The stream handler
	// increments it on subscribe and decrements it when the client leaves.
	PresenceStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "presence_streams_open",
			Help: "Currently open presence stream connections.",
		},
	)
)

// init registers every domain collector with the default registry. A
// duplicate registration panics, which surfaces at process start.
func init() {
	prometheus.MustRegister(RewardOutcomes, LedgerSpendCents, AnalyticsEvents, EphemeralStoreErrors, PresenceStreams)
}

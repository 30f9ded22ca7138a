package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation outcome labels. "empty" is the benign no-job-available claim
// result; "lost_race" covers NotOwner and already-done outcomes, which
// are expected under lease contention rather than errors.
const (
	outcomeOK       = "ok"
	outcomeEmpty    = "empty"
	outcomeLostRace = "lost_race"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var (
	claimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "dispatch",
		Name:      "claims_total",
		Help:      "Claim operations by outcome.",
	}, []string{"outcome"})

	renewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "dispatch",
		Name:      "renews_total",
		Help:      "Lease renewal operations by outcome.",
	}, []string{"outcome"})

	submitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "dispatch",
		Name:      "submits_total",
		Help:      "Guide submissions by outcome.",
	}, []string{"outcome"})

	failsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grimoire",
		Subsystem: "dispatch",
		Name:      "fails_total",
		Help:      "Failure reports by outcome.",
	}, []string{"outcome"})

	jobsByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "grimoire",
		Subsystem: "dispatch",
		Name:      "jobs_by_state",
		Help:      "Number of analysis jobs in each state, refreshed on stats reads.",
	}, []string{"state"})
)

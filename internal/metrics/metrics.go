// Package metrics exposes Prometheus instrumentation for the poller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// PollCycles counts completed poll cycles per owner outcome.
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evetrack_poll_cycles_total",
		Help: "Completed per-owner poll cycles by outcome.",
	}, []string{"outcome"})

	// TransactionsIngested counts newly ingested wallet transactions.
	TransactionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evetrack_transactions_ingested_total",
		Help: "Newly ingested wallet transactions.",
	})

	// JournalEntriesIngested counts newly ingested journal entries.
	JournalEntriesIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evetrack_journal_entries_ingested_total",
		Help: "Newly ingested wallet journal entries.",
	})

	// UndercutTransitions counts detector transitions by kind.
	UndercutTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evetrack_undercut_transitions_total",
		Help: "Undercut state transitions by kind.",
	}, []string{"kind"})

	// EventsPublished counts events handed to the buffer by kind.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "evetrack_events_published_total",
		Help: "Events published to the delivery buffer by kind.",
	}, []string{"kind"})

	// BackfillSteps counts gradual backfill pages fetched.
	BackfillSteps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "evetrack_backfill_steps_total",
		Help: "Gradual backfill pages fetched.",
	})

	// TrackedOwners is the current roster size.
	TrackedOwners = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "evetrack_tracked_owners",
		Help: "Owners currently being polled.",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

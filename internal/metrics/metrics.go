// Package metrics exposes the engine's activity counters on the default
// prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesScanned counts raw messages returned by mail providers.
	MessagesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_messages_scanned_total",
		Help: "Raw messages returned by mail providers.",
	})

	// MessagesSaved counts messages that passed filtering and were stored.
	MessagesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_messages_saved_total",
		Help: "Messages ingested into the store.",
	})

	// MessagesFiltered counts rejected messages by reason.
	MessagesFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "efm_messages_filtered_total",
		Help: "Messages rejected by the inbound filter.",
	}, []string{"reason"})

	// MessagesDuplicate counts idempotency skips.
	MessagesDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_messages_duplicate_total",
		Help: "Messages skipped because their external id was already ingested.",
	})

	// ClientsCreated counts clients synthesized or promoted during sync.
	ClientsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_clients_created_total",
		Help: "Clients created by the sync coordinator.",
	})

	// RequestsCreated counts structured requests extracted from messages.
	RequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_requests_created_total",
		Help: "Structured requests extracted by the classifier.",
	})

	// LeadCandidates counts candidates surviving lead-discovery filtering.
	LeadCandidates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "efm_lead_candidates_total",
		Help: "Lead candidates returned per discovery mode.",
	}, []string{"mode"})

	// BackupRuns counts backup executions by outcome.
	BackupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "efm_backup_runs_total",
		Help: "Backup runs by outcome.",
	}, []string{"status"})

	// SyncErrors counts per-contact provider failures.
	SyncErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "efm_sync_errors_total",
		Help: "Per-contact sync failures aggregated into batch results.",
	})
)

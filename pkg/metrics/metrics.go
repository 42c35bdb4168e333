// Package metrics collects Prometheus counters for a migration run and
// exports them as a node_exporter textfile when the run ends.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric.
const Namespace = "petmig"

// Outcome labels for items.
const (
	OutcomeMigrated        = "migrated"
	OutcomeUpdated         = "updated"
	OutcomeAlreadyMigrated = "already_migrated"
	OutcomeMissingPet      = "missing_pet"
	OutcomeMissingOwner    = "missing_owner"
	OutcomeMissingVaccine  = "missing_vaccine"
	OutcomeEmpty           = "empty"
	OutcomeParseError      = "parse_error"
)

// RunMetrics holds the metrics of one process. It owns its registry so a
// textfile only ever contains petmig series.
type RunMetrics struct {
	registry *prometheus.Registry

	ItemsTotal       *prometheus.CounterVec
	EntriesTotal     *prometheus.CounterVec
	RowsWrittenTotal *prometheus.CounterVec
	ChunkSeconds     *prometheus.HistogramVec
	RunDuration      *prometheus.GaugeVec
	RunSuccess       *prometheus.GaugeVec
	RunLastTimestamp *prometheus.GaugeVec
}

// NewRunMetrics creates and registers the run metrics on a fresh registry.
func NewRunMetrics() *RunMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &RunMetrics{
		registry: reg,
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "items_total",
				Help:      "Legacy rows seen by a stage, by outcome",
			},
			[]string{"stage", "tenant_id", "outcome"},
		),
		EntriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "note_entries_total",
				Help:      "Parsed note entries by category and clinician resolution",
			},
			[]string{"tenant_id", "category", "resolution"},
		),
		RowsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "rows_written_total",
				Help:      "Destination rows committed",
			},
			[]string{"stage", "tenant_id"},
		),
		ChunkSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "chunk_persist_seconds",
				Help:      "Time to persist one chunk in its transaction",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage", "tenant_id"},
		),
		RunDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last run",
			},
			[]string{"stage", "tenant_id"},
		),
		RunSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "run_success",
				Help:      "1 if the last run succeeded, 0 otherwise",
			},
			[]string{"stage", "tenant_id"},
		),
		RunLastTimestamp: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "run_last_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"stage", "tenant_id"},
		),
	}
}

// Registry exposes the registry so other collectors (pool stats) can join it.
func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every series to path atomically.
func (m *RunMetrics) WriteTextfile(path string) error {
	if path == "" {
		return fmt.Errorf("textfile path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

// Recorder binds RunMetrics to one stage and tenant. It satisfies the
// migration observer.
type Recorder struct {
	metrics  *RunMetrics
	stage    string
	tenantID string
}

// NewRecorder creates a recorder for stage under tenantID.
func NewRecorder(m *RunMetrics, stage, tenantID string) *Recorder {
	return &Recorder{metrics: m, stage: stage, tenantID: tenantID}
}

// ItemProcessed counts one legacy row with its outcome.
func (r *Recorder) ItemProcessed(outcome string) {
	r.metrics.ItemsTotal.WithLabelValues(r.stage, r.tenantID, outcome).Inc()
}

// EntryResolved counts one note entry.
func (r *Recorder) EntryResolved(category, resolution string) {
	r.metrics.EntriesTotal.WithLabelValues(r.tenantID, category, resolution).Inc()
}

// ChunkPersisted records a committed chunk.
func (r *Recorder) ChunkPersisted(rows int, took time.Duration) {
	r.metrics.RowsWrittenTotal.WithLabelValues(r.stage, r.tenantID).Add(float64(rows))
	r.metrics.ChunkSeconds.WithLabelValues(r.stage, r.tenantID).Observe(took.Seconds())
}

// RunFinished records the outcome of the whole run.
func (r *Recorder) RunFinished(took time.Duration, err error) {
	success := 1.0
	if err != nil {
		success = 0
	}
	r.metrics.RunDuration.WithLabelValues(r.stage, r.tenantID).Set(took.Seconds())
	r.metrics.RunSuccess.WithLabelValues(r.stage, r.tenantID).Set(success)
	r.metrics.RunLastTimestamp.WithLabelValues(r.stage, r.tenantID).SetToCurrentTime()
}

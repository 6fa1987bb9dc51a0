package tablekv

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// Operation counters, exposed in Prometheus text format via WritePrometheus.
var (
	metricOpens     = metrics.NewCounter("tablekv_opens_total")
	metricInserts   = metrics.NewCounter("tablekv_inserts_total")
	metricUpdates   = metrics.NewCounter("tablekv_updates_total")
	metricRemoves   = metrics.NewCounter("tablekv_removes_total")
	metricSelects   = metrics.NewCounter("tablekv_selects_total")
	metricFetches   = metrics.NewCounter("tablekv_fetches_total")
	metricSeqAllocs = metrics.NewCounter("tablekv_sequence_allocs_total")
	metricBegins    = metrics.NewCounter("tablekv_txn_begins_total")
	metricCommits   = metrics.NewCounter("tablekv_txn_commits_total")
	metricRollbacks = metrics.NewCounter("tablekv_txn_rollbacks_total")
)

// WritePrometheus dumps the engine's operation counters to w.
func WritePrometheus(w io.Writer) {
	metrics.WritePrometheus(w, false)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	workflowEngine = "workflow_engine"

	// Queue metrics
	messagesConsumedTotal  = "messages_consumed_total"
	messagesDroppedTotal   = "messages_dropped_total"
	messagesForwardedTotal = "messages_forwarded_total"

	// Pipeline metrics
	filesCompletedTotal        = "files_completed_total"
	recordsMaterializedTotal   = "records_materialized_total"
	recordsArchivedTotal       = "records_archived_total"
	auditEntriesTruncatedTotal = "audit_entries_truncated_total"

	// Labels
	stageLabel  = "stage"
	reasonLabel = "reason"
	queueLabel  = "queue"
	statusLabel = "status"
	domainLabel = "domain"
)

var messagesConsumedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      messagesConsumedTotal,
		Help:      "number of messages consumed per pipeline stage",
	},
	[]string{stageLabel},
)

var messagesDroppedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      messagesDroppedTotal,
		Help:      "number of messages dropped per pipeline stage and drop reason",
	},
	[]string{stageLabel, reasonLabel},
)

var messagesForwardedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      messagesForwardedTotal,
		Help:      "number of messages forwarded per outbound queue",
	},
	[]string{queueLabel},
)

var filesCompletedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      filesCompletedTotal,
		Help:      "number of files promoted to COMPLETE per aggregated status",
	},
	[]string{statusLabel},
)

var recordsMaterializedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      recordsMaterializedTotal,
		Help:      "number of records inserted into domain tables",
	},
	[]string{domainLabel},
)

var recordsArchivedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      recordsArchivedTotal,
		Help:      "number of records soft-deleted into archive tables",
	},
	[]string{domainLabel},
)

var auditEntriesTruncatedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: workflowEngine,
		Name:      auditEntriesTruncatedTotal,
		Help:      "number of audit entries whose remarks were truncated to fit the size bound",
	},
)

func IncreaseMessagesConsumedMetric(stage string) {
	messagesConsumedTotalMetric.With(prometheus.Labels{stageLabel: stage}).Inc()
}

func IncreaseMessagesDroppedMetric(stage, reason string) {
	messagesDroppedTotalMetric.With(prometheus.Labels{stageLabel: stage, reasonLabel: reason}).Inc()
}

func IncreaseMessagesForwardedMetric(queue string) {
	messagesForwardedTotalMetric.With(prometheus.Labels{queueLabel: queue}).Inc()
}

func IncreaseFilesCompletedMetric(status string) {
	filesCompletedTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

func IncreaseRecordsMaterializedMetric(domain string) {
	recordsMaterializedTotalMetric.With(prometheus.Labels{domainLabel: domain}).Inc()
}

func IncreaseRecordsArchivedMetric(domain string) {
	recordsArchivedTotalMetric.With(prometheus.Labels{domainLabel: domain}).Inc()
}

func IncreaseAuditEntriesTruncatedMetric() {
	auditEntriesTruncatedTotalMetric.Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(messagesConsumedTotalMetric)
	prometheus.MustRegister(messagesDroppedTotalMetric)
	prometheus.MustRegister(messagesForwardedTotalMetric)
	prometheus.MustRegister(filesCompletedTotalMetric)
	prometheus.MustRegister(recordsMaterializedTotalMetric)
	prometheus.MustRegister(recordsArchivedTotalMetric)
	prometheus.MustRegister(auditEntriesTruncatedTotalMetric)
}

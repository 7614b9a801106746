package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// 队列水位
	JobsProcessing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_jobs_processing",
			Help: "Number of analysis jobs currently in processing state.",
		},
	)
	JobsQueued = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_jobs_queued",
			Help: "Number of analysis jobs currently waiting in queue.",
		},
	)

	// 管线结果
	AnalysesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyses_completed_total",
			Help: "Total number of wallet analyses completed successfully.",
		},
	)
	AnalysesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "analyses_failed_total",
			Help: "Total number of wallet analyses that ended in failure.",
		},
	)
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_pipeline_duration_seconds",
			Help:    "End-to-end duration of the analysis pipeline.",
			Buckets: []float64{1, 5, 10, 20, 30, 60, 90, 120, 300},
		},
	)

	// 上游账本API
	LedgerPagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_pages_fetched_total",
			Help: "Total number of transaction history pages fetched from the ledger API.",
		},
	)
	LedgerRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_rate_limited_total",
			Help: "Total number of rate-limit responses from the ledger API.",
		},
	)

	// AsyncWriter 指标
	AsyncWriterMessagesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_messages_dropped_total",
			Help: "Total number of messages dropped due to full queue.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterBatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_batch_size",
			Help:    "Number of items in each batch submitted to the writer.",
			Buckets: []float64{10, 50, 100, 200, 500, 1000},
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_flush_count_total",
			Help: "Total number of batch flushes triggered.",
		},
		[]string{"writer_id"},
	)
	AsyncWriterFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "async_writer_flush_duration_seconds",
			Help:    "Time taken to flush a batch.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"writer_id"},
	)
	AsyncWriterItemsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "async_writer_items_written_total",
			Help: "Total number of items successfully written by the async writer.",
		},
		[]string{"writer_id"},
	)
)

func init() {
	prometheus.MustRegister(
		// 队列与管线指标
		JobsProcessing,
		JobsQueued,
		AnalysesCompleted,
		AnalysesFailed,
		PipelineDuration,

		// 上游API指标
		LedgerPagesFetched,
		LedgerRateLimited,

		// async 写入指标
		AsyncWriterMessagesDropped,
		AsyncWriterBatchSize,
		AsyncWriterFlushCount,
		AsyncWriterFlushDuration,
		AsyncWriterItemsWritten,
	)
}

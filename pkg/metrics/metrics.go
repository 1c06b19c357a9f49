package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	GatewayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_total",
			Help: "Total number of events received from the chat gateway (count)",
		},
		[]string{"status"},
	)

	GatewayReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_reconnects_total",
			Help: "Total number of gateway websocket reconnect attempts (count)",
		},
	)

	GatewayAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_api_requests_total",
			Help: "Total number of requests to the gateway HTTP API (count)",
		},
		[]string{"operation", "status"},
	)

	FilteringMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filtering_messages_total",
			Help: "Total number of messages processed by filtering (count)",
		},
		[]string{"status"},
	)

	FilteringProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filtering_processing_duration_ms",
			Help:    "Processing duration for filtering in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	FilteringActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "filtering_active_rules",
			Help: "Number of active filtering rules (count)",
		},
	)

	FilteringRuleEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filtering_rule_evaluations_total",
			Help: "Total number of filtering rule evaluations (count)",
		},
		[]string{"rule_name", "result"},
	)

	EnrichmentLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichment_lookups_total",
			Help: "Total number of enrichment lookups (count)",
		},
		[]string{"lookup", "status"},
	)

	EnrichmentLookupDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "enrichment_lookup_duration_ms",
			Help:    "Duration of enrichment lookups in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"lookup"},
	)

	EnrichmentCacheHitRate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "enrichment_cache_hit_rate",
			Help: "Cache hit rate for enrichment lookups (ratio, 0.0 to 1.0)",
		},
	)

	ExtractionCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_calls_total",
			Help: "Total number of language-model extraction calls (count)",
		},
		[]string{"call", "status"},
	)

	ExtractionCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_call_duration_ms",
			Help:    "Duration of language-model extraction calls in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"call"},
	)

	ExtractionParseFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_parse_failures_total",
			Help: "Total number of unparseable model responses (count)",
		},
		[]string{"call"},
	)

	DeduplicateMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_messages_total",
			Help: "Total number of messages processed by deduplication (count)",
		},
		[]string{"status"},
	)

	DedupProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dedup_processing_duration_ms",
			Help:    "Processing duration for deduplication in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"status"},
	)

	ListingsPersistedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listings_persisted_total",
			Help: "Total number of trade listings written to storage (count)",
		},
		[]string{"status"},
	)

	ArchiveWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "archive_writes_total",
			Help: "Total number of raw messages written to the archive (count)",
		},
		[]string{"status"},
	)

	PipelineMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_total",
			Help: "Total number of messages that completed the pipeline (count)",
		},
		[]string{"outcome"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_stage_duration_ms",
			Help:    "Duration of each pipeline stage in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"stage", "status"},
	)

	MessageQueueSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "message_queue_size",
			Help: "Current size of message processing queue (count)",
		},
		[]string{"service"},
	)

	MessageQueueWaitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "message_queue_wait_duration_ms",
			Help:    "Duration messages wait in queue before processing in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries (count)",
		},
		[]string{"service", "database", "operation", "status"},
	)

	DatabaseQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_ms",
			Help:    "Duration of database queries in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"service", "database", "operation"},
	)
)

func RegisterGatewayMetrics() {
	prometheus.MustRegister(GatewayEventsTotal)
	prometheus.MustRegister(GatewayReconnectsTotal)
	prometheus.MustRegister(GatewayAPIRequestsTotal)
}

func RegisterFilteringMetrics() {
	prometheus.MustRegister(FilteringMessagesTotal)
	prometheus.MustRegister(FilteringProcessingDuration)
	prometheus.MustRegister(FilteringActiveRules)
	prometheus.MustRegister(FilteringRuleEvaluationsTotal)
	registerFallbackUsageTotalOnce()
}

func RegisterEnrichmentMetrics() {
	prometheus.MustRegister(EnrichmentLookupsTotal)
	prometheus.MustRegister(EnrichmentLookupDuration)
	prometheus.MustRegister(EnrichmentCacheHitRate)
}

func RegisterExtractionMetrics() {
	prometheus.MustRegister(ExtractionCallsTotal)
	prometheus.MustRegister(ExtractionCallDuration)
	prometheus.MustRegister(ExtractionParseFailuresTotal)
}

func RegisterDedupMetrics() {
	prometheus.MustRegister(DeduplicateMessagesTotal)
	prometheus.MustRegister(DedupProcessingDuration)
	registerFallbackUsageTotalOnce()
}

func RegisterPipelineMetrics() {
	prometheus.MustRegister(PipelineMessagesTotal)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(MessageQueueSize)
	prometheus.MustRegister(MessageQueueWaitDuration)
	prometheus.MustRegister(ListingsPersistedTotal)
	prometheus.MustRegister(ArchiveWritesTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaMessageSizeBytes)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterQueryMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(DatabaseQueriesTotal)
	prometheus.MustRegister(DatabaseQueryDuration)
}

var fallbackUsageRegistered bool

func registerFallbackUsageTotalOnce() {
	if fallbackUsageRegistered {
		return
	}
	prometheus.MustRegister(FallbackUsageTotal)
	fallbackUsageRegistered = true
}

func ObserveFilteringDuration(duration time.Duration, status string) {
	FilteringProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveDedupDuration(duration time.Duration, status string) {
	DedupProcessingDuration.WithLabelValues(status).Observe(float64(duration.Milliseconds()))
}

func ObserveEnrichmentLookupDuration(lookup string, duration time.Duration) {
	EnrichmentLookupDuration.WithLabelValues(lookup).Observe(float64(duration.Milliseconds()))
}

func ObserveExtractionCallDuration(call string, duration time.Duration) {
	ExtractionCallDuration.WithLabelValues(call).Observe(float64(duration.Milliseconds()))
}

func ObserveStageDuration(stage, status string, duration time.Duration) {
	PipelineStageDuration.WithLabelValues(stage, status).Observe(float64(duration.Milliseconds()))
}

func SetFilteringActiveRules(count int) {
	FilteringActiveRules.Set(float64(count))
}

func SetEnrichmentCacheHitRate(rate float64) {
	EnrichmentCacheHitRate.Set(rate)
}

func IncFilteringRuleEvaluation(ruleName, result string) {
	FilteringRuleEvaluationsTotal.WithLabelValues(ruleName, result).Inc()
}

func IncEnrichmentLookup(lookup, status string) {
	EnrichmentLookupsTotal.WithLabelValues(lookup, status).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}

func IncDatabaseQuery(service, database, operation, status string) {
	DatabaseQueriesTotal.WithLabelValues(service, database, operation, status).Inc()
}

func ObserveDatabaseQueryDuration(service, database, operation string, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(service, database, operation).Observe(float64(duration.Milliseconds()))
}

func SetMessageQueueSize(service string, size int) {
	MessageQueueSize.WithLabelValues(service).Set(float64(size))
}

func ObserveMessageQueueWaitDuration(service string, duration time.Duration) {
	MessageQueueWaitDuration.WithLabelValues(service).Observe(float64(duration.Milliseconds()))
}

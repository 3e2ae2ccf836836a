package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"operation", "table"},
	)

	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// 邮件投递服务调用延迟（毫秒）
	MailerCallLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailer_call_latency_ms",
			Help:    "Email delivery API call latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(100, 2, 10), // 100ms to ~100s
		},
		[]string{"template", "status"},
	)

	// 进度更新计数
	ProgressionUpdateCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_update_count",
			Help: "Total number of project progression updates",
		},
		[]string{"outcome"}, // outcome: success, success_with_warnings, rejected, failed
	)

	// 里程碑触发计数
	MilestoneCrossedCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_crossed_count",
			Help: "Total number of milestone crossings",
		},
		[]string{"threshold"}, // threshold: 50, 100
	)

	// 通知投递计数
	NotificationDeliveredCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_delivered_count",
			Help: "Total number of notification delivery attempts",
		},
		[]string{"template", "status"}, // status: sent, failed, deduped
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of slow database queries",
		},
		[]string{"sql"},
	)
)

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordMailerCallLatency 记录邮件投递调用延迟
func RecordMailerCallLatency(template, status string, duration time.Duration) {
	MailerCallLatency.WithLabelValues(template, status).Observe(float64(duration.Milliseconds()))
}

// IncrementProgressionUpdate 记录一次进度更新结果
func IncrementProgressionUpdate(outcome string) {
	ProgressionUpdateCount.WithLabelValues(outcome).Inc()
}

// IncrementMilestoneCrossed 记录一次里程碑触发
func IncrementMilestoneCrossed(threshold string) {
	MilestoneCrossedCount.WithLabelValues(threshold).Inc()
}

// IncrementNotificationDelivered 记录一次通知投递
func IncrementNotificationDelivered(template, status string) {
	NotificationDeliveredCount.WithLabelValues(template, status).Inc()
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(sql string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(sql).Inc()
}

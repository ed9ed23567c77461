package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP метрики
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hns_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// WebSocket метрики
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	// MQTT метрики
	MQTTMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_mqtt_messages_received_total",
			Help: "Total number of MQTT messages received",
		},
		[]string{"topic_kind"},
	)

	MQTTParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hns_mqtt_parse_errors_total",
			Help: "Total number of MQTT message parse errors",
		},
	)

	MQTTConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_mqtt_connection_status",
			Help: "MQTT connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Метрики цикла трекинга
	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hns_tick_duration_seconds",
			Help:    "Duration of one tracking cycle tick",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	DeviceOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_device_outcomes_total",
			Help: "Per-device per-tick processing outcomes",
		},
		[]string{"status"},
	)

	ActiveDevices = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_active_devices_total",
			Help: "Number of devices with live tracking state",
		},
	)

	ReadingsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_readings_received_total",
			Help: "Total number of sensor readings accepted into the buffer",
		},
		[]string{"modality"},
	)

	ReadingsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_readings_rejected_total",
			Help: "Total number of sensor readings rejected at validation",
		},
		[]string{"reason"},
	)

	ZoneEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_zone_events_total",
			Help: "Total number of zone transition events emitted",
		},
		[]string{"transition"},
	)

	PositionsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_positions_published_total",
			Help: "Total number of published position updates",
		},
		[]string{"method"},
	)

	// Redis метрики
	RedisOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hns_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	RedisOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hns_redis_operation_errors_total",
			Help: "Total number of Redis operation errors",
		},
		[]string{"operation"},
	)

	RedisConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_redis_connection_status",
			Help: "Redis connection status (1 = connected, 0 = disconnected)",
		},
	)

	// MySQL batch writer метрики
	MySQLBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hns_mysql_batch_size",
			Help:    "Size of MySQL history batch inserts",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
		},
	)

	MySQLBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hns_mysql_batch_duration_seconds",
			Help:    "Duration of MySQL history batch operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	MySQLWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hns_mysql_write_errors_total",
			Help: "Total number of MySQL history write errors",
		},
	)

	MySQLQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_mysql_queue_size",
			Help: "Current size of the MySQL history writer queue",
		},
	)

	MySQLConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hns_mysql_connection_status",
			Help: "MySQL connection status (1 = connected, 0 = disconnected)",
		},
	)

	// Общие метрики приложения
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hns_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetAppInfo устанавливает информацию о версии приложения
func SetAppInfo(version, commit, buildTime string) {
	AppInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

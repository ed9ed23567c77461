package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит конфигурацию приложения
type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	MQTT        MQTTConfig
	MySQL       MySQLConfig
	Tracking    TrackingConfig
	Solver      SolverConfig
	Filter      FilterConfig
	Performance PerformanceConfig
	Monitoring  MonitoringConfig
}

// ServerConfig конфигурация HTTP сервера
type ServerConfig struct {
	Address      string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RedisConfig конфигурация Redis
type RedisConfig struct {
	URL          string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// MQTTConfig конфигурация MQTT
type MQTTConfig struct {
	URL          string
	ClientID     string
	Username     string
	Password     string
	CleanSession bool
	TopicPrefix  string
}

// MySQLConfig конфигурация MySQL (история позиций)
type MySQLConfig struct {
	DSN           string
	MaxIdleConns  int
	MaxOpenConns  int
	RetentionDays int
}

// TrackingConfig параметры цикла трекинга
type TrackingConfig struct {
	TickInterval  time.Duration
	StaleAfter    time.Duration
	InactiveAfter time.Duration
	Workers       int
}

// SolverConfig параметры решателя позиций
type SolverConfig struct {
	SingularEps     float64
	ResidualScaleM  float64
	SpreadRefM2     float64
	CountSaturation int
	PlanWidthM      float64 // габариты плана здания; 0 отключает обрезку решений
	PlanHeightM     float64
}

// FilterConfig параметры фильтра Калмана
type FilterConfig struct {
	ProcessNoise    float64
	MeasBaseVar     float64
	MinConfidence   float64
	MaxCovTrace     float64
	ConfTraceScaleM float64
}

// PerformanceConfig конфигурация производительности
type PerformanceConfig struct {
	MaxBatchSize          int
	BatchTimeout          time.Duration
	WebSocketPingInterval time.Duration
	WebSocketPongTimeout  time.Duration
}

// MonitoringConfig конфигурация мониторинга
type MonitoringConfig struct {
	MetricsEnabled bool
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Address:      getEnv("SERVER_ADDRESS", ":8090"),
			Port:         getEnv("SERVER_PORT", "8090"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", "redis://localhost:6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getInt("REDIS_DB", 0),
			PoolSize:     getInt("REDIS_POOL_SIZE", 50),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		MQTT: MQTTConfig{
			URL:          getEnv("MQTT_URL", "tcp://localhost:1883"),
			ClientID:     getEnv("MQTT_CLIENT_ID", "hide-n-seek-api"),
			Username:     getEnv("MQTT_USERNAME", ""),
			Password:     getEnv("MQTT_PASSWORD", ""),
			CleanSession: getBool("MQTT_CLEAN_SESSION", false),
			TopicPrefix:  getEnv("MQTT_TOPIC_PREFIX", "hns"),
		},
		MySQL: MySQLConfig{
			DSN:           getEnv("MYSQL_DSN", ""),
			MaxIdleConns:  getInt("MYSQL_MAX_IDLE_CONNS", 10),
			MaxOpenConns:  getInt("MYSQL_MAX_OPEN_CONNS", 50),
			RetentionDays: getInt("MYSQL_RETENTION_DAYS", 30),
		},
		Tracking: TrackingConfig{
			TickInterval:  getDuration("TRACKING_TICK_INTERVAL", time.Second),
			StaleAfter:    getDuration("TRACKING_STALE_AFTER", 3*time.Second),
			InactiveAfter: getDuration("TRACKING_INACTIVE_AFTER", 60*time.Second),
			Workers:       getInt("TRACKING_WORKERS", 8),
		},
		Solver: SolverConfig{
			SingularEps:     getFloat("SOLVER_SINGULAR_EPS", 1e-6),
			ResidualScaleM:  getFloat("SOLVER_RESIDUAL_SCALE_M", 5.0),
			SpreadRefM2:     getFloat("SOLVER_SPREAD_REF_M2", 4.0),
			CountSaturation: getInt("SOLVER_COUNT_SATURATION", 5),
			PlanWidthM:      getFloat("SOLVER_PLAN_WIDTH_M", 15.0),
			PlanHeightM:     getFloat("SOLVER_PLAN_HEIGHT_M", 12.0),
		},
		Filter: FilterConfig{
			ProcessNoise:    getFloat("FILTER_PROCESS_NOISE", 0.5),
			MeasBaseVar:     getFloat("FILTER_MEAS_BASE_VAR", 1.0),
			MinConfidence:   getFloat("FILTER_MIN_CONFIDENCE", 0.05),
			MaxCovTrace:     getFloat("FILTER_MAX_COV_TRACE", 1e4),
			ConfTraceScaleM: getFloat("FILTER_CONF_TRACE_SCALE_M", 2.0),
		},
		Performance: PerformanceConfig{
			MaxBatchSize:          getInt("MAX_BATCH_SIZE", 100),
			BatchTimeout:          getDuration("BATCH_TIMEOUT", 5*time.Second),
			WebSocketPingInterval: getDuration("WEBSOCKET_PING_INTERVAL", 30*time.Second),
			WebSocketPongTimeout:  getDuration("WEBSOCKET_PONG_TIMEOUT", 60*time.Second),
		},
		Monitoring: MonitoringConfig{
			MetricsEnabled: getBool("METRICS_ENABLED", true),
		},
	}

	// Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.MQTT.URL == "" {
		return fmt.Errorf("MQTT_URL is required")
	}

	if c.Tracking.TickInterval <= 0 {
		return fmt.Errorf("TRACKING_TICK_INTERVAL must be positive")
	}

	// Окно устаревания короче тика означает, что показания протухают
	// раньше, чем цикл успевает их увидеть
	if c.Tracking.StaleAfter < c.Tracking.TickInterval {
		return fmt.Errorf("TRACKING_STALE_AFTER must be >= TRACKING_TICK_INTERVAL")
	}

	if c.Tracking.InactiveAfter < c.Tracking.StaleAfter {
		return fmt.Errorf("TRACKING_INACTIVE_AFTER must be >= TRACKING_STALE_AFTER")
	}

	if c.Tracking.Workers <= 0 {
		return fmt.Errorf("TRACKING_WORKERS must be positive")
	}

	if c.Solver.ResidualScaleM <= 0 {
		return fmt.Errorf("SOLVER_RESIDUAL_SCALE_M must be positive")
	}

	if c.Solver.PlanWidthM < 0 || c.Solver.PlanHeightM < 0 {
		return fmt.Errorf("SOLVER_PLAN_WIDTH_M and SOLVER_PLAN_HEIGHT_M must not be negative")
	}

	if c.Filter.MeasBaseVar <= 0 {
		return fmt.Errorf("FILTER_MEAS_BASE_VAR must be positive")
	}

	if c.Filter.MinConfidence <= 0 || c.Filter.MinConfidence > 1 {
		return fmt.Errorf("FILTER_MIN_CONFIDENCE must be in (0, 1]")
	}

	if c.Performance.MaxBatchSize <= 0 {
		return fmt.Errorf("MAX_BATCH_SIZE must be positive")
	}

	return nil
}

// Helper функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// LogLevel возвращает уровень логирования
func LogLevel() string {
	return getEnv("LOG_LEVEL", "info")
}

// LogFormat возвращает формат логирования
func LogFormat() string {
	return getEnv("LOG_FORMAT", "json")
}

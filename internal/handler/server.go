// Package handler содержит HTTP и WebSocket интерфейсы сервиса.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/BenJaminBMorin/hide-n-seek/internal/config"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// Server HTTP сервер
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	logger      *utils.Logger
	config      *config.Config
	restHandler *RESTHandler
	wsHub       *WebSocketHub
}

// NewServer создает новый HTTP сервер
func NewServer(cfg *config.Config, restHandler *RESTHandler, wsHub *WebSocketHub, logger *utils.Logger) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(LoggerMiddleware(logger))
	router.Use(gin.Recovery())
	router.Use(CORSMiddleware())
	router.Use(RateLimitMiddleware())

	server := &Server{
		router:      router,
		logger:      logger,
		config:      cfg,
		restHandler: restHandler,
		wsHub:       wsHub,
	}

	server.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	server.setupRoutes()

	return server
}

// setupRoutes настраивает маршруты
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.healthCheck)

	// API v1 группа
	v1 := s.router.Group("/api/v1")
	{
		// Устройства
		v1.GET("/devices", s.restHandler.GetDevices)
		v1.GET("/devices/:id/position", s.restHandler.GetDevicePosition)
		v1.GET("/devices/:id/track", s.restHandler.GetDeviceTrack)

		// Показания (HTTP транспорт для станций без MQTT)
		v1.POST("/readings", s.restHandler.PostReading)

		// Сенсоры
		v1.GET("/sensors", s.restHandler.GetSensors)
		v1.GET("/sensors/:id", s.restHandler.GetSensor)
		v1.PUT("/sensors/:id", s.restHandler.PutSensor)
		v1.DELETE("/sensors/:id", s.restHandler.DeleteSensor)
		v1.POST("/sensors/:id/calibration", s.restHandler.PostSensorCalibration)
		v1.POST("/sensors/:id/enabled", s.restHandler.PostSensorEnabled)

		// Зоны
		v1.GET("/zones", s.restHandler.GetZones)
		v1.GET("/zones/:id", s.restHandler.GetZone)
		v1.PUT("/zones/:id", s.restHandler.PutZone)
		v1.DELETE("/zones/:id", s.restHandler.DeleteZone)
		v1.POST("/zones/:id/enabled", s.restHandler.PostZoneEnabled)
		v1.GET("/zones/:id/occupancy", s.restHandler.GetZoneOccupancy)
		v1.GET("/zones/:id/events", s.restHandler.GetZoneEvents)

		// Люди
		v1.GET("/persons", s.restHandler.GetPersons)
		v1.GET("/persons/:id", s.restHandler.GetPerson)
		v1.PUT("/persons/:id", s.restHandler.PutPerson)
		v1.DELETE("/persons/:id", s.restHandler.DeletePerson)
		v1.POST("/persons/:id/devices", s.restHandler.PostPersonDevice)
		v1.DELETE("/persons/:id/devices/:device_id", s.restHandler.DeletePersonDevice)
		v1.POST("/persons/:id/active-device", s.restHandler.PostPersonActiveDevice)
		v1.GET("/persons/:id/position", s.restHandler.GetPersonPosition)
	}

	// WebSocket поток позиций и событий
	s.router.GET("/ws/v1/stream", s.wsHub.HandleWebSocket)

	// Метрики Prometheus
	if s.config.Monitoring.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
}

// Start запускает HTTP сервер
func (s *Server) Start() error {
	s.logger.WithFields(map[string]interface{}{
		"address": s.config.Server.Address,
		"mode":    gin.Mode(),
	}).Info("Starting HTTP server")

	return s.httpServer.ListenAndServe()
}

// Shutdown корректное завершение сервера
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.wsHub.Close()
	return s.httpServer.Shutdown(ctx)
}

// Health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"timestamp":  time.Now().Unix(),
		"ws_clients": s.wsHub.ClientCount(),
	})
}

// ==================== Middleware ====================

// LoggerMiddleware логирование запросов
func LoggerMiddleware(logger *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		statusLabel := strconv.Itoa(status)
		metrics.HTTPRequestsTotal.WithLabelValues(method, path, statusLabel).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path, statusLabel).Observe(latency.Seconds())

		logger.WithFields(map[string]interface{}{
			"method":     method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency_ms": latency.Milliseconds(),
			"client_ip":  c.ClientIP(),
		}).Info("HTTP request completed")
	}
}

// CORSMiddleware настройка CORS
func CORSMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// RateLimitMiddleware ограничение частоты запросов
func RateLimitMiddleware() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(100), 200) // 100 req/sec, burst 200

	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    "rate_limit_exceeded",
				"message": "Too many requests",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

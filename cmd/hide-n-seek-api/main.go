package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BenJaminBMorin/hide-n-seek/internal/buffer"
	"github.com/BenJaminBMorin/hide-n-seek/internal/config"
	"github.com/BenJaminBMorin/hide-n-seek/internal/filter"
	"github.com/BenJaminBMorin/hide-n-seek/internal/handler"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/internal/mqtt"
	"github.com/BenJaminBMorin/hide-n-seek/internal/repository"
	"github.com/BenJaminBMorin/hide-n-seek/internal/service"
	"github.com/BenJaminBMorin/hide-n-seek/internal/solver"
	"github.com/BenJaminBMorin/hide-n-seek/internal/tracker"
	"github.com/BenJaminBMorin/hide-n-seek/internal/zones"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

var (
	// Version устанавливается при сборке через ldflags
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// publisher объединяет WebSocket поток и живое состояние в Redis.
// Запись в Redis идет асинхронно, чтобы не задерживать цикл трекинга.
type publisher struct {
	hub    *handler.WebSocketHub
	repo   repository.Repository
	logger *utils.Logger
}

func (p *publisher) PublishPosition(update *models.PositionUpdate) {
	p.hub.PublishPosition(update)

	if p.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := p.repo.SavePosition(ctx, update); err != nil {
				p.logger.WithFields(map[string]interface{}{
					"device_id": update.DeviceID,
					"error":     err,
				}).Warn("Failed to save live position")
			}
		}()
	}
}

func (p *publisher) PublishZoneEvent(event models.ZoneEvent) {
	p.hub.PublishZoneEvent(event)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.NewLogger(config.LogLevel(), config.LogFormat())
	logger.WithField("version", Version).Info("Starting Hide-n-Seek positioning service")
	metrics.SetAppInfo(Version, Commit, BuildTime)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis: живые позиции и конфигурация сенсоров/зон
	redisRepo, err := repository.NewRedisRepository(&cfg.Redis, logger)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize Redis repository")
	}
	defer redisRepo.Close()

	if err := redisRepo.Ping(ctx); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to Redis")
	}
	logger.Info("Connected to Redis")

	// MySQL: история позиций и событий (опционально)
	var mysqlRepo *repository.MySQLRepository
	var batchWriter *service.BatchWriter
	if cfg.MySQL.DSN != "" {
		mysqlRepo, err = repository.NewMySQLRepository(&cfg.MySQL, logger)
		if err != nil {
			logger.WithField("error", err).Warn("Failed to initialize MySQL repository")
			mysqlRepo = nil
		} else {
			defer mysqlRepo.Close()
			if err := mysqlRepo.Ping(ctx); err != nil {
				logger.WithField("error", err).Warn("Failed to connect to MySQL")
			} else {
				logger.Info("Connected to MySQL")
			}

			batchCfg := service.DefaultBatchConfig()
			batchCfg.BatchSize = cfg.Performance.MaxBatchSize
			batchCfg.FlushInterval = cfg.Performance.BatchTimeout
			batchWriter = service.NewBatchWriter(mysqlRepo, logger, batchCfg)
			defer batchWriter.Stop()
		}
	}

	// Ядро пайплайна
	registry := tracker.NewSensorRegistry(logger)
	readings := buffer.NewReadingBuffer(cfg.Tracking.StaleAfter)
	var plan *models.Bounds
	if cfg.Solver.PlanWidthM > 0 && cfg.Solver.PlanHeightM > 0 {
		plan = &models.Bounds{Max: models.Point{X: cfg.Solver.PlanWidthM, Y: cfg.Solver.PlanHeightM}}
	}
	slv := solver.NewSolver(solver.Config{
		SingularEps:     cfg.Solver.SingularEps,
		ResidualScaleM:  cfg.Solver.ResidualScaleM,
		SpreadRefM2:     cfg.Solver.SpreadRefM2,
		CountSaturation: cfg.Solver.CountSaturation,
		PlanBounds:      plan,
	}, logger)

	filterCfg := filter.DefaultConfig()
	filterCfg.ProcessNoise = cfg.Filter.ProcessNoise
	filterCfg.MeasBaseVar = cfg.Filter.MeasBaseVar
	filterCfg.MinConfidence = cfg.Filter.MinConfidence
	filterCfg.MaxCovTrace = cfg.Filter.MaxCovTrace
	filterCfg.ConfTraceScaleM = cfg.Filter.ConfTraceScaleM
	filters := filter.NewStore(filterCfg)

	zoneEngine := zones.NewEngine(logger)
	persons := tracker.NewPersonRegistry(logger)

	// Восстанавливаем конфигурацию из Redis
	restoreConfig(ctx, redisRepo, registry, zoneEngine, persons, logger)

	wsLogger := logrus.New().WithField("component", "websocket")
	wsHub := handler.NewWebSocketHub(wsLogger)

	pub := &publisher{hub: wsHub, repo: redisRepo, logger: logger}

	var history tracker.HistoryRecorder
	if batchWriter != nil {
		history = batchWriter
	}

	trk := tracker.New(tracker.Config{
		TickInterval:  cfg.Tracking.TickInterval,
		StaleAfter:    cfg.Tracking.StaleAfter,
		InactiveAfter: cfg.Tracking.InactiveAfter,
		Workers:       cfg.Tracking.Workers,
	}, logger, registry, readings, slv, filters, zoneEngine, pub, history)

	// HTTP сервер
	restHandler := handler.NewRESTHandler(trk, registry, zoneEngine, persons, pub, history, redisRepo, historyRepo(mysqlRepo), logger)
	server := handler.NewServer(cfg, restHandler, wsHub, logger)

	// MQTT клиент
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger, trk.AcceptReading)
	if err != nil {
		logger.WithField("error", err).Fatal("Failed to initialize MQTT client")
	}
	defer mqttClient.Disconnect()

	if err := mqttClient.Connect(); err != nil {
		logger.WithField("error", err).Fatal("Failed to connect to MQTT broker")
	}
	logger.Info("Connected to MQTT broker")

	// Цикл трекинга
	go trk.Run(ctx)

	// Периодическая чистка истории
	if mysqlRepo != nil {
		go runHistoryCleanup(ctx, mysqlRepo, cfg.MySQL.RetentionDays, logger)
	}

	// HTTP сервер
	go func() {
		if err := server.Start(); err != nil {
			logger.WithField("error", err).Fatal("Failed to start HTTP server")
		}
	}()

	// Ждем сигнала остановки
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	logger.WithField("signal", sig).Info("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithField("error", err).Error("HTTP server shutdown error")
	}

	logger.Info("Server stopped gracefully")
}

// historyRepo возвращает интерфейс истории или nil, если MySQL не
// сконфигурирован. Явный nil нужен, чтобы в интерфейс не попал
// типизированный nil указатель.
func historyRepo(repo *repository.MySQLRepository) repository.HistoryRepository {
	if repo == nil {
		return nil
	}
	return repo
}

// restoreConfig загружает сенсоры и зоны, сохраненные предыдущим
// запуском. Ошибки не фатальны: сервис стартует с пустой конфигурацией.
func restoreConfig(ctx context.Context, repo repository.Repository,
	registry *tracker.SensorRegistry, zoneEngine *zones.Engine,
	persons *tracker.PersonRegistry, logger *utils.Logger) {

	sensors, err := repo.LoadSensors(ctx)
	if err != nil {
		logger.WithField("error", err).Warn("Failed to load sensors from storage")
	} else {
		for _, sensor := range sensors {
			if err := registry.Upsert(sensor); err != nil {
				logger.WithFields(map[string]interface{}{
					"sensor_id": sensor.ID,
					"error":     err,
				}).Warn("Skipping invalid stored sensor")
			}
		}
		logger.WithField("count", len(sensors)).Info("Restored sensors from storage")
	}

	zoneList, err := repo.LoadZones(ctx)
	if err != nil {
		logger.WithField("error", err).Warn("Failed to load zones from storage")
	} else {
		for _, zone := range zoneList {
			if _, err := zoneEngine.Upsert(zone, time.Now()); err != nil {
				logger.WithFields(map[string]interface{}{
					"zone_id": zone.ID,
					"error":   err,
				}).Warn("Skipping invalid stored zone")
			}
		}
		logger.WithField("count", len(zoneList)).Info("Restored zones from storage")
	}

	personList, err := repo.LoadPersons(ctx)
	if err != nil {
		logger.WithField("error", err).Warn("Failed to load persons from storage")
		return
	}
	for _, person := range personList {
		if err := persons.Upsert(person); err != nil {
			logger.WithFields(map[string]interface{}{
				"person_id": person.ID,
				"error":     err,
			}).Warn("Skipping invalid stored person")
		}
	}
	logger.WithField("count", len(personList)).Info("Restored persons from storage")
}

// runHistoryCleanup раз в сутки удаляет историю старше периода хранения
func runHistoryCleanup(ctx context.Context, repo *repository.MySQLRepository, retentionDays int, logger *utils.Logger) {
	if retentionDays <= 0 {
		return
	}
	retention := time.Duration(retentionDays) * 24 * time.Hour

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if err := repo.CleanupOldPositions(cleanupCtx, retention); err != nil {
				logger.WithField("error", err).Error("History cleanup failed")
			}
			cancel()
		}
	}
}

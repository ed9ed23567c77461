// Package service содержит фоновые сервисы приложения.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/internal/repository"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// BatchConfig конфигурация батчера истории
type BatchConfig struct {
	BatchSize     int           // размер батча
	FlushInterval time.Duration // интервал принудительного flush
	ChannelBuffer int           // размер буфера канала
	MaxRetries    int           // максимум повторов записи
	RetryDelay    time.Duration // задержка между повторами
}

// DefaultBatchConfig возвращает конфигурацию по умолчанию
func DefaultBatchConfig() *BatchConfig {
	return &BatchConfig{
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		ChannelBuffer: 10000,
		MaxRetries:    3,
		RetryDelay:    100 * time.Millisecond,
	}
}

// BatchWriter асинхронный writer для батчевого сохранения истории в
// MySQL. Очередь не блокирует цикл трекинга: при переполнении записи
// отбрасываются со счетчиком ошибок.
type BatchWriter struct {
	repo   repository.HistoryRepository
	logger *utils.Logger
	config *BatchConfig

	positionChan chan *models.PositionUpdate
	eventChan    chan models.ZoneEvent

	positionBuffer []*models.PositionUpdate
	eventBuffer    []models.ZoneEvent

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchWriter создает и запускает batch writer
func NewBatchWriter(repo repository.HistoryRepository, logger *utils.Logger, config *BatchConfig) *BatchWriter {
	if config == nil {
		config = DefaultBatchConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	bw := &BatchWriter{
		repo:   repo,
		logger: logger,
		config: config,
		ctx:    ctx,
		cancel: cancel,

		positionChan: make(chan *models.PositionUpdate, config.ChannelBuffer),
		eventChan:    make(chan models.ZoneEvent, config.ChannelBuffer),

		positionBuffer: make([]*models.PositionUpdate, 0, config.BatchSize),
		eventBuffer:    make([]models.ZoneEvent, 0, config.BatchSize),
	}

	bw.wg.Add(2)
	go bw.positionWorker()
	go bw.eventWorker()

	logger.WithFields(map[string]interface{}{
		"batch_size":     config.BatchSize,
		"flush_interval": config.FlushInterval,
	}).Info("Started MySQL batch writer")

	return bw
}

// Enqueue добавляет позицию в очередь для сохранения
func (bw *BatchWriter) Enqueue(update *models.PositionUpdate) {
	select {
	case bw.positionChan <- update:
		metrics.MySQLQueueSize.Set(float64(len(bw.positionChan) + len(bw.eventChan)))
	case <-bw.ctx.Done():
	default:
		metrics.MySQLWriteErrors.Inc()
		bw.logger.WithField("device_id", update.DeviceID).Warn("Position history queue is full, dropping update")
	}
}

// EnqueueZoneEvent добавляет событие зоны в очередь для сохранения
func (bw *BatchWriter) EnqueueZoneEvent(event models.ZoneEvent) {
	select {
	case bw.eventChan <- event:
		metrics.MySQLQueueSize.Set(float64(len(bw.positionChan) + len(bw.eventChan)))
	case <-bw.ctx.Done():
	default:
		metrics.MySQLWriteErrors.Inc()
		bw.logger.WithField("device_id", event.DeviceID).Warn("Zone event queue is full, dropping event")
	}
}

// Stop останавливает writer, выполнив финальный flush
func (bw *BatchWriter) Stop() {
	bw.cancel()
	bw.wg.Wait()
	bw.logger.Info("MySQL batch writer stopped")
}

// positionWorker обрабатывает батчи позиций
func (bw *BatchWriter) positionWorker() {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case update := <-bw.positionChan:
			bw.positionBuffer = append(bw.positionBuffer, update)
			if len(bw.positionBuffer) >= bw.config.BatchSize {
				bw.flushPositions()
			}

		case <-ticker.C:
			if len(bw.positionBuffer) > 0 {
				bw.flushPositions()
			}

		case <-bw.ctx.Done():
			// Финальный flush: забираем, что осталось в канале
			for {
				select {
				case update := <-bw.positionChan:
					bw.positionBuffer = append(bw.positionBuffer, update)
					continue
				default:
				}
				break
			}
			if len(bw.positionBuffer) > 0 {
				bw.flushPositions()
			}
			return
		}
	}
}

// eventWorker обрабатывает батчи событий зон
func (bw *BatchWriter) eventWorker() {
	defer bw.wg.Done()

	ticker := time.NewTicker(bw.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-bw.eventChan:
			bw.eventBuffer = append(bw.eventBuffer, event)
			if len(bw.eventBuffer) >= bw.config.BatchSize {
				bw.flushEvents()
			}

		case <-ticker.C:
			if len(bw.eventBuffer) > 0 {
				bw.flushEvents()
			}

		case <-bw.ctx.Done():
			for {
				select {
				case event := <-bw.eventChan:
					bw.eventBuffer = append(bw.eventBuffer, event)
					continue
				default:
				}
				break
			}
			if len(bw.eventBuffer) > 0 {
				bw.flushEvents()
			}
			return
		}
	}
}

// flushPositions записывает буфер позиций с повторами
func (bw *BatchWriter) flushPositions() {
	batch := bw.positionBuffer
	bw.positionBuffer = make([]*models.PositionUpdate, 0, bw.config.BatchSize)

	if err := bw.withRetry(func(ctx context.Context) error {
		return bw.repo.SavePositionsBatch(ctx, batch)
	}); err != nil {
		bw.logger.WithFields(map[string]interface{}{
			"batch_size": len(batch),
			"error":      err,
		}).Error("Failed to flush position batch")
		return
	}

	bw.logger.WithField("batch_size", len(batch)).Debug("Flushed position batch")
}

// flushEvents записывает буфер событий с повторами
func (bw *BatchWriter) flushEvents() {
	batch := bw.eventBuffer
	bw.eventBuffer = make([]models.ZoneEvent, 0, bw.config.BatchSize)

	if err := bw.withRetry(func(ctx context.Context) error {
		return bw.repo.SaveZoneEventsBatch(ctx, batch)
	}); err != nil {
		bw.logger.WithFields(map[string]interface{}{
			"batch_size": len(batch),
			"error":      err,
		}).Error("Failed to flush zone event batch")
	}
}

// withRetry выполняет запись с ограниченным числом повторов
func (bw *BatchWriter) withRetry(fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = fn(ctx)
		cancel()

		if err == nil {
			return nil
		}
	}
	return err
}

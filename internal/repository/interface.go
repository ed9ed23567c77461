package repository

import (
	"context"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

// Repository интерфейс для живого состояния и конфигурации
type Repository interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Конфигурация сенсоров
	SaveSensor(ctx context.Context, sensor *models.Sensor) error
	LoadSensors(ctx context.Context) ([]*models.Sensor, error)
	DeleteSensor(ctx context.Context, sensorID string) error

	// Конфигурация зон
	SaveZone(ctx context.Context, zone *models.Zone) error
	LoadZones(ctx context.Context) ([]*models.Zone, error)
	DeleteZone(ctx context.Context, zoneID string) error

	// Привязки людей к устройствам
	SavePerson(ctx context.Context, person *models.Person) error
	LoadPersons(ctx context.Context) ([]*models.Person, error)
	DeletePerson(ctx context.Context, personID string) error

	// Живые позиции
	SavePosition(ctx context.Context, update *models.PositionUpdate) error
	GetPosition(ctx context.Context, deviceID string) (*models.PositionUpdate, error)
	GetAllPositions(ctx context.Context) ([]*models.PositionUpdate, error)
	DeletePosition(ctx context.Context, deviceID string) error

	// Статистика
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// HistoryRepository интерфейс для исторических данных
type HistoryRepository interface {
	// Проверка соединения
	Ping(ctx context.Context) error
	Close() error

	// Batch запись опубликованных позиций
	SavePositionsBatch(ctx context.Context, updates []*models.PositionUpdate) error

	// Batch запись событий зон
	SaveZoneEventsBatch(ctx context.Context, events []models.ZoneEvent) error

	// Трек устройства за интервал времени
	GetDeviceTrack(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]*models.PositionUpdate, error)

	// События зон за интервал времени
	GetZoneEvents(ctx context.Context, zoneID string, from, to time.Time, limit int) ([]models.ZoneEvent, error)

	// Обслуживание
	CleanupOldPositions(ctx context.Context, olderThan time.Duration) error
	GetStats(ctx context.Context) (map[string]interface{}, error)
}

// Ensure implementations
var _ Repository = (*RedisRepository)(nil)
var _ HistoryRepository = (*MySQLRepository)(nil)

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BenJaminBMorin/hide-n-seek/internal/config"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

const (
	// Префиксы для JSON документов
	SensorPrefix   = "hns:sensor:"   // hns:sensor:{id}
	ZonePrefix     = "hns:zone:"     // hns:zone:{id}
	PersonPrefix   = "hns:person:"   // hns:person:{id}
	PositionPrefix = "hns:position:" // hns:position:{device_id}

	// Индексные множества
	SensorsIndexKey   = "hns:sensors"
	ZonesIndexKey     = "hns:zones"
	PersonsIndexKey   = "hns:persons"
	PositionsIndexKey = "hns:positions"

	// Живая позиция протухает сама, если трекер перестал ее обновлять
	PositionTTL = 5 * time.Minute
)

// ErrNotFound возвращается, когда запрошенной записи нет
var ErrNotFound = errors.New("not found")

// RedisRepository репозиторий для работы с Redis
type RedisRepository struct {
	client *redis.Client
	logger *utils.Logger
	config *config.RedisConfig
}

// NewRedisRepository создает новый Redis репозиторий
func NewRedisRepository(cfg *config.RedisConfig, logger *utils.Logger) (*RedisRepository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.Password = cfg.Password
	opt.DB = cfg.DB
	opt.PoolSize = cfg.PoolSize
	opt.MinIdleConns = cfg.MinIdleConns
	opt.ConnMaxIdleTime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return &RedisRepository{
		client: redis.NewClient(opt),
		logger: logger,
		config: cfg,
	}, nil
}

// Ping проверяет соединение с Redis
func (r *RedisRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		metrics.RedisConnectionStatus.Set(0)
		return err
	}
	metrics.RedisConnectionStatus.Set(1)
	return nil
}

// Close закрывает соединение с Redis
func (r *RedisRepository) Close() error {
	return r.client.Close()
}

// GetClient возвращает нижележащий Redis клиент
func (r *RedisRepository) GetClient() *redis.Client {
	return r.client
}

// observe записывает метрики операции
func (r *RedisRepository) observe(op string, start time.Time, err error) {
	metrics.RedisOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RedisOperationErrors.WithLabelValues(op).Inc()
	}
}

// saveJSON сохраняет документ и регистрирует его в индексном множестве
func (r *RedisRepository) saveJSON(ctx context.Context, key, indexKey, id string, doc interface{}, ttl time.Duration) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	pipe := r.client.Pipeline()
	if ttl > 0 {
		pipe.Set(ctx, key, data, ttl)
	} else {
		pipe.Set(ctx, key, data, 0)
	}
	pipe.SAdd(ctx, indexKey, id)
	_, err = pipe.Exec(ctx)
	return err
}

// loadAll загружает все документы из индексного множества. Записи,
// которые истекли по TTL, но остались в индексе, молча вычищаются.
func (r *RedisRepository) loadAll(ctx context.Context, prefix, indexKey string, decode func([]byte) error) error {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return err
	}

	for _, id := range ids {
		data, err := r.client.Get(ctx, prefix+id).Bytes()
		if errors.Is(err, redis.Nil) {
			r.client.SRem(ctx, indexKey, id)
			continue
		}
		if err != nil {
			return err
		}
		if err := decode(data); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"key":   prefix + id,
				"error": err,
			}).Warn("Skipping corrupt document")
		}
	}
	return nil
}

// SaveSensor сохраняет конфигурацию сенсора
func (r *RedisRepository) SaveSensor(ctx context.Context, sensor *models.Sensor) error {
	start := time.Now()
	err := r.saveJSON(ctx, SensorPrefix+sensor.ID, SensorsIndexKey, sensor.ID, sensor, 0)
	r.observe("save_sensor", start, err)
	return err
}

// LoadSensors загружает все сконфигурированные сенсоры
func (r *RedisRepository) LoadSensors(ctx context.Context) ([]*models.Sensor, error) {
	start := time.Now()
	var sensors []*models.Sensor
	err := r.loadAll(ctx, SensorPrefix, SensorsIndexKey, func(data []byte) error {
		var s models.Sensor
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		sensors = append(sensors, &s)
		return nil
	})
	r.observe("load_sensors", start, err)
	if err != nil {
		return nil, err
	}
	return sensors, nil
}

// DeleteSensor удаляет конфигурацию сенсора
func (r *RedisRepository) DeleteSensor(ctx context.Context, sensorID string) error {
	start := time.Now()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, SensorPrefix+sensorID)
	pipe.SRem(ctx, SensorsIndexKey, sensorID)
	_, err := pipe.Exec(ctx)
	r.observe("delete_sensor", start, err)
	return err
}

// SaveZone сохраняет конфигурацию зоны
func (r *RedisRepository) SaveZone(ctx context.Context, zone *models.Zone) error {
	start := time.Now()
	err := r.saveJSON(ctx, ZonePrefix+zone.ID, ZonesIndexKey, zone.ID, zone, 0)
	r.observe("save_zone", start, err)
	return err
}

// LoadZones загружает все сконфигурированные зоны
func (r *RedisRepository) LoadZones(ctx context.Context) ([]*models.Zone, error) {
	start := time.Now()
	var zones []*models.Zone
	err := r.loadAll(ctx, ZonePrefix, ZonesIndexKey, func(data []byte) error {
		var z models.Zone
		if err := json.Unmarshal(data, &z); err != nil {
			return err
		}
		zones = append(zones, &z)
		return nil
	})
	r.observe("load_zones", start, err)
	if err != nil {
		return nil, err
	}
	return zones, nil
}

// DeleteZone удаляет конфигурацию зоны
func (r *RedisRepository) DeleteZone(ctx context.Context, zoneID string) error {
	start := time.Now()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, ZonePrefix+zoneID)
	pipe.SRem(ctx, ZonesIndexKey, zoneID)
	_, err := pipe.Exec(ctx)
	r.observe("delete_zone", start, err)
	return err
}

// SavePerson сохраняет привязку человека к устройствам
func (r *RedisRepository) SavePerson(ctx context.Context, person *models.Person) error {
	start := time.Now()
	err := r.saveJSON(ctx, PersonPrefix+person.ID, PersonsIndexKey, person.ID, person, 0)
	r.observe("save_person", start, err)
	return err
}

// LoadPersons загружает всех сконфигурированных людей
func (r *RedisRepository) LoadPersons(ctx context.Context) ([]*models.Person, error) {
	start := time.Now()
	var persons []*models.Person
	err := r.loadAll(ctx, PersonPrefix, PersonsIndexKey, func(data []byte) error {
		var p models.Person
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		persons = append(persons, &p)
		return nil
	})
	r.observe("load_persons", start, err)
	if err != nil {
		return nil, err
	}
	return persons, nil
}

// DeletePerson удаляет привязку человека
func (r *RedisRepository) DeletePerson(ctx context.Context, personID string) error {
	start := time.Now()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, PersonPrefix+personID)
	pipe.SRem(ctx, PersonsIndexKey, personID)
	_, err := pipe.Exec(ctx)
	r.observe("delete_person", start, err)
	return err
}

// SavePosition сохраняет живую позицию устройства с TTL
func (r *RedisRepository) SavePosition(ctx context.Context, update *models.PositionUpdate) error {
	start := time.Now()
	err := r.saveJSON(ctx, PositionPrefix+update.DeviceID, PositionsIndexKey, update.DeviceID, update, PositionTTL)
	r.observe("save_position", start, err)
	return err
}

// GetPosition возвращает живую позицию устройства
func (r *RedisRepository) GetPosition(ctx context.Context, deviceID string) (*models.PositionUpdate, error) {
	start := time.Now()
	data, err := r.client.Get(ctx, PositionPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		r.observe("get_position", start, nil)
		return nil, ErrNotFound
	}
	r.observe("get_position", start, err)
	if err != nil {
		return nil, err
	}

	var update models.PositionUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("failed to unmarshal position: %w", err)
	}
	return &update, nil
}

// GetAllPositions возвращает все живые позиции
func (r *RedisRepository) GetAllPositions(ctx context.Context) ([]*models.PositionUpdate, error) {
	start := time.Now()
	var updates []*models.PositionUpdate
	err := r.loadAll(ctx, PositionPrefix, PositionsIndexKey, func(data []byte) error {
		var u models.PositionUpdate
		if err := json.Unmarshal(data, &u); err != nil {
			return err
		}
		updates = append(updates, &u)
		return nil
	})
	r.observe("get_all_positions", start, err)
	if err != nil {
		return nil, err
	}
	return updates, nil
}

// DeletePosition удаляет живую позицию устройства
func (r *RedisRepository) DeletePosition(ctx context.Context, deviceID string) error {
	start := time.Now()
	pipe := r.client.Pipeline()
	pipe.Del(ctx, PositionPrefix+deviceID)
	pipe.SRem(ctx, PositionsIndexKey, deviceID)
	_, err := pipe.Exec(ctx)
	r.observe("delete_position", start, err)
	return err
}

// GetStats возвращает статистику хранилища
func (r *RedisRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	pipe := r.client.Pipeline()
	sensors := pipe.SCard(ctx, SensorsIndexKey)
	zones := pipe.SCard(ctx, ZonesIndexKey)
	persons := pipe.SCard(ctx, PersonsIndexKey)
	positions := pipe.SCard(ctx, PositionsIndexKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"sensors":   sensors.Val(),
		"zones":     zones.Val(),
		"persons":   persons.Val(),
		"positions": positions.Val(),
	}, nil
}

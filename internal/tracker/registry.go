package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// SensorRegistry владеет статической конфигурацией сенсоров. Все записи
// валидируются при каждом изменении; читатели получают копию снимка.
type SensorRegistry struct {
	mu      sync.RWMutex
	sensors map[string]*models.Sensor
	logger  *utils.Logger
}

// NewSensorRegistry создает реестр сенсоров
func NewSensorRegistry(logger *utils.Logger) *SensorRegistry {
	return &SensorRegistry{
		sensors: make(map[string]*models.Sensor),
		logger:  logger,
	}
}

// Upsert добавляет или обновляет сенсор. Некорректная конфигурация
// отклоняется и не попадает в реестр.
func (r *SensorRegistry) Upsert(sensor *models.Sensor) error {
	if err := sensor.Validate(); err != nil {
		return fmt.Errorf("sensor validation failed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[sensor.ID] = sensor

	r.logger.WithFields(map[string]interface{}{
		"sensor_id": sensor.ID,
		"modality":  sensor.Modality.String(),
		"x":         sensor.Location.X,
		"y":         sensor.Location.Y,
		"enabled":   sensor.Enabled,
	}).Info("Sensor configured")

	return nil
}

// Delete удаляет сенсор из реестра
func (r *SensorRegistry) Delete(sensorID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sensors[sensorID]; !ok {
		return false
	}
	delete(r.sensors, sensorID)
	r.logger.WithField("sensor_id", sensorID).Info("Sensor removed")
	return true
}

// Get возвращает копию сенсора по идентификатору
func (r *SensorRegistry) Get(sensorID string) (*models.Sensor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sensors[sensorID]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// List возвращает копии всех сенсоров в стабильном порядке
func (r *SensorRegistry) List() []*models.Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Sensor, 0, len(r.sensors))
	for _, s := range r.sensors {
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot возвращает копию реестра для обработки одного тика
func (r *SensorRegistry) Snapshot() map[string]*models.Sensor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]*models.Sensor, len(r.sensors))
	for id, s := range r.sensors {
		cp := *s
		out[id] = &cp
	}
	return out
}

// SetEnabled переключает сенсор
func (r *SensorRegistry) SetEnabled(sensorID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sensors[sensorID]
	if !ok {
		return fmt.Errorf("sensor %s not found", sensorID)
	}
	s.Enabled = enabled

	r.logger.WithFields(map[string]interface{}{
		"sensor_id": sensorID,
		"enabled":   enabled,
	}).Info("Sensor toggled")
	return nil
}

// Calibrate обновляет калибровку signal_strength сенсора
func (r *SensorRegistry) Calibrate(sensorID string, cal models.Calibration) error {
	if err := cal.Validate(); err != nil {
		return fmt.Errorf("calibration validation failed: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sensors[sensorID]
	if !ok {
		return fmt.Errorf("sensor %s not found", sensorID)
	}
	if s.Modality != models.ModalitySignalStrength {
		return fmt.Errorf("sensor %s is not a signal-strength sensor", sensorID)
	}
	s.Calibration = cal

	r.logger.WithFields(map[string]interface{}{
		"sensor_id":     sensorID,
		"rssi_ref":      cal.RSSIRef,
		"path_loss_exp": cal.PathLossExp,
	}).Info("Sensor calibrated")
	return nil
}

// MarkSeen отмечает время последнего показания сенсора
func (r *SensorRegistry) MarkSeen(sensorID string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sensors[sensorID]; ok && t.After(s.LastSeen) {
		s.LastSeen = t
	}
}

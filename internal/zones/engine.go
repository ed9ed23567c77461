// Package zones отслеживает принадлежность устройств полигональным
// зонам и излучает события пересечения границ по фронту изменения.
package zones

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// Engine владеет конфигурацией зон и состоянием принадлежности каждой
// пары (устройство, зона). Состояние меняется только здесь и только
// когда результат проверки принадлежности отличается от сохраненного.
type Engine struct {
	mu         sync.RWMutex
	zones      map[string]*models.Zone
	membership map[string]map[string]bool // device_id -> zone_id -> inside
	logger     *utils.Logger
}

// NewEngine создает движок зон
func NewEngine(logger *utils.Logger) *Engine {
	return &Engine{
		zones:      make(map[string]*models.Zone),
		membership: make(map[string]map[string]bool),
		logger:     logger,
	}
}

// Upsert добавляет или обновляет зону. Вырожденные полигоны отклоняются
// на этапе конфигурации. Выключение зоны через обновление принудительно
// выводит из нее всех текущих участников.
func (e *Engine) Upsert(zone *models.Zone, now time.Time) ([]models.ZoneEvent, error) {
	if err := zone.Validate(); err != nil {
		return nil, fmt.Errorf("zone validation failed: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var events []models.ZoneEvent
	if prev, ok := e.zones[zone.ID]; ok && prev.Enabled && !zone.Enabled {
		events = e.forceExitLocked(zone.ID, now)
	}
	e.zones[zone.ID] = zone

	e.logger.WithFields(map[string]interface{}{
		"zone_id":  zone.ID,
		"vertices": len(zone.Vertices),
		"enabled":  zone.Enabled,
	}).Info("Zone configured")

	return events, nil
}

// Delete удаляет зону, принудительно выводя из нее всех участников,
// чтобы внешнее состояние не показывало занятость исчезнувшей зоны.
func (e *Engine) Delete(zoneID string, now time.Time) ([]models.ZoneEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.zones[zoneID]; !ok {
		return nil, false
	}

	events := e.forceExitLocked(zoneID, now)
	delete(e.zones, zoneID)
	for _, byZone := range e.membership {
		delete(byZone, zoneID)
	}

	e.logger.WithField("zone_id", zoneID).Info("Zone deleted")
	return events, true
}

// SetEnabled переключает зону. Выключение выводит всех участников;
// включение начинает с чистого состояния, без ложных "entered" -
// принадлежность вычислится на следующем тике.
func (e *Engine) SetEnabled(zoneID string, enabled bool, now time.Time) ([]models.ZoneEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	zone, ok := e.zones[zoneID]
	if !ok {
		return nil, fmt.Errorf("zone %s not found", zoneID)
	}
	if zone.Enabled == enabled {
		return nil, nil
	}

	var events []models.ZoneEvent
	if !enabled {
		events = e.forceExitLocked(zoneID, now)
	}
	zone.Enabled = enabled

	e.logger.WithFields(map[string]interface{}{
		"zone_id": zoneID,
		"enabled": enabled,
	}).Info("Zone toggled")

	return events, nil
}

// Evaluate проверяет позицию устройства против всех включенных зон и
// возвращает события переходов. Для каждой пары (устройство, зона)
// состояние мутирует не более одного раза за вызов.
func (e *Engine) Evaluate(deviceID string, x, y float64, now time.Time) []models.ZoneEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	byZone, ok := e.membership[deviceID]
	if !ok {
		byZone = make(map[string]bool)
		e.membership[deviceID] = byZone
	}

	var events []models.ZoneEvent
	for zoneID, zone := range e.zones {
		if !zone.Enabled {
			continue
		}

		inside := zone.ContainsPoint(x, y)
		if inside == byZone[zoneID] {
			continue
		}
		byZone[zoneID] = inside

		transition := models.TransitionExited
		if inside {
			transition = models.TransitionEntered
		}
		events = append(events, models.ZoneEvent{
			DeviceID:   deviceID,
			ZoneID:     zoneID,
			ZoneName:   zone.Name,
			Transition: transition,
			Timestamp:  now,
			X:          x,
			Y:          y,
		})

		e.logger.WithFields(map[string]interface{}{
			"device_id":  deviceID,
			"zone_id":    zoneID,
			"transition": string(transition),
		}).Info("Zone transition")
	}

	return events
}

// DropDevice освобождает состояние устройства, выводя его из всех зон,
// где оно числилось. Используется когда устройство уходит в stale.
func (e *Engine) DropDevice(deviceID string, lastX, lastY float64, now time.Time) []models.ZoneEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	byZone, ok := e.membership[deviceID]
	if !ok {
		return nil
	}

	var events []models.ZoneEvent
	for zoneID, inside := range byZone {
		if !inside {
			continue
		}
		zone := e.zones[zoneID]
		name := ""
		if zone != nil {
			name = zone.Name
		}
		events = append(events, models.ZoneEvent{
			DeviceID:   deviceID,
			ZoneID:     zoneID,
			ZoneName:   name,
			Transition: models.TransitionExited,
			Timestamp:  now,
			X:          lastX,
			Y:          lastY,
		})
	}
	delete(e.membership, deviceID)

	return events
}

// forceExitLocked излучает "exited" для всех устройств внутри зоны
// и сбрасывает их состояние принадлежности. Вызывается под блокировкой.
func (e *Engine) forceExitLocked(zoneID string, now time.Time) []models.ZoneEvent {
	zone := e.zones[zoneID]
	name := ""
	if zone != nil {
		name = zone.Name
	}

	var events []models.ZoneEvent
	for deviceID, byZone := range e.membership {
		if !byZone[zoneID] {
			continue
		}
		byZone[zoneID] = false
		events = append(events, models.ZoneEvent{
			DeviceID:   deviceID,
			ZoneID:     zoneID,
			ZoneName:   name,
			Transition: models.TransitionExited,
			Timestamp:  now,
		})
	}
	return events
}

// Zone возвращает зону по идентификатору
func (e *Engine) Zone(zoneID string) (*models.Zone, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	z, ok := e.zones[zoneID]
	return z, ok
}

// Zones возвращает все зоны в стабильном порядке
func (e *Engine) Zones() []*models.Zone {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.Zone, 0, len(e.zones))
	for _, z := range e.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DeviceZones возвращает идентификаторы зон, в которых сейчас устройство
func (e *Engine) DeviceZones(deviceID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []string
	for zoneID, inside := range e.membership[deviceID] {
		if inside {
			ids = append(ids, zoneID)
		}
	}
	sort.Strings(ids)
	return ids
}

// ZoneOccupancy возвращает устройства, находящиеся сейчас в зоне
func (e *Engine) ZoneOccupancy(zoneID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var ids []string
	for deviceID, byZone := range e.membership {
		if byZone[zoneID] {
			ids = append(ids, deviceID)
		}
	}
	sort.Strings(ids)
	return ids
}

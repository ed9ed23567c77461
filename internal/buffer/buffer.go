// Package buffer хранит последние показания сенсоров для каждой пары
// (сенсор, устройство). Продюсеры пишут асинхронно из разных транспортов,
// координатор забирает консистентный снимок раз в тик.
package buffer

import (
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

// ReadingBuffer потокобезопасное хранилище последних показаний.
// Запись не блокируется на время обработки снимка: снимок копирует
// данные под коротким RLock и далее неизменяем.
type ReadingBuffer struct {
	mu       sync.RWMutex
	readings map[string]map[string]*models.Reading // device_id -> sensor_id -> reading
	maxAge   time.Duration
}

// NewReadingBuffer создает новый буфер показаний.
// maxAge - окно устаревания: показания старше исключаются из снимков.
func NewReadingBuffer(maxAge time.Duration) *ReadingBuffer {
	return &ReadingBuffer{
		readings: make(map[string]map[string]*models.Reading),
		maxAge:   maxAge,
	}
}

// Put сохраняет показание, вытесняя предыдущее для той же пары
// (сенсор, устройство). Более старое показание не вытесняет более новое.
// Буфер хранит собственную копию, поэтому вызывающий может вернуть
// показание в пул сразу после Put.
func (b *ReadingBuffer) Put(r *models.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byDevice, ok := b.readings[r.DeviceID]
	if !ok {
		byDevice = make(map[string]*models.Reading)
		b.readings[r.DeviceID] = byDevice
	}

	if prev, ok := byDevice[r.SensorID]; ok && prev.Timestamp.After(r.Timestamp) {
		return
	}

	cp := *r
	if r.RSSI != nil {
		rssi := *r.RSSI
		cp.RSSI = &rssi
	}
	if r.Position != nil {
		pos := *r.Position
		cp.Position = &pos
	}
	byDevice[r.SensorID] = &cp
}

// Snapshot возвращает неизменяемый снимок неустаревших показаний на момент
// now, сгруппированный по устройствам. Все вычисления одного тика работают
// с одним снимком и видят согласованное состояние.
func (b *ReadingBuffer) Snapshot(now time.Time) map[string][]*models.Reading {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make(map[string][]*models.Reading, len(b.readings))
	for deviceID, byDevice := range b.readings {
		var fresh []*models.Reading
		for _, r := range byDevice {
			if !r.IsStale(now, b.maxAge) {
				fresh = append(fresh, r)
			}
		}
		if len(fresh) > 0 {
			snapshot[deviceID] = fresh
		}
	}
	return snapshot
}

// LastSeen возвращает время самого свежего показания устройства
// и false, если показаний нет вовсе.
func (b *ReadingBuffer) LastSeen(deviceID string) (time.Time, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	byDevice, ok := b.readings[deviceID]
	if !ok || len(byDevice) == 0 {
		return time.Time{}, false
	}

	var last time.Time
	for _, r := range byDevice {
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return last, true
}

// Sweep удаляет показания старше retention и устройства без показаний.
// Вызывается координатором, чтобы буфер не рос на исчезнувших устройствах.
func (b *ReadingBuffer) Sweep(now time.Time, retention time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for deviceID, byDevice := range b.readings {
		for sensorID, r := range byDevice {
			if now.Sub(r.Timestamp) > retention {
				delete(byDevice, sensorID)
				removed++
			}
		}
		if len(byDevice) == 0 {
			delete(b.readings, deviceID)
		}
	}
	return removed
}

// Drop удаляет все показания устройства. Используется когда устройство
// переходит в stale и его состояние освобождается.
func (b *ReadingBuffer) Drop(deviceID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.readings, deviceID)
}

// DeviceCount возвращает количество устройств с хоть одним показанием
func (b *ReadingBuffer) DeviceCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.readings)
}

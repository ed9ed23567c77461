// Package tracker реализует периодический цикл трекинга: снимок
// показаний -> решение позиции -> временное сглаживание -> проверка
// зон -> публикация.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/buffer"
	"github.com/BenJaminBMorin/hide-n-seek/internal/filter"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/internal/solver"
	"github.com/BenJaminBMorin/hide-n-seek/internal/zones"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// Publisher получает результаты каждого тика. Реализация обязана быть
// потокобезопасной: устройства внутри тика обрабатываются параллельно.
type Publisher interface {
	PublishPosition(update *models.PositionUpdate)
	PublishZoneEvent(event models.ZoneEvent)
}

// HistoryRecorder асинхронно записывает опубликованные позиции и
// события зон
type HistoryRecorder interface {
	Enqueue(update *models.PositionUpdate)
	EnqueueZoneEvent(event models.ZoneEvent)
}

// DeviceState состояние устройства в цикле трекинга
type DeviceState uint8

const (
	StateUninitialized DeviceState = iota // показания есть, позиции еще нет
	StateTracking                         // позиция была вычислена хотя бы раз
)

// String возвращает строковое представление состояния
func (s DeviceState) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	default:
		return "uninitialized"
	}
}

// Config параметры цикла трекинга
type Config struct {
	TickInterval  time.Duration // период тика координатора
	StaleAfter    time.Duration // окно устаревания показаний
	InactiveAfter time.Duration // неактивность, после которой устройство забывается
	Workers       int           // максимум параллельно обрабатываемых устройств
}

// deviceTrack состояние одного устройства между тиками. Не разделяется
// между устройствами; внутри тика каждое устройство трогает только
// один воркер. mu защищает поля от одновременного чтения
// диагностическими методами Devices и Position во время тика.
type deviceTrack struct {
	mu             sync.Mutex
	state          DeviceState
	lastReading    time.Time
	lastFilterTime time.Time
	lastPublished  *models.PositionUpdate
	lastOutcome    models.DeviceOutcome
	lastMethod     models.PositionMethod
	lastCount      int
}

// Tracker периодический координатор пайплайна
type Tracker struct {
	cfg       Config
	logger    *utils.Logger
	sensors   *SensorRegistry
	buffer    *buffer.ReadingBuffer
	solver    *solver.Solver
	filters   *filter.Store
	zones     *zones.Engine
	publisher Publisher
	history   HistoryRecorder // может быть nil

	mu      sync.Mutex
	devices map[string]*deviceTrack
}

// New создает трекер
func New(cfg Config, logger *utils.Logger, sensors *SensorRegistry, buf *buffer.ReadingBuffer,
	slv *solver.Solver, filters *filter.Store, zoneEngine *zones.Engine,
	publisher Publisher, history HistoryRecorder) *Tracker {

	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 3 * cfg.TickInterval
	}
	if cfg.InactiveAfter <= 0 {
		cfg.InactiveAfter = 60 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}

	return &Tracker{
		cfg:       cfg,
		logger:    logger,
		sensors:   sensors,
		buffer:    buf,
		solver:    slv,
		filters:   filters,
		zones:     zoneEngine,
		publisher: publisher,
		history:   history,
		devices:   make(map[string]*deviceTrack),
	}
}

// AcceptReading валидирует и принимает сырое показание в буфер.
// Точка входа для всех транспортов: MQTT, push API, сканеры.
// Вызов не блокируется на время обработки тика.
func (t *Tracker) AcceptReading(r *models.Reading) error {
	sensor, ok := t.sensors.Get(r.SensorID)
	if !ok {
		metrics.ReadingsRejected.WithLabelValues("unknown_sensor").Inc()
		return fmt.Errorf("unknown sensor: %s", r.SensorID)
	}
	if !sensor.Enabled {
		metrics.ReadingsRejected.WithLabelValues("sensor_disabled").Inc()
		return nil
	}

	if err := r.Validate(sensor.Modality); err != nil {
		metrics.ReadingsRejected.WithLabelValues("invalid").Inc()
		return fmt.Errorf("reading validation failed: %w", err)
	}

	t.buffer.Put(r)
	t.sensors.MarkSeen(r.SensorID, r.Timestamp)
	metrics.ReadingsReceived.WithLabelValues(sensor.Modality.String()).Inc()
	return nil
}

// Run запускает периодический цикл до отмены контекста
func (t *Tracker) Run(ctx context.Context) {
	t.logger.WithFields(map[string]interface{}{
		"tick_interval":  t.cfg.TickInterval,
		"stale_after":    t.cfg.StaleAfter,
		"inactive_after": t.cfg.InactiveAfter,
		"workers":        t.cfg.Workers,
	}).Info("Starting tracking cycle")

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Tracking cycle stopped")
			return
		case now := <-ticker.C:
			t.Tick(now)
		}
	}
}

// Tick выполняет один цикл обновления. Снимок буфера неизменяем на
// все время тика; отказ обработки одного устройства не прерывает тик
// для остальных.
func (t *Tracker) Tick(now time.Time) {
	started := time.Now()

	sensors := t.sensors.Snapshot()
	snapshot := t.buffer.Snapshot(now)

	type job struct {
		deviceID string
		track    *deviceTrack
		readings []*models.Reading
	}

	t.mu.Lock()
	for deviceID := range snapshot {
		if _, ok := t.devices[deviceID]; !ok {
			t.devices[deviceID] = &deviceTrack{
				state:          StateUninitialized,
				lastFilterTime: now,
			}
			t.logger.WithField("device_id", deviceID).Info("New device observed")
		}
	}
	jobs := make([]job, 0, len(t.devices))
	for deviceID, track := range t.devices {
		if last, ok := t.buffer.LastSeen(deviceID); ok {
			track.lastReading = last
		}
		jobs = append(jobs, job{deviceID: deviceID, track: track, readings: snapshot[deviceID]})
	}
	t.mu.Unlock()

	sem := make(chan struct{}, t.cfg.Workers)
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(j job) {
			defer wg.Done()
			defer func() { <-sem }()

			j.track.mu.Lock()
			outcome := t.processDevice(j.deviceID, j.track, j.readings, sensors, now)
			j.track.lastOutcome = outcome
			j.track.mu.Unlock()
			metrics.DeviceOutcomes.WithLabelValues(string(outcome.Status)).Inc()
		}(j)
	}
	wg.Wait()

	t.sweepInactive(now)
	t.buffer.Sweep(now, t.cfg.InactiveAfter)

	metrics.ActiveDevices.Set(float64(t.filters.ActiveCount()))
	metrics.TickDuration.Observe(time.Since(started).Seconds())
}

// processDevice обрабатывает одно устройство за один тик: предсказание
// фильтра, решение позиции из показаний, коррекция, проверка зон и
// публикация. Все ошибки локализованы в устройстве.
func (t *Tracker) processDevice(deviceID string, track *deviceTrack,
	readings []*models.Reading, sensors map[string]*models.Sensor, now time.Time) models.DeviceOutcome {

	k := t.filters.Get(deviceID, track.lastReading)

	dt := now.Sub(track.lastFilterTime).Seconds()
	track.lastFilterTime = now
	if err := k.Predict(dt); err != nil {
		// Ковариация разошлась: фильтр сброшен, переинициализируется
		// следующим измерением
		t.logger.WithFields(map[string]interface{}{
			"device_id": deviceID,
			"error":     err,
		}).Error("Kalman filter diverged")
		track.state = StateUninitialized
		return models.DeviceOutcome{DeviceID: deviceID, Status: models.OutcomeSolverFailure, Error: err.Error()}
	}

	var raw *models.RawPosition
	var solveErr error
	if len(readings) > 0 {
		raw, solveErr = t.solver.Solve(deviceID, readings, sensors)
	}

	if raw != nil {
		if err := k.Update(raw.X, raw.Y, raw.Confidence); err != nil {
			t.logger.WithFields(map[string]interface{}{
				"device_id": deviceID,
				"error":     err,
			}).Error("Kalman update failed")
			track.state = StateUninitialized
			return models.DeviceOutcome{DeviceID: deviceID, Status: models.OutcomeSolverFailure, Error: err.Error()}
		}
		track.lastMethod = raw.Method
		track.lastCount = raw.SensorCount
	}

	if !k.Initialized() {
		// Позиции еще не было: различаем нехватку сенсоров и отказ решателя
		status := models.OutcomeInsufficientSensors
		msg := "no position available"
		if solveErr != nil {
			msg = solveErr.Error()
			if errors.Is(solveErr, solver.ErrSingularGeometry) {
				status = models.OutcomeSolverFailure
			}
		}
		return models.DeviceOutcome{DeviceID: deviceID, Status: status, Error: msg}
	}

	if track.state == StateUninitialized {
		track.state = StateTracking
		t.logger.WithField("device_id", deviceID).Info("Device acquired")
	}

	x, y := k.Position()
	update := &models.PositionUpdate{
		DeviceID:    deviceID,
		X:           x,
		Y:           y,
		Confidence:  k.Confidence(),
		SensorCount: track.lastCount,
		Method:      track.lastMethod,
		Timestamp:   now,
	}

	if positionChanged(track.lastPublished, update) {
		t.publisher.PublishPosition(update)
		if t.history != nil {
			t.history.Enqueue(update)
		}
		metrics.PositionsPublished.WithLabelValues(string(update.Method)).Inc()
		track.lastPublished = update
	}

	for _, event := range t.zones.Evaluate(deviceID, x, y, now) {
		t.publisher.PublishZoneEvent(event)
		if t.history != nil {
			t.history.EnqueueZoneEvent(event)
		}
		metrics.ZoneEvents.WithLabelValues(string(event.Transition)).Inc()
	}

	if solveErr != nil {
		// Решения в этот тик не было, позиция опубликована по предсказанию
		status := models.OutcomeInsufficientSensors
		if errors.Is(solveErr, solver.ErrSingularGeometry) {
			status = models.OutcomeSolverFailure
		}
		return models.DeviceOutcome{DeviceID: deviceID, Status: status, Error: solveErr.Error()}
	}

	return models.DeviceOutcome{DeviceID: deviceID, Status: models.OutcomeOK}
}

// sweepInactive забывает устройства без показаний дольше порога
// неактивности: их фильтры уничтожаются, зоны получают "exited",
// повторное появление начнется с чистого состояния.
func (t *Tracker) sweepInactive(now time.Time) {
	dropped := t.filters.Sweep(now, t.cfg.InactiveAfter)
	if len(dropped) == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, deviceID := range dropped {
		track, ok := t.devices[deviceID]
		if !ok {
			continue
		}

		var lastX, lastY float64
		if track.lastPublished != nil {
			lastX = track.lastPublished.X
			lastY = track.lastPublished.Y
		}
		for _, event := range t.zones.DropDevice(deviceID, lastX, lastY, now) {
			t.publisher.PublishZoneEvent(event)
			if t.history != nil {
				t.history.EnqueueZoneEvent(event)
			}
			metrics.ZoneEvents.WithLabelValues(string(event.Transition)).Inc()
		}

		delete(t.devices, deviceID)
		t.buffer.Drop(deviceID)
		metrics.DeviceOutcomes.WithLabelValues(string(models.OutcomeStale)).Inc()

		t.logger.WithField("device_id", deviceID).Info("Device went stale, state released")
	}
}

// DeviceSummary срез состояния устройства для диагностики
type DeviceSummary struct {
	DeviceID    string                 `json:"device_id"`
	State       string                 `json:"state"`
	LastReading time.Time              `json:"last_reading"`
	Position    *models.PositionUpdate `json:"position,omitempty"`
	Outcome     models.DeviceOutcome   `json:"outcome"`
	Zones       []string               `json:"zones,omitempty"`
}

// Devices возвращает диагностический срез всех отслеживаемых устройств
func (t *Tracker) Devices() []DeviceSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]DeviceSummary, 0, len(t.devices))
	for deviceID, track := range t.devices {
		track.mu.Lock()
		out = append(out, DeviceSummary{
			DeviceID:    deviceID,
			State:       track.state.String(),
			LastReading: track.lastReading,
			Position:    track.lastPublished,
			Outcome:     track.lastOutcome,
			Zones:       t.zones.DeviceZones(deviceID),
		})
		track.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

// Position возвращает последнюю опубликованную позицию устройства
func (t *Tracker) Position(deviceID string) (*models.PositionUpdate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	track, ok := t.devices[deviceID]
	if !ok {
		return nil, false
	}

	track.mu.Lock()
	defer track.mu.Unlock()
	if track.lastPublished == nil {
		return nil, false
	}
	cp := *track.lastPublished
	return &cp, true
}

// positionChanged сообщает, отличается ли новая позиция от последней
// опубликованной
func positionChanged(prev, next *models.PositionUpdate) bool {
	if prev == nil {
		return true
	}
	return prev.X != next.X || prev.Y != next.Y ||
		prev.Confidence != next.Confidence ||
		prev.Method != next.Method
}

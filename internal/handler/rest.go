package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/internal/repository"
	"github.com/BenJaminBMorin/hide-n-seek/internal/tracker"
	"github.com/BenJaminBMorin/hide-n-seek/internal/zones"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/pool"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// RESTHandler обработчик REST API endpoints
type RESTHandler struct {
	tracker   *tracker.Tracker
	sensors   *tracker.SensorRegistry
	zones     *zones.Engine
	persons   *tracker.PersonRegistry
	publisher tracker.Publisher
	history   tracker.HistoryRecorder        // может быть nil
	repo      repository.Repository          // может быть nil
	historyDB repository.HistoryRepository   // может быть nil
	logger    *utils.Logger
	timeout   time.Duration
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(trk *tracker.Tracker, sensors *tracker.SensorRegistry, zoneEngine *zones.Engine,
	persons *tracker.PersonRegistry, publisher tracker.Publisher, history tracker.HistoryRecorder,
	repo repository.Repository, historyDB repository.HistoryRepository, logger *utils.Logger) *RESTHandler {

	return &RESTHandler{
		tracker:   trk,
		sensors:   sensors,
		zones:     zoneEngine,
		persons:   persons,
		publisher: publisher,
		history:   history,
		repo:      repo,
		historyDB: historyDB,
		logger:    logger,
		timeout:   30 * time.Second,
	}
}

// emitZoneEvents публикует события зон, порожденные изменением
// конфигурации (отключение или удаление зоны выталкивает устройства)
func (h *RESTHandler) emitZoneEvents(events []models.ZoneEvent) {
	for _, event := range events {
		h.publisher.PublishZoneEvent(event)
		if h.history != nil {
			h.history.EnqueueZoneEvent(event)
		}
	}
}

// ==================== Devices ====================

// GetDevices возвращает диагностический срез всех устройств
// GET /api/v1/devices
func (h *RESTHandler) GetDevices(c *gin.Context) {
	devices := h.tracker.Devices()
	c.JSON(http.StatusOK, gin.H{
		"devices": devices,
		"count":   len(devices),
	})
}

// GetDevicePosition возвращает последнюю позицию устройства
// GET /api/v1/devices/:id/position
func (h *RESTHandler) GetDevicePosition(c *gin.Context) {
	deviceID := c.Param("id")

	update, ok := h.tracker.Position(deviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "device_not_found",
			"message": "Device has no known position",
		})
		return
	}

	c.JSON(http.StatusOK, update)
}

// GetDeviceTrack возвращает исторический трек устройства
// GET /api/v1/devices/:id/track?from=...&to=...&limit=500
func (h *RESTHandler) GetDeviceTrack(c *gin.Context) {
	if h.historyDB == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"code":    "history_disabled",
			"message": "Position history storage is not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	deviceID := c.Param("id")
	from, to, limit, err := parseRangeQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_range",
			"message": err.Error(),
		})
		return
	}

	track, err := h.historyDB.GetDeviceTrack(ctx, deviceID, from, to, limit)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get device track")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "Failed to retrieve track",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"track":     track,
		"count":     len(track),
	})
}

// ==================== Readings ====================

// PostReading принимает показание сенсора по HTTP. Альтернатива MQTT
// для станций без брокера.
// POST /api/v1/readings
func (h *RESTHandler) PostReading(c *gin.Context) {
	var body struct {
		SensorID   string   `json:"sensor_id" binding:"required"`
		DeviceID   string   `json:"device_id" binding:"required"`
		RSSI       *float64 `json:"rssi,omitempty"`
		X          *float64 `json:"x,omitempty"`
		Y          *float64 `json:"y,omitempty"`
		Confidence float64  `json:"confidence,omitempty"`
		Timestamp  int64    `json:"timestamp,omitempty"`
	}

	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	ts := time.Now()
	if body.Timestamp > 0 {
		ts = time.UnixMilli(body.Timestamp)
	}

	reading := pool.Global.GetReading()
	defer pool.Global.PutReading(reading)
	reading.SensorID = body.SensorID
	reading.DeviceID = body.DeviceID
	reading.Timestamp = ts
	reading.RSSI = body.RSSI
	reading.Confidence = body.Confidence
	if body.X != nil && body.Y != nil {
		reading.Position = &models.Point{X: *body.X, Y: *body.Y}
	}

	if err := h.tracker.AcceptReading(reading); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "reading_rejected",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// ==================== Sensors ====================

// GetSensors возвращает все сконфигурированные сенсоры
// GET /api/v1/sensors
func (h *RESTHandler) GetSensors(c *gin.Context) {
	sensors := h.sensors.List()
	c.JSON(http.StatusOK, gin.H{
		"sensors": sensors,
		"count":   len(sensors),
	})
}

// GetSensor возвращает сенсор по идентификатору
// GET /api/v1/sensors/:id
func (h *RESTHandler) GetSensor(c *gin.Context) {
	sensor, ok := h.sensors.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "sensor_not_found",
			"message": "Sensor is not registered",
		})
		return
	}
	c.JSON(http.StatusOK, sensor)
}

// PutSensor создает или обновляет сенсор
// PUT /api/v1/sensors/:id
func (h *RESTHandler) PutSensor(c *gin.Context) {
	var sensor models.Sensor
	if err := c.ShouldBindJSON(&sensor); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}
	sensor.ID = c.Param("id")

	if err := h.sensors.Upsert(&sensor); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "invalid_sensor",
			"message": err.Error(),
		})
		return
	}

	h.persistSensor(c.Request.Context(), &sensor)
	c.JSON(http.StatusOK, sensor)
}

// DeleteSensor удаляет сенсор
// DELETE /api/v1/sensors/:id
func (h *RESTHandler) DeleteSensor(c *gin.Context) {
	sensorID := c.Param("id")
	if !h.sensors.Delete(sensorID) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "sensor_not_found",
			"message": "Sensor is not registered",
		})
		return
	}

	if h.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.repo.DeleteSensor(ctx, sensorID); err != nil {
			h.logger.WithField("error", err).Warn("Failed to delete sensor from storage")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// PostSensorCalibration обновляет калибровку сенсора уровня сигнала
// POST /api/v1/sensors/:id/calibration
func (h *RESTHandler) PostSensorCalibration(c *gin.Context) {
	var cal models.Calibration
	if err := c.ShouldBindJSON(&cal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	if err := h.sensors.Calibrate(c.Param("id"), cal); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "calibration_rejected",
			"message": err.Error(),
		})
		return
	}

	if sensor, ok := h.sensors.Get(c.Param("id")); ok {
		h.persistSensor(c.Request.Context(), sensor)
	}

	c.JSON(http.StatusOK, gin.H{"status": "calibrated"})
}

// PostSensorEnabled включает или выключает сенсор
// POST /api/v1/sensors/:id/enabled
func (h *RESTHandler) PostSensorEnabled(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	if err := h.sensors.SetEnabled(c.Param("id"), *body.Enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "sensor_not_found",
			"message": err.Error(),
		})
		return
	}

	if sensor, ok := h.sensors.Get(c.Param("id")); ok {
		h.persistSensor(c.Request.Context(), sensor)
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// persistSensor сохраняет сенсор в хранилище конфигурации best-effort
func (h *RESTHandler) persistSensor(ctx context.Context, sensor *models.Sensor) {
	if h.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.repo.SaveSensor(ctx, sensor); err != nil {
		h.logger.WithFields(map[string]interface{}{
			"sensor_id": sensor.ID,
			"error":     err,
		}).Warn("Failed to persist sensor")
	}
}

// ==================== Zones ====================

// GetZones возвращает все сконфигурированные зоны
// GET /api/v1/zones
func (h *RESTHandler) GetZones(c *gin.Context) {
	zoneList := h.zones.Zones()
	c.JSON(http.StatusOK, gin.H{
		"zones": zoneList,
		"count": len(zoneList),
	})
}

// GetZone возвращает зону по идентификатору
// GET /api/v1/zones/:id
func (h *RESTHandler) GetZone(c *gin.Context) {
	zone, ok := h.zones.Zone(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "zone_not_found",
			"message": "Zone is not configured",
		})
		return
	}
	c.JSON(http.StatusOK, zone)
}

// PutZone создает или обновляет зону
// PUT /api/v1/zones/:id
func (h *RESTHandler) PutZone(c *gin.Context) {
	var zone models.Zone
	if err := c.ShouldBindJSON(&zone); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}
	zone.ID = c.Param("id")

	events, err := h.zones.Upsert(&zone, time.Now())
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "invalid_zone",
			"message": err.Error(),
		})
		return
	}
	h.emitZoneEvents(events)

	h.persistZone(c.Request.Context(), &zone)
	c.JSON(http.StatusOK, zone)
}

// DeleteZone удаляет зону, выталкивая находящиеся в ней устройства
// DELETE /api/v1/zones/:id
func (h *RESTHandler) DeleteZone(c *gin.Context) {
	zoneID := c.Param("id")

	events, ok := h.zones.Delete(zoneID, time.Now())
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "zone_not_found",
			"message": "Zone is not configured",
		})
		return
	}
	h.emitZoneEvents(events)

	if h.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.repo.DeleteZone(ctx, zoneID); err != nil {
			h.logger.WithField("error", err).Warn("Failed to delete zone from storage")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// PostZoneEnabled включает или выключает зону
// POST /api/v1/zones/:id/enabled
func (h *RESTHandler) PostZoneEnabled(c *gin.Context) {
	var body struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	events, err := h.zones.SetEnabled(c.Param("id"), *body.Enabled, time.Now())
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "zone_not_found",
			"message": err.Error(),
		})
		return
	}
	h.emitZoneEvents(events)

	if zone, ok := h.zones.Zone(c.Param("id")); ok {
		h.persistZone(c.Request.Context(), zone)
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// GetZoneOccupancy возвращает устройства, находящиеся в зоне
// GET /api/v1/zones/:id/occupancy
func (h *RESTHandler) GetZoneOccupancy(c *gin.Context) {
	zoneID := c.Param("id")
	if _, ok := h.zones.Zone(zoneID); !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "zone_not_found",
			"message": "Zone is not configured",
		})
		return
	}

	devices := h.zones.ZoneOccupancy(zoneID)
	c.JSON(http.StatusOK, gin.H{
		"zone_id": zoneID,
		"devices": devices,
		"count":   len(devices),
	})
}

// GetZoneEvents возвращает исторические события зоны
// GET /api/v1/zones/:id/events?from=...&to=...&limit=500
func (h *RESTHandler) GetZoneEvents(c *gin.Context) {
	if h.historyDB == nil {
		c.JSON(http.StatusNotImplemented, gin.H{
			"code":    "history_disabled",
			"message": "Event history storage is not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	zoneID := c.Param("id")
	from, to, limit, err := parseRangeQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_range",
			"message": err.Error(),
		})
		return
	}

	events, err := h.historyDB.GetZoneEvents(ctx, zoneID, from, to, limit)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get zone events")
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "Failed to retrieve events",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"zone_id": zoneID,
		"events":  events,
		"count":   len(events),
	})
}

// ==================== Persons ====================

// GetPersons возвращает всех сконфигурированных людей
// GET /api/v1/persons
func (h *RESTHandler) GetPersons(c *gin.Context) {
	persons := h.persons.List()
	c.JSON(http.StatusOK, gin.H{
		"persons": persons,
		"count":   len(persons),
	})
}

// GetPerson возвращает человека по идентификатору
// GET /api/v1/persons/:id
func (h *RESTHandler) GetPerson(c *gin.Context) {
	person, ok := h.persons.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "person_not_found",
			"message": "Person is not configured",
		})
		return
	}
	c.JSON(http.StatusOK, person)
}

// PutPerson создает или обновляет человека
// PUT /api/v1/persons/:id
func (h *RESTHandler) PutPerson(c *gin.Context) {
	var person models.Person
	if err := c.ShouldBindJSON(&person); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}
	person.ID = c.Param("id")

	if err := h.persons.Upsert(&person); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "invalid_person",
			"message": err.Error(),
		})
		return
	}

	h.persistPerson(c.Request.Context(), person.ID)
	c.JSON(http.StatusOK, person)
}

// DeletePerson удаляет человека
// DELETE /api/v1/persons/:id
func (h *RESTHandler) DeletePerson(c *gin.Context) {
	personID := c.Param("id")
	if !h.persons.Delete(personID) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "person_not_found",
			"message": "Person is not configured",
		})
		return
	}

	if h.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.repo.DeletePerson(ctx, personID); err != nil {
			h.logger.WithField("error", err).Warn("Failed to delete person from storage")
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// PostPersonDevice привязывает устройство к человеку
// POST /api/v1/persons/:id/devices
func (h *RESTHandler) PostPersonDevice(c *gin.Context) {
	var body struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	if err := h.persons.LinkDevice(c.Param("id"), body.DeviceID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "person_not_found",
			"message": err.Error(),
		})
		return
	}

	h.persistPerson(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "linked"})
}

// DeletePersonDevice отвязывает устройство от человека
// DELETE /api/v1/persons/:id/devices/:device_id
func (h *RESTHandler) DeletePersonDevice(c *gin.Context) {
	if err := h.persons.UnlinkDevice(c.Param("id"), c.Param("device_id")); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "unlink_rejected",
			"message": err.Error(),
		})
		return
	}

	h.persistPerson(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "unlinked"})
}

// PostPersonActiveDevice меняет активное устройство трекинга
// POST /api/v1/persons/:id/active-device
func (h *RESTHandler) PostPersonActiveDevice(c *gin.Context) {
	var body struct {
		DeviceID string `json:"device_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "invalid_body",
			"message": err.Error(),
		})
		return
	}

	if err := h.persons.SetActiveDevice(c.Param("id"), body.DeviceID); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"code":    "active_device_rejected",
			"message": err.Error(),
		})
		return
	}

	h.persistPerson(c.Request.Context(), c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// GetPersonPosition возвращает позицию человека - позицию его
// активного устройства
// GET /api/v1/persons/:id/position
func (h *RESTHandler) GetPersonPosition(c *gin.Context) {
	person, ok := h.persons.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "person_not_found",
			"message": "Person is not configured",
		})
		return
	}

	update, ok := h.tracker.Position(person.DefaultDeviceID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "position_unknown",
			"message": "Person's active device has no known position",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"person_id": person.ID,
		"device_id": person.DefaultDeviceID,
		"position":  update,
	})
}

// persistPerson сохраняет человека в хранилище конфигурации best-effort
func (h *RESTHandler) persistPerson(ctx context.Context, personID string) {
	if h.repo == nil {
		return
	}
	person, ok := h.persons.Get(personID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.repo.SavePerson(ctx, person); err != nil {
		h.logger.WithFields(map[string]interface{}{
			"person_id": personID,
			"error":     err,
		}).Warn("Failed to persist person")
	}
}

// persistZone сохраняет зону в хранилище конфигурации best-effort
func (h *RESTHandler) persistZone(ctx context.Context, zone *models.Zone) {
	if h.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.repo.SaveZone(ctx, zone); err != nil {
		h.logger.WithFields(map[string]interface{}{
			"zone_id": zone.ID,
			"error":   err,
		}).Warn("Failed to persist zone")
	}
}

// parseRangeQuery разбирает параметры from/to (unix millis) и limit
func parseRangeQuery(c *gin.Context) (from, to time.Time, limit int, err error) {
	to = time.Now()
	from = to.Add(-1 * time.Hour)
	limit = 500

	if v := c.Query("from"); v != "" {
		ms, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			return from, to, limit, errors.New("from must be unix milliseconds")
		}
		from = time.UnixMilli(ms)
	}
	if v := c.Query("to"); v != "" {
		ms, parseErr := strconv.ParseInt(v, 10, 64)
		if parseErr != nil {
			return from, to, limit, errors.New("to must be unix milliseconds")
		}
		to = time.UnixMilli(ms)
	}
	if v := c.Query("limit"); v != "" {
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil || n < 1 || n > 10000 {
			return from, to, limit, errors.New("limit must be between 1 and 10000")
		}
		limit = n
	}
	if !from.Before(to) {
		return from, to, limit, errors.New("from must be before to")
	}
	return from, to, limit, nil
}

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/pool"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// readingPayload формат JSON сообщения станции. Станции со сканером
// сигнала передают rssi; станции с собственным позиционированием
// (UWB, камеры) передают x/y и опционально confidence.
type readingPayload struct {
	SensorID   string   `json:"sensor_id,omitempty"`
	DeviceID   string   `json:"device_id"`
	RSSI       *float64 `json:"rssi,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
	Timestamp  int64    `json:"timestamp,omitempty"` // unix millis, 0 = время приема
}

// Parser разбирает сообщения станций в показания
type Parser struct {
	logger *utils.Logger
}

// NewParser создает парсер сообщений
func NewParser(logger *utils.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse разбирает сообщение из топика {prefix}/{station}/reading.
// Идентификатор станции в payload имеет приоритет над топиком.
func (p *Parser) Parse(topic string, payload []byte) (*models.Reading, error) {
	station, err := stationFromTopic(topic)
	if err != nil {
		return nil, err
	}

	var msg readingPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("invalid reading payload: %w", err)
	}

	if msg.DeviceID == "" {
		return nil, fmt.Errorf("missing device_id")
	}

	sensorID := msg.SensorID
	if sensorID == "" {
		sensorID = station
	}

	ts := time.Now()
	if msg.Timestamp > 0 {
		ts = time.UnixMilli(msg.Timestamp)
	}

	reading := pool.Global.GetReading()
	reading.SensorID = sensorID
	reading.DeviceID = msg.DeviceID
	reading.Timestamp = ts
	reading.RSSI = msg.RSSI
	reading.Confidence = msg.Confidence
	if msg.X != nil && msg.Y != nil {
		reading.Position = &models.Point{X: *msg.X, Y: *msg.Y}
	}

	return reading, nil
}

// stationFromTopic извлекает идентификатор станции из топика вида
// hns/{station}/reading
func stationFromTopic(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "reading" {
		return "", fmt.Errorf("unexpected topic format: %s", topic)
	}
	station := parts[len(parts)-2]
	if station == "" {
		return "", fmt.Errorf("empty station id in topic: %s", topic)
	}
	return station, nil
}

package models

import (
	"fmt"
	"math"
	"time"
)

// Reading представляет одно сырое показание пары (сенсор, устройство).
// Для signal_strength сенсоров заполнен RSSI, для direct_coordinate -
// Position и Confidence. Показание вытесняется более новым для той же
// пары и считается отсутствующим после истечения окна устаревания.
type Reading struct {
	SensorID   string    `json:"sensor_id"`
	DeviceID   string    `json:"device_id"`
	Timestamp  time.Time `json:"timestamp"`
	RSSI       *float64  `json:"rssi,omitempty"`       // dBm, для signal_strength
	Position   *Point    `json:"position,omitempty"`   // для direct_coordinate
	Confidence float64   `json:"confidence,omitempty"` // собственная уверенность сенсора [0,1]
}

// Validate проверяет корректность показания против модальности сенсора
func (r *Reading) Validate(modality SensorModality) error {
	if r.SensorID == "" {
		return fmt.Errorf("sensor_id is required")
	}
	if r.DeviceID == "" {
		return fmt.Errorf("device_id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}

	switch modality {
	case ModalitySignalStrength:
		if r.RSSI == nil {
			return fmt.Errorf("rssi is required for signal_strength sensor %s", r.SensorID)
		}
		if math.IsNaN(*r.RSSI) || math.IsInf(*r.RSSI, 0) {
			return fmt.Errorf("invalid rssi value: %f", *r.RSSI)
		}
		if *r.RSSI > 0 || *r.RSSI < -120 {
			return fmt.Errorf("rssi out of range [-120, 0]: %f", *r.RSSI)
		}
	case ModalityDirectCoordinate:
		if r.Position == nil {
			return fmt.Errorf("position is required for direct_coordinate sensor %s", r.SensorID)
		}
		if err := r.Position.Validate(); err != nil {
			return fmt.Errorf("position: %w", err)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("confidence out of range [0, 1]: %f", r.Confidence)
		}
	default:
		return fmt.Errorf("unknown modality for sensor %s", r.SensorID)
	}

	return nil
}

// IsStale проверяет, устарело ли показание относительно момента now
func (r *Reading) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(r.Timestamp) > maxAge
}

package models

import (
	"fmt"
	"time"
)

// SensorModality тип измерения, которое сообщает сенсор
type SensorModality uint8

const (
	ModalityUnknown          SensorModality = 0
	ModalitySignalStrength   SensorModality = 1 // RSSI (BLE, WiFi, ESPHome)
	ModalityDirectCoordinate SensorModality = 2 // mmWave и другие сенсоры с собственной координатой
)

// String возвращает строковое представление модальности
func (m SensorModality) String() string {
	switch m {
	case ModalitySignalStrength:
		return "signal_strength"
	case ModalityDirectCoordinate:
		return "direct_coordinate"
	default:
		return "unknown"
	}
}

// ParseModality парсит модальность из строки конфигурации.
// Неизвестные значения отклоняются на этапе конфигурации.
func ParseModality(s string) (SensorModality, error) {
	switch s {
	case "signal_strength", "rssi":
		return ModalitySignalStrength, nil
	case "direct_coordinate", "mmwave":
		return ModalityDirectCoordinate, nil
	default:
		return ModalityUnknown, fmt.Errorf("unknown sensor modality: %q", s)
	}
}

// MarshalJSON сериализует модальность как строку
func (m SensorModality) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", m.String())), nil
}

// UnmarshalJSON парсит модальность из строки
func (m *SensorModality) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("modality must be a string")
	}
	parsed, err := ParseModality(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Calibration параметры лог-дистанционной модели затухания сигнала
type Calibration struct {
	RSSIRef     float64 `json:"rssi_ref"`      // Опорный RSSI на расстоянии 1 метр (dBm)
	PathLossExp float64 `json:"path_loss_exp"` // Показатель затухания для среды
}

// Validate проверяет корректность калибровки
func (c Calibration) Validate() error {
	if c.PathLossExp <= 0 {
		return fmt.Errorf("path loss exponent must be positive, got %f", c.PathLossExp)
	}
	if c.RSSIRef > 0 || c.RSSIRef < -120 {
		return fmt.Errorf("reference RSSI out of range [-120, 0]: %f", c.RSSIRef)
	}
	return nil
}

// DefaultCalibration калибровка по умолчанию для внутренних помещений
func DefaultCalibration() Calibration {
	return Calibration{
		RSSIRef:     -59,
		PathLossExp: 2.5,
	}
}

// Sensor представляет стационарный сенсор с фиксированной позицией
type Sensor struct {
	ID          string         `json:"id"`
	Name        string         `json:"name,omitempty"`
	Location    Point          `json:"location"`    // Позиция на плане в метрах
	Modality    SensorModality `json:"modality"`    // Тип измерения
	Calibration Calibration    `json:"calibration"` // Только для signal_strength
	Enabled     bool           `json:"enabled"`
	LastSeen    time.Time      `json:"last_seen,omitempty"` // Время последнего показания
}

// Validate проверяет корректность конфигурации сенсора
func (s *Sensor) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("sensor id is required")
	}
	if err := s.Location.Validate(); err != nil {
		return fmt.Errorf("location: %w", err)
	}
	switch s.Modality {
	case ModalitySignalStrength:
		if err := s.Calibration.Validate(); err != nil {
			return fmt.Errorf("calibration: %w", err)
		}
	case ModalityDirectCoordinate:
		// Координатные сенсоры не используют калибровку
	default:
		return fmt.Errorf("sensor %s: modality is required", s.ID)
	}
	return nil
}

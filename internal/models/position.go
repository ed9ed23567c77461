package models

import (
	"fmt"
	"time"
)

// PositionMethod способ, которым была получена позиция
type PositionMethod string

const (
	MethodMultilateration PositionMethod = "multilateration" // решение по >=3 RSSI сенсорам
	MethodDirect          PositionMethod = "direct"          // координаты от direct_coordinate сенсоров
	MethodFused           PositionMethod = "fused"           // комбинация обоих источников
)

// RawPosition сырая позиция устройства, вычисленная решателем за один тик.
// Не сохраняется между тиками.
type RawPosition struct {
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	Confidence  float64        `json:"confidence"`   // [0, 1]
	SensorCount int            `json:"sensor_count"` // число сенсоров, внесших вклад
	Method      PositionMethod `json:"method"`
}

// Validate проверяет корректность сырой позиции
func (p *RawPosition) Validate() error {
	if err := (Point{X: p.X, Y: p.Y}).Validate(); err != nil {
		return err
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence out of range [0, 1]: %f", p.Confidence)
	}
	if p.SensorCount < 1 {
		return fmt.Errorf("sensor count must be positive: %d", p.SensorCount)
	}
	return nil
}

// PositionUpdate опубликованная сглаженная позиция устройства
type PositionUpdate struct {
	DeviceID    string         `json:"device_id"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	Confidence  float64        `json:"confidence"`
	SensorCount int            `json:"sensor_count"`
	Method      PositionMethod `json:"method"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ZoneTransition вид перехода границы зоны
type ZoneTransition string

const (
	TransitionEntered ZoneTransition = "entered"
	TransitionExited  ZoneTransition = "exited"
)

// ZoneEvent событие пересечения границы зоны. Излучается ровно один раз
// на переход и не переигрывается.
type ZoneEvent struct {
	DeviceID   string         `json:"device_id"`
	ZoneID     string         `json:"zone_id"`
	ZoneName   string         `json:"zone_name,omitempty"`
	Transition ZoneTransition `json:"transition"`
	Timestamp  time.Time      `json:"timestamp"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
}

// OutcomeStatus диагностический результат обработки устройства за тик
type OutcomeStatus string

const (
	OutcomeOK                  OutcomeStatus = "ok"
	OutcomeInsufficientSensors OutcomeStatus = "insufficient_sensors"
	OutcomeSolverFailure       OutcomeStatus = "solver_failure"
	OutcomeStale               OutcomeStatus = "stale"
)

// DeviceOutcome результат обработки одного устройства за один тик.
// Ошибки одного устройства никогда не прерывают тик для остальных.
type DeviceOutcome struct {
	DeviceID string        `json:"device_id"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
}

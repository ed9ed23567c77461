// Package solver вычисляет сырую позицию устройства из показаний
// сенсоров: конверсия RSSI в расстояние, мультилатерация и слияние
// с координатными сенсорами.
package solver

import (
	"errors"
	"fmt"
	"math"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

var (
	// ErrBadCalibration некорректные калибровочные константы (ошибка конфигурации)
	ErrBadCalibration = errors.New("invalid calibration")
	// ErrBadReading показание дает неопределенное или отрицательное расстояние
	ErrBadReading = errors.New("reading yields undefined distance")
	// ErrInsufficientSensors недостаточно сенсоров для решения за этот тик
	ErrInsufficientSensors = errors.New("insufficient sensors")
	// ErrSingularGeometry вырожденная геометрия сенсоров, система не решается
	ErrSingularGeometry = errors.New("singular sensor geometry")
)

const (
	// MinDistanceM минимальное осмысленное расстояние: RSSI на уровне
	// опорного и выше означает "вплотную к сенсору"
	MinDistanceM = 0.5
	// MaxDistanceM верхняя граница расстояния внутри здания
	MaxDistanceM = 100.0
)

// RSSIToDistance переводит уровень сигнала в оценку расстояния по
// лог-дистанционной модели затухания:
//
//	d = 10^((rssiRef - rssi) / (10 * n))
//
// где rssiRef - опорный уровень на 1 метре, n - показатель затухания.
// Результат ограничен диапазоном [MinDistanceM, MaxDistanceM].
func RSSIToDistance(rssi float64, cal models.Calibration) (float64, error) {
	if cal.PathLossExp <= 0 {
		return 0, fmt.Errorf("%w: path loss exponent %f", ErrBadCalibration, cal.PathLossExp)
	}
	if math.IsNaN(rssi) || math.IsInf(rssi, 0) {
		return 0, fmt.Errorf("%w: rssi %f", ErrBadReading, rssi)
	}

	if rssi >= cal.RSSIRef {
		// Сигнал сильнее опорного - устройство вплотную к сенсору
		return MinDistanceM, nil
	}

	distance := math.Pow(10, (cal.RSSIRef-rssi)/(10*cal.PathLossExp))
	if math.IsNaN(distance) || math.IsInf(distance, 0) || distance <= 0 {
		return 0, fmt.Errorf("%w: rssi %f with calibration %+v", ErrBadReading, rssi, cal)
	}

	if distance < MinDistanceM {
		distance = MinDistanceM
	}
	if distance > MaxDistanceM {
		distance = MaxDistanceM
	}
	return distance, nil
}

package solver

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

func testSolver() *Solver {
	return NewSolver(DefaultConfig(), utils.NewLogger("error", "text"))
}

// rssiFor возвращает RSSI, который сенсор с калибровкой по умолчанию
// сообщил бы с расстояния dist
func rssiFor(dist float64) float64 {
	cal := models.DefaultCalibration()
	return cal.RSSIRef - 10*cal.PathLossExp*math.Log10(dist)
}

func rangingSensor(id string, x, y float64) *models.Sensor {
	return &models.Sensor{
		ID:          id,
		Location:    models.Point{X: x, Y: y},
		Modality:    models.ModalitySignalStrength,
		Calibration: models.DefaultCalibration(),
		Enabled:     true,
	}
}

func rssiReading(sensorID string, rssi float64) *models.Reading {
	return &models.Reading{
		SensorID:  sensorID,
		DeviceID:  "device-1",
		Timestamp: time.Now(),
		RSSI:      &rssi,
	}
}

func TestSolveMultilateration(t *testing.T) {
	s := testSolver()

	// Невырожденный треугольник, истинная точка (4, 3)
	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 10, 0),
		"c": rangingSensor("c", 5, 9),
	}
	truth := models.Point{X: 4, Y: 3}

	var readings []*models.Reading
	for _, sensor := range sensors {
		dist := truth.DistanceTo(sensor.Location)
		readings = append(readings, rssiReading(sensor.ID, rssiFor(dist)))
	}

	pos, err := s.Solve("device-1", readings, sensors)
	require.NoError(t, err)

	assert.InDelta(t, truth.X, pos.X, 1e-6)
	assert.InDelta(t, truth.Y, pos.Y, 1e-6)
	assert.Equal(t, models.MethodMultilateration, pos.Method)
	assert.Equal(t, 3, pos.SensorCount)

	// Нулевой остаток, широкий разброс, 3 сенсора из 5 насыщения
	assert.InDelta(t, 0.6, pos.Confidence, 1e-6)
}

func TestSolveLeastSquares(t *testing.T) {
	s := testSolver()

	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 10, 0),
		"c": rangingSensor("c", 5, 9),
		"d": rangingSensor("d", 0, 9),
	}
	truth := models.Point{X: 4, Y: 3}

	var readings []*models.Reading
	for _, sensor := range sensors {
		readings = append(readings, rssiReading(sensor.ID, rssiFor(truth.DistanceTo(sensor.Location))))
	}

	pos, err := s.Solve("device-1", readings, sensors)
	require.NoError(t, err)

	assert.InDelta(t, truth.X, pos.X, 1e-6)
	assert.InDelta(t, truth.Y, pos.Y, 1e-6)
	assert.Equal(t, models.MethodMultilateration, pos.Method)
	assert.Equal(t, 4, pos.SensorCount)
	assert.Greater(t, pos.Confidence, 0.6)
}

func TestSolveInsufficientSensors(t *testing.T) {
	s := testSolver()

	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 10, 0),
	}
	readings := []*models.Reading{
		rssiReading("a", -75),
		rssiReading("b", -80),
	}

	_, err := s.Solve("device-1", readings, sensors)
	assert.ErrorIs(t, err, ErrInsufficientSensors)
}

func TestSolveCollinearSensors(t *testing.T) {
	s := testSolver()

	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 5, 0),
		"c": rangingSensor("c", 10, 0),
	}
	readings := []*models.Reading{
		rssiReading("a", -75),
		rssiReading("b", -70),
		rssiReading("c", -78),
	}

	_, err := s.Solve("device-1", readings, sensors)
	assert.ErrorIs(t, err, ErrSingularGeometry)
}

func TestSolveSkipsDisabledAndUnknownSensors(t *testing.T) {
	s := testSolver()

	disabled := rangingSensor("c", 5, 9)
	disabled.Enabled = false

	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 10, 0),
		"c": disabled,
	}
	readings := []*models.Reading{
		rssiReading("a", -75),
		rssiReading("b", -80),
		rssiReading("c", -70),
		rssiReading("ghost", -65), // сенсор не сконфигурирован
	}

	// После отсева остаются два пригодных показания
	_, err := s.Solve("device-1", readings, sensors)
	assert.ErrorIs(t, err, ErrInsufficientSensors)
}

func TestCombineDirect(t *testing.T) {
	s := testSolver()

	readings := []*models.Reading{
		{
			SensorID:   "mm-1",
			DeviceID:   "device-1",
			Timestamp:  time.Now(),
			Position:   &models.Point{X: 1, Y: 1},
			Confidence: 0.8,
		},
		{
			SensorID:   "mm-2",
			DeviceID:   "device-1",
			Timestamp:  time.Now(),
			Position:   &models.Point{X: 4, Y: 4},
			Confidence: 0.4,
		},
	}

	pos := s.combineDirect(readings)
	require.NotNil(t, pos)

	// (0.8*1 + 0.4*4) / 1.2 = 2
	assert.InDelta(t, 2.0, pos.X, 1e-9)
	assert.InDelta(t, 2.0, pos.Y, 1e-9)
	// (0.8*0.8 + 0.4*0.4) / 1.2
	assert.InDelta(t, 2.0/3.0, pos.Confidence, 1e-9)
	assert.Equal(t, models.MethodDirect, pos.Method)
	assert.Equal(t, 2, pos.SensorCount)
}

func TestSolveDirectOnly(t *testing.T) {
	s := testSolver()

	sensors := map[string]*models.Sensor{
		"mm-1": {
			ID:       "mm-1",
			Location: models.Point{X: 0, Y: 0},
			Modality: models.ModalityDirectCoordinate,
			Enabled:  true,
		},
	}
	readings := []*models.Reading{
		{
			SensorID:   "mm-1",
			DeviceID:   "device-1",
			Timestamp:  time.Now(),
			Position:   &models.Point{X: 3.5, Y: 2.5},
			Confidence: 0.9,
		},
	}

	pos, err := s.Solve("device-1", readings, sensors)
	require.NoError(t, err)

	assert.Equal(t, 3.5, pos.X)
	assert.Equal(t, 2.5, pos.Y)
	assert.Equal(t, models.MethodDirect, pos.Method)
	assert.Equal(t, 1, pos.SensorCount)
}

func TestSolveFusesDirectAndRanging(t *testing.T) {
	s := testSolver()

	sensors := map[string]*models.Sensor{
		"a": rangingSensor("a", 0, 0),
		"b": rangingSensor("b", 10, 0),
		"c": rangingSensor("c", 5, 9),
		"mm-1": {
			ID:       "mm-1",
			Location: models.Point{X: 0, Y: 0},
			Modality: models.ModalityDirectCoordinate,
			Enabled:  true,
		},
	}
	truth := models.Point{X: 4, Y: 3}

	var readings []*models.Reading
	for _, id := range []string{"a", "b", "c"} {
		readings = append(readings, rssiReading(id, rssiFor(truth.DistanceTo(sensors[id].Location))))
	}
	readings = append(readings, &models.Reading{
		SensorID:   "mm-1",
		DeviceID:   "device-1",
		Timestamp:  time.Now(),
		Position:   &models.Point{X: 4.2, Y: 3.2},
		Confidence: 0.9,
	})

	pos, err := s.Solve("device-1", readings, sensors)
	require.NoError(t, err)

	assert.Equal(t, models.MethodFused, pos.Method)
	assert.Equal(t, 4, pos.SensorCount)
	// Слитая позиция лежит между оценками источников
	assert.Greater(t, pos.X, 4.0)
	assert.Less(t, pos.X, 4.2)
	assert.Greater(t, pos.Y, 3.0)
	assert.Less(t, pos.Y, 3.2)
}

func TestSolveClampsToPlanBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PlanBounds = &models.Bounds{Max: models.Point{X: 10, Y: 10}}
	s := NewSolver(cfg, utils.NewLogger("error", "text"))

	sensors := map[string]*models.Sensor{
		"mm-1": {
			ID:       "mm-1",
			Location: models.Point{X: 0, Y: 0},
			Modality: models.ModalityDirectCoordinate,
			Enabled:  true,
		},
	}

	t.Run("solution outside plan is clamped", func(t *testing.T) {
		readings := []*models.Reading{
			{
				SensorID:   "mm-1",
				DeviceID:   "device-1",
				Timestamp:  time.Now(),
				Position:   &models.Point{X: 12, Y: -2},
				Confidence: 0.9,
			},
		}

		pos, err := s.Solve("device-1", readings, sensors)
		require.NoError(t, err)
		assert.Equal(t, 10.0, pos.X)
		assert.Equal(t, 0.0, pos.Y)
	})

	t.Run("solution inside plan untouched", func(t *testing.T) {
		readings := []*models.Reading{
			{
				SensorID:   "mm-1",
				DeviceID:   "device-1",
				Timestamp:  time.Now(),
				Position:   &models.Point{X: 3.5, Y: 2.5},
				Confidence: 0.9,
			},
		}

		pos, err := s.Solve("device-1", readings, sensors)
		require.NoError(t, err)
		assert.Equal(t, 3.5, pos.X)
		assert.Equal(t, 2.5, pos.Y)
	})
}

func TestPositionSpread(t *testing.T) {
	t.Run("collinear is zero", func(t *testing.T) {
		obs := []rangeObs{
			{pos: models.Point{X: 0, Y: 0}},
			{pos: models.Point{X: 5, Y: 0}},
			{pos: models.Point{X: 10, Y: 0}},
		}
		assert.InDelta(t, 0, positionSpread(obs), 1e-12)
	})

	t.Run("triangle is positive", func(t *testing.T) {
		obs := []rangeObs{
			{pos: models.Point{X: 0, Y: 0}},
			{pos: models.Point{X: 10, Y: 0}},
			{pos: models.Point{X: 5, Y: 9}},
		}
		assert.Greater(t, positionSpread(obs), 1.0)
	})
}

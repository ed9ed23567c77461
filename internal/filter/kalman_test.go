package filter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKalmanFirstUpdateInitializes(t *testing.T) {
	k := NewKalman(DefaultConfig())

	assert.False(t, k.Initialized())
	assert.Equal(t, 0.0, k.Confidence())

	require.NoError(t, k.Update(3.5, 2.0, 0.8))
	require.True(t, k.Initialized())

	// Первое измерение принимается как есть, без сглаживания
	x, y := k.Position()
	assert.Equal(t, 3.5, x)
	assert.Equal(t, 2.0, y)

	vx, vy := k.Velocity()
	assert.Equal(t, 0.0, vx)
	assert.Equal(t, 0.0, vy)

	cfg := DefaultConfig()
	assert.InDelta(t, 2*cfg.InitPosVar, k.PositionCovTrace(), 1e-9)
}

func TestKalmanConvergesToStaticPoint(t *testing.T) {
	k := NewKalman(DefaultConfig())

	require.NoError(t, k.Update(5, 5, 0.9))
	confAfterInit := k.Confidence()

	for i := 0; i < 20; i++ {
		require.NoError(t, k.Predict(0.1))
		require.NoError(t, k.Update(5, 5, 0.9))
	}

	x, y := k.Position()
	assert.InDelta(t, 5.0, x, 0.01)
	assert.InDelta(t, 5.0, y, 0.01)

	// Повторные согласующиеся измерения сжимают ковариацию
	assert.Greater(t, k.Confidence(), confAfterInit)
}

func TestKalmanSmoothsNoisyMeasurement(t *testing.T) {
	k := NewKalman(DefaultConfig())

	require.NoError(t, k.Update(5, 5, 0.9))
	for i := 0; i < 10; i++ {
		require.NoError(t, k.Predict(0.1))
		require.NoError(t, k.Update(5, 5, 0.9))
	}

	// Одиночный выброс не перетягивает оценку на себя
	require.NoError(t, k.Predict(0.1))
	require.NoError(t, k.Update(15, 5, 0.9))

	x, _ := k.Position()
	assert.Greater(t, x, 5.0)
	assert.Less(t, x, 10.0)
}

func TestKalmanPredictInflatesUncertainty(t *testing.T) {
	k := NewKalman(DefaultConfig())

	require.NoError(t, k.Update(1, 1, 0.9))
	before := k.Confidence()
	traceBefore := k.PositionCovTrace()

	require.NoError(t, k.Predict(2.0))

	assert.Greater(t, k.PositionCovTrace(), traceBefore)
	assert.Less(t, k.Confidence(), before)

	// Оценка позиции при нулевой скорости не меняется
	x, y := k.Position()
	assert.InDelta(t, 1.0, x, 1e-9)
	assert.InDelta(t, 1.0, y, 1e-9)
}

func TestKalmanPredictNoOp(t *testing.T) {
	t.Run("before initialization", func(t *testing.T) {
		k := NewKalman(DefaultConfig())
		require.NoError(t, k.Predict(1.0))
		assert.False(t, k.Initialized())
	})

	t.Run("non-positive dt", func(t *testing.T) {
		k := NewKalman(DefaultConfig())
		require.NoError(t, k.Update(1, 1, 0.9))
		trace := k.PositionCovTrace()

		require.NoError(t, k.Predict(0))
		require.NoError(t, k.Predict(-1))
		assert.Equal(t, trace, k.PositionCovTrace())
	})
}

func TestKalmanDivergenceResets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCovTrace = 1e-3 // заведомо недостижимый предел

	k := NewKalman(cfg)
	require.NoError(t, k.Update(1, 1, 0.9))

	err := k.Predict(1.0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiverged)
	assert.False(t, k.Initialized())

	// После сброса фильтр переинициализируется следующим измерением
	require.NoError(t, k.Update(2, 2, 0.9))
	x, y := k.Position()
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 2.0, y)
}

func TestKalmanRejectsNonFiniteMeasurement(t *testing.T) {
	k := NewKalman(DefaultConfig())
	assert.Error(t, k.Update(math.NaN(), 1, 0.9))
	assert.Error(t, k.Update(1, math.Inf(1), 0.9))
	assert.False(t, k.Initialized())
}

func TestKalmanLowConfidenceUpdatesWeakly(t *testing.T) {
	strong := NewKalman(DefaultConfig())
	weak := NewKalman(DefaultConfig())

	for _, k := range []*Kalman{strong, weak} {
		require.NoError(t, k.Update(0, 0, 0.9))
		require.NoError(t, k.Predict(0.1))
	}

	require.NoError(t, strong.Update(10, 0, 1.0))
	require.NoError(t, weak.Update(10, 0, 0.05))

	sx, _ := strong.Position()
	wx, _ := weak.Position()
	assert.Greater(t, sx, wx)
}

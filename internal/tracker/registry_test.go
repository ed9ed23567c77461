package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

func testRegistry() *SensorRegistry {
	return NewSensorRegistry(utils.NewLogger("error", "text"))
}

func validSensor(id string, x, y float64) *models.Sensor {
	return &models.Sensor{
		ID:          id,
		Location:    models.Point{X: x, Y: y},
		Modality:    models.ModalitySignalStrength,
		Calibration: models.DefaultCalibration(),
		Enabled:     true,
	}
}

func TestRegistryUpsert(t *testing.T) {
	r := testRegistry()

	require.NoError(t, r.Upsert(validSensor("s1", 1, 2)))

	s, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 1.0, s.Location.X)

	// Некорректная конфигурация не затирает существующую
	bad := validSensor("s1", 5, 5)
	bad.Calibration.PathLossExp = 0
	assert.Error(t, r.Upsert(bad))

	s, ok = r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, 1.0, s.Location.X)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 1, 2)))

	s, ok := r.Get("s1")
	require.True(t, ok)
	s.Enabled = false
	s.Location.X = 99

	fresh, ok := r.Get("s1")
	require.True(t, ok)
	assert.True(t, fresh.Enabled)
	assert.Equal(t, 1.0, fresh.Location.X)
}

func TestRegistryDelete(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 0, 0)))

	assert.True(t, r.Delete("s1"))
	assert.False(t, r.Delete("s1"))

	_, ok := r.Get("s1")
	assert.False(t, ok)
}

func TestRegistrySetEnabled(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 0, 0)))

	require.NoError(t, r.SetEnabled("s1", false))
	s, _ := r.Get("s1")
	assert.False(t, s.Enabled)

	assert.Error(t, r.SetEnabled("missing", true))
}

func TestRegistryCalibrate(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 0, 0)))

	require.NoError(t, r.Calibrate("s1", models.Calibration{RSSIRef: -62, PathLossExp: 3.1}))
	s, _ := r.Get("s1")
	assert.Equal(t, -62.0, s.Calibration.RSSIRef)

	t.Run("invalid calibration", func(t *testing.T) {
		assert.Error(t, r.Calibrate("s1", models.Calibration{RSSIRef: -62, PathLossExp: -1}))
	})

	t.Run("unknown sensor", func(t *testing.T) {
		assert.Error(t, r.Calibrate("missing", models.DefaultCalibration()))
	})

	t.Run("wrong modality", func(t *testing.T) {
		mm := &models.Sensor{
			ID:       "mm-1",
			Location: models.Point{X: 0, Y: 0},
			Modality: models.ModalityDirectCoordinate,
			Enabled:  true,
		}
		require.NoError(t, r.Upsert(mm))
		assert.Error(t, r.Calibrate("mm-1", models.DefaultCalibration()))
	})
}

func TestRegistryList(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("b", 0, 0)))
	require.NoError(t, r.Upsert(validSensor("a", 1, 1)))
	require.NoError(t, r.Upsert(validSensor("c", 2, 2)))

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
	assert.Equal(t, "c", list[2].ID)
}

func TestRegistryMarkSeen(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 0, 0)))

	now := time.Now()
	r.MarkSeen("s1", now)
	// Более старая отметка не откатывает время
	r.MarkSeen("s1", now.Add(-time.Minute))

	s, _ := r.Get("s1")
	assert.Equal(t, now.Unix(), s.LastSeen.Unix())

	// Неизвестный сенсор игнорируется
	r.MarkSeen("missing", now)
}

func TestRegistrySnapshotIsolated(t *testing.T) {
	r := testRegistry()
	require.NoError(t, r.Upsert(validSensor("s1", 0, 0)))

	snap := r.Snapshot()
	snap["s1"].Enabled = false

	s, _ := r.Get("s1")
	assert.True(t, s.Enabled)
}

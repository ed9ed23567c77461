package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrationValidate(t *testing.T) {
	tests := []struct {
		name    string
		cal     Calibration
		wantErr bool
	}{
		{"default calibration", DefaultCalibration(), false},
		{"custom valid", Calibration{RSSIRef: -65, PathLossExp: 3.0}, false},
		{"zero path loss exponent", Calibration{RSSIRef: -59, PathLossExp: 0}, true},
		{"negative path loss exponent", Calibration{RSSIRef: -59, PathLossExp: -1}, true},
		{"positive reference rssi", Calibration{RSSIRef: 10, PathLossExp: 2.5}, true},
		{"reference rssi below range", Calibration{RSSIRef: -150, PathLossExp: 2.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cal.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSensorValidate(t *testing.T) {
	t.Run("signal strength sensor", func(t *testing.T) {
		sensor := &Sensor{
			ID:          "esp32-kitchen",
			Location:    Point{X: 3, Y: 4},
			Modality:    ModalitySignalStrength,
			Calibration: DefaultCalibration(),
			Enabled:     true,
		}
		assert.NoError(t, sensor.Validate())
	})

	t.Run("direct coordinate sensor skips calibration", func(t *testing.T) {
		// У mmWave сенсора калибровка не проверяется
		sensor := &Sensor{
			ID:       "mmwave-hall",
			Location: Point{X: 0, Y: 0},
			Modality: ModalityDirectCoordinate,
			Enabled:  true,
		}
		assert.NoError(t, sensor.Validate())
	})

	t.Run("missing id", func(t *testing.T) {
		sensor := &Sensor{Location: Point{}, Modality: ModalitySignalStrength, Calibration: DefaultCalibration()}
		assert.Error(t, sensor.Validate())
	})

	t.Run("unknown modality", func(t *testing.T) {
		sensor := &Sensor{ID: "x", Location: Point{}}
		assert.Error(t, sensor.Validate())
	})

	t.Run("bad calibration on signal strength", func(t *testing.T) {
		sensor := &Sensor{
			ID:       "esp32-bad",
			Location: Point{X: 1, Y: 1},
			Modality: ModalitySignalStrength,
		}
		assert.Error(t, sensor.Validate())
	})
}

func TestModalityJSON(t *testing.T) {
	t.Run("roundtrip through sensor", func(t *testing.T) {
		sensor := &Sensor{
			ID:          "esp32-1",
			Location:    Point{X: 1, Y: 2},
			Modality:    ModalitySignalStrength,
			Calibration: DefaultCalibration(),
			Enabled:     true,
		}

		data, err := json.Marshal(sensor)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"signal_strength"`)

		var decoded Sensor
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, ModalitySignalStrength, decoded.Modality)
	})

	t.Run("unknown modality string rejected", func(t *testing.T) {
		var m SensorModality
		assert.Error(t, json.Unmarshal([]byte(`"sonar"`), &m))
	})
}

func TestReadingValidate(t *testing.T) {
	rssi := -70.0
	now := time.Now()

	t.Run("valid rssi reading", func(t *testing.T) {
		r := &Reading{SensorID: "s1", DeviceID: "d1", Timestamp: now, RSSI: &rssi}
		assert.NoError(t, r.Validate(ModalitySignalStrength))
	})

	t.Run("rssi required for signal strength", func(t *testing.T) {
		r := &Reading{SensorID: "s1", DeviceID: "d1", Timestamp: now}
		assert.Error(t, r.Validate(ModalitySignalStrength))
	})

	t.Run("rssi out of range", func(t *testing.T) {
		bad := 5.0
		r := &Reading{SensorID: "s1", DeviceID: "d1", Timestamp: now, RSSI: &bad}
		assert.Error(t, r.Validate(ModalitySignalStrength))
	})

	t.Run("valid direct reading", func(t *testing.T) {
		r := &Reading{
			SensorID:   "mmwave-1",
			DeviceID:   "d1",
			Timestamp:  now,
			Position:   &Point{X: 2, Y: 3},
			Confidence: 0.9,
		}
		assert.NoError(t, r.Validate(ModalityDirectCoordinate))
	})

	t.Run("position required for direct coordinate", func(t *testing.T) {
		r := &Reading{SensorID: "mmwave-1", DeviceID: "d1", Timestamp: now}
		assert.Error(t, r.Validate(ModalityDirectCoordinate))
	})

	t.Run("confidence out of range", func(t *testing.T) {
		r := &Reading{
			SensorID:   "mmwave-1",
			DeviceID:   "d1",
			Timestamp:  now,
			Position:   &Point{X: 2, Y: 3},
			Confidence: 1.5,
		}
		assert.Error(t, r.Validate(ModalityDirectCoordinate))
	})

	t.Run("zero timestamp rejected", func(t *testing.T) {
		r := &Reading{SensorID: "s1", DeviceID: "d1", RSSI: &rssi}
		assert.Error(t, r.Validate(ModalitySignalStrength))
	})
}

func TestReadingIsStale(t *testing.T) {
	now := time.Now()
	r := &Reading{Timestamp: now.Add(-5 * time.Second)}

	assert.True(t, r.IsStale(now, 3*time.Second))
	assert.False(t, r.IsStale(now, 10*time.Second))
}

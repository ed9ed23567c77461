package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

func TestRSSIToDistance(t *testing.T) {
	cal := models.DefaultCalibration() // -59 dBm на метре, n = 2.5

	t.Run("rssi at reference means point blank", func(t *testing.T) {
		d, err := RSSIToDistance(-59, cal)
		require.NoError(t, err)
		assert.Equal(t, MinDistanceM, d)
	})

	t.Run("rssi above reference clamps to minimum", func(t *testing.T) {
		d, err := RSSIToDistance(-40, cal)
		require.NoError(t, err)
		assert.Equal(t, MinDistanceM, d)
	})

	t.Run("log distance model", func(t *testing.T) {
		// 10^((-59 - (-84)) / 25) = 10^1
		d, err := RSSIToDistance(-84, cal)
		require.NoError(t, err)
		assert.InDelta(t, 10.0, d, 1e-9)
	})

	t.Run("roundtrip recovers distance", func(t *testing.T) {
		for _, want := range []float64{1.5, 3, 7.25, 42} {
			rssi := cal.RSSIRef - 10*cal.PathLossExp*math.Log10(want)
			d, err := RSSIToDistance(rssi, cal)
			require.NoError(t, err)
			assert.InDelta(t, want, d, 1e-9)
		}
	})

	t.Run("very weak signal clamps to maximum", func(t *testing.T) {
		d, err := RSSIToDistance(-119, models.Calibration{RSSIRef: -59, PathLossExp: 2.0})
		require.NoError(t, err)
		assert.Equal(t, MaxDistanceM, d)
	})

	t.Run("zero path loss exponent", func(t *testing.T) {
		_, err := RSSIToDistance(-70, models.Calibration{RSSIRef: -59, PathLossExp: 0})
		assert.ErrorIs(t, err, ErrBadCalibration)
	})

	t.Run("nan rssi", func(t *testing.T) {
		_, err := RSSIToDistance(math.NaN(), cal)
		assert.ErrorIs(t, err, ErrBadReading)
	})
}

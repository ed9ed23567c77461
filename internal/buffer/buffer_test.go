package buffer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

func reading(sensorID, deviceID string, rssi float64, ts time.Time) *models.Reading {
	return &models.Reading{
		SensorID:  sensorID,
		DeviceID:  deviceID,
		Timestamp: ts,
		RSSI:      &rssi,
	}
}

func TestBufferNewerWins(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	b.Put(reading("s1", "d1", -70, now.Add(-time.Second)))
	b.Put(reading("s1", "d1", -65, now))

	snap := b.Snapshot(now)
	require.Len(t, snap["d1"], 1)
	assert.Equal(t, -65.0, *snap["d1"][0].RSSI)
}

func TestBufferOlderDoesNotEvictNewer(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	b.Put(reading("s1", "d1", -65, now))
	// Запоздавшее по сети показание приходит после более свежего
	b.Put(reading("s1", "d1", -70, now.Add(-time.Second)))

	snap := b.Snapshot(now)
	require.Len(t, snap["d1"], 1)
	assert.Equal(t, -65.0, *snap["d1"][0].RSSI)
}

func TestBufferCopiesReading(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	r := reading("s1", "d1", -70, now)
	b.Put(r)

	// Владелец может переиспользовать показание после Put
	*r.RSSI = 0
	r.DeviceID = ""

	snap := b.Snapshot(now)
	require.Len(t, snap["d1"], 1)
	assert.Equal(t, -70.0, *snap["d1"][0].RSSI)
	assert.Equal(t, "d1", snap["d1"][0].DeviceID)
}

func TestBufferSnapshotExcludesStale(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	b.Put(reading("s1", "d1", -70, now.Add(-5*time.Second)))
	b.Put(reading("s2", "d1", -65, now))
	b.Put(reading("s1", "d2", -80, now.Add(-10*time.Second)))

	snap := b.Snapshot(now)
	require.Len(t, snap["d1"], 1)
	assert.Equal(t, "s2", snap["d1"][0].SensorID)

	// Устройства только с устаревшими показаниями в снимок не попадают
	_, ok := snap["d2"]
	assert.False(t, ok)
}

func TestBufferLastSeen(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	_, ok := b.LastSeen("d1")
	assert.False(t, ok)

	b.Put(reading("s1", "d1", -70, now.Add(-2*time.Second)))
	b.Put(reading("s2", "d1", -65, now))

	last, ok := b.LastSeen("d1")
	require.True(t, ok)
	assert.Equal(t, now.Unix(), last.Unix())
}

func TestBufferSweep(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	b.Put(reading("s1", "d1", -70, now.Add(-2*time.Minute)))
	b.Put(reading("s2", "d1", -65, now))
	b.Put(reading("s1", "d2", -80, now.Add(-3*time.Minute)))

	removed := b.Sweep(now, time.Minute)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, b.DeviceCount())

	// Устройство без показаний исчезает целиком
	_, ok := b.LastSeen("d2")
	assert.False(t, ok)
}

func TestBufferDrop(t *testing.T) {
	b := NewReadingBuffer(3 * time.Second)
	now := time.Now()

	b.Put(reading("s1", "d1", -70, now))
	b.Put(reading("s1", "d2", -75, now))

	b.Drop("d1")
	assert.Equal(t, 1, b.DeviceCount())

	snap := b.Snapshot(now)
	_, ok := snap["d1"]
	assert.False(t, ok)
}

func TestBufferConcurrentPut(t *testing.T) {
	b := NewReadingBuffer(time.Minute)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sensorID := fmt.Sprintf("s%d", worker)
				deviceID := fmt.Sprintf("d%d", j%10)
				b.Put(reading(sensorID, deviceID, -70, now))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, b.DeviceCount())
	snap := b.Snapshot(now)
	for deviceID, rs := range snap {
		assert.Len(t, rs, 8, "device %s", deviceID)
	}
}

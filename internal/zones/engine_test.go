package zones

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

func testEngine() *Engine {
	return NewEngine(utils.NewLogger("error", "text"))
}

func kitchenZone() *models.Zone {
	return &models.Zone{
		ID:   "kitchen",
		Name: "Kitchen",
		Vertices: []models.Point{
			{X: 0, Y: 0},
			{X: 5, Y: 0},
			{X: 5, Y: 5},
			{X: 0, Y: 5},
		},
		Enabled: true,
	}
}

func TestEngineUpsertValidation(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(&models.Zone{ID: "bad", Vertices: []models.Point{{X: 0, Y: 0}}}, now)
	assert.Error(t, err)

	events, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	assert.Empty(t, events)

	z, ok := e.Zone("kitchen")
	require.True(t, ok)
	assert.Equal(t, "Kitchen", z.Name)
}

func TestEngineEdgeTriggeredTransitions(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)

	// Вход излучается ровно один раз
	events := e.Evaluate("d1", 2, 2, now)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEntered, events[0].Transition)
	assert.Equal(t, "kitchen", events[0].ZoneID)
	assert.Equal(t, "Kitchen", events[0].ZoneName)
	assert.Equal(t, 2.0, events[0].X)

	// Движение внутри зоны событий не дает
	events = e.Evaluate("d1", 3, 3, now.Add(time.Second))
	assert.Empty(t, events)

	// Выход дает одно событие
	events = e.Evaluate("d1", 10, 10, now.Add(2*time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExited, events[0].Transition)

	// Повторная позиция снаружи - тишина
	events = e.Evaluate("d1", 10, 10, now.Add(3*time.Second))
	assert.Empty(t, events)
}

func TestEngineOccupancy(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)

	e.Evaluate("d1", 1, 1, now)
	e.Evaluate("d2", 2, 2, now)
	e.Evaluate("d3", 10, 10, now)

	assert.Equal(t, []string{"d1", "d2"}, e.ZoneOccupancy("kitchen"))
	assert.Equal(t, []string{"kitchen"}, e.DeviceZones("d1"))
	assert.Empty(t, e.DeviceZones("d3"))
}

func TestEngineDisableForcesExit(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	e.Evaluate("d1", 2, 2, now)

	events, err := e.SetEnabled("kitchen", false, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "d1", events[0].DeviceID)
	assert.Equal(t, models.TransitionExited, events[0].Transition)
	assert.Empty(t, e.ZoneOccupancy("kitchen"))

	// Выключенная зона не участвует в оценке
	events2 := e.Evaluate("d1", 2, 2, now.Add(2*time.Second))
	assert.Empty(t, events2)

	// Повторное выключение идемпотентно
	events, err = e.SetEnabled("kitchen", false, now.Add(3*time.Second))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEngineReenableStartsClean(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	e.Evaluate("d1", 2, 2, now)

	_, err = e.SetEnabled("kitchen", false, now)
	require.NoError(t, err)
	events, err := e.SetEnabled("kitchen", true, now)
	require.NoError(t, err)
	assert.Empty(t, events)

	// Устройство все еще внутри: после включения фиксируется новый вход
	events = e.Evaluate("d1", 2, 2, now.Add(time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionEntered, events[0].Transition)
}

func TestEngineDeleteForcesExit(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	e.Evaluate("d1", 2, 2, now)

	events, ok := e.Delete("kitchen", now.Add(time.Second))
	require.True(t, ok)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExited, events[0].Transition)

	_, ok = e.Zone("kitchen")
	assert.False(t, ok)

	_, ok = e.Delete("kitchen", now)
	assert.False(t, ok)
}

func TestEngineUpsertDisablingForcesExit(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	e.Evaluate("d1", 2, 2, now)

	disabled := kitchenZone()
	disabled.Enabled = false
	events, err := e.Upsert(disabled, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExited, events[0].Transition)
}

func TestEngineDropDevice(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	e.Evaluate("d1", 2, 2, now)

	events := e.DropDevice("d1", 2.5, 2.5, now.Add(time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, models.TransitionExited, events[0].Transition)
	assert.Equal(t, 2.5, events[0].X)
	assert.Empty(t, e.ZoneOccupancy("kitchen"))

	// Устройство без состояния ничего не излучает
	assert.Empty(t, e.DropDevice("d1", 0, 0, now))
}

func TestEngineMultipleZones(t *testing.T) {
	e := testEngine()
	now := time.Now()

	_, err := e.Upsert(kitchenZone(), now)
	require.NoError(t, err)
	_, err = e.Upsert(&models.Zone{
		ID:   "hall",
		Name: "Hallway",
		Vertices: []models.Point{
			{X: 4, Y: 0},
			{X: 12, Y: 0},
			{X: 12, Y: 5},
			{X: 4, Y: 5},
		},
		Enabled: true,
	}, now)
	require.NoError(t, err)

	// Точка в пересечении зон дает два входа
	events := e.Evaluate("d1", 4.5, 2, now)
	assert.Len(t, events, 2)
	assert.Equal(t, []string{"hall", "kitchen"}, e.DeviceZones("d1"))

	// Смещение вглубь одной из зон - один выход
	events = e.Evaluate("d1", 10, 2, now.Add(time.Second))
	require.Len(t, events, 1)
	assert.Equal(t, "kitchen", events[0].ZoneID)
	assert.Equal(t, models.TransitionExited, events[0].Transition)
}

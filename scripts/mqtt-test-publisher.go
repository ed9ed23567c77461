//go:build ignore

// Тестовый издатель MQTT: симулирует устройства, блуждающие по комнате,
// и станции, которые измеряют RSSI по модели логарифмических потерь.
//
//	go run scripts/mqtt-test-publisher.go -broker tcp://localhost:1883 -devices 3
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	rssiRef      = -59.0
	pathLossExp  = 2.5
	roomWidthM   = 20.0
	roomHeightM  = 15.0
	maxStepM     = 0.6
	noiseStddBm  = 2.0
)

// station позиция симулированной станции
type station struct {
	ID string
	X  float64
	Y  float64
}

// device состояние симулированного устройства
type device struct {
	ID string
	X  float64
	Y  float64
}

type readingPayload struct {
	SensorID  string  `json:"sensor_id"`
	DeviceID  string  `json:"device_id"`
	RSSI      float64 `json:"rssi"`
	Timestamp int64   `json:"timestamp"`
}

func main() {
	var (
		brokerURL   = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		topicPrefix = flag.String("prefix", "hns", "MQTT topic prefix")
		deviceCount = flag.Int("devices", 3, "Number of simulated devices")
		rate        = flag.Duration("rate", time.Second, "Publish rate per device")
		maxMessages = flag.Int("max", 0, "Max messages (0 = unlimited)")
		clientID    = flag.String("client", "hns-test-publisher", "MQTT client ID")
		seed        = flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	)
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	stations := []station{
		{ID: "station-nw", X: 0, Y: 0},
		{ID: "station-ne", X: roomWidthM, Y: 0},
		{ID: "station-s", X: roomWidthM / 2, Y: roomHeightM},
	}

	devices := make([]*device, 0, *deviceCount)
	for i := 0; i < *deviceCount; i++ {
		devices = append(devices, &device{
			ID: fmt.Sprintf("device-%02d", i+1),
			X:  rng.Float64() * roomWidthM,
			Y:  rng.Float64() * roomHeightM,
		})
	}

	opts := mqtt.NewClientOptions().AddBroker(*brokerURL).SetClientID(*clientID)
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Ошибка подключения к брокеру: %v", token.Error())
	}
	defer client.Disconnect(500)

	fmt.Printf("Публикуем показания %d устройств от %d станций в %s\n",
		len(devices), len(stations), *brokerURL)
	fmt.Printf("Станции: %s\n", stationList(stations))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	published := 0
	for {
		select {
		case <-sigChan:
			fmt.Printf("\nОпубликовано сообщений: %d\n", published)
			return
		case <-ticker.C:
			for _, dev := range devices {
				moveDevice(dev, rng)
				for _, st := range stations {
					payload := readingPayload{
						SensorID:  st.ID,
						DeviceID:  dev.ID,
						RSSI:      simulateRSSI(dev, st, rng),
						Timestamp: time.Now().UnixMilli(),
					}
					data, _ := json.Marshal(payload)
					topic := fmt.Sprintf("%s/%s/reading", *topicPrefix, st.ID)
					client.Publish(topic, 1, false, data)
					published++
				}
			}
			if *maxMessages > 0 && published >= *maxMessages {
				fmt.Printf("Опубликовано сообщений: %d\n", published)
				return
			}
		}
	}
}

// moveDevice делает случайный шаг, оставаясь в пределах комнаты
func moveDevice(dev *device, rng *rand.Rand) {
	dev.X += (rng.Float64()*2 - 1) * maxStepM
	dev.Y += (rng.Float64()*2 - 1) * maxStepM
	dev.X = math.Max(0, math.Min(roomWidthM, dev.X))
	dev.Y = math.Max(0, math.Min(roomHeightM, dev.Y))
}

// simulateRSSI обращает модель логарифмических потерь и добавляет шум
func simulateRSSI(dev *device, st station, rng *rand.Rand) float64 {
	dist := math.Hypot(dev.X-st.X, dev.Y-st.Y)
	if dist < 0.5 {
		dist = 0.5
	}
	rssi := rssiRef - 10*pathLossExp*math.Log10(dist)
	return rssi + rng.NormFloat64()*noiseStddBm
}

func stationList(stations []station) string {
	names := make([]string, len(stations))
	for i, st := range stations {
		names[i] = fmt.Sprintf("%s(%.0f,%.0f)", st.ID, st.X, st.Y)
	}
	return strings.Join(names, ", ")
}

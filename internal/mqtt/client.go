// Package mqtt принимает показания от станций по MQTT.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/BenJaminBMorin/hide-n-seek/internal/config"
	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/pool"
	"github.com/BenJaminBMorin/hide-n-seek/pkg/utils"
)

// MessageHandler функция обработки распарсенных показаний
type MessageHandler func(reading *models.Reading) error

// Client представляет MQTT клиент для приема показаний станций
type Client struct {
	client    mqtt.Client
	config    *config.MQTTConfig
	logger    *utils.Logger
	parser    *Parser
	handler   MessageHandler
	wg        sync.WaitGroup
	connected bool
	mu        sync.RWMutex
}

// NewClient создает новый MQTT клиент
func NewClient(cfg *config.MQTTConfig, logger *utils.Logger, handler MessageHandler) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	c := &Client{
		config:  cfg,
		logger:  logger,
		parser:  NewParser(logger),
		handler: handler,
	}

	topic := cfg.TopicPrefix + "/+/reading"

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(cfg.CleanSession)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// Callback при подключении: подписка выполняется здесь, чтобы
	// пережить переподключение брокера
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		c.mu.Lock()
		c.connected = true
		c.mu.Unlock()

		c.logger.WithField("broker", cfg.URL).Info("Connected to MQTT broker")
		metrics.MQTTConnectionStatus.Set(1)

		if token := client.Subscribe(topic, 1, c.messageHandler()); token.Wait() && token.Error() != nil {
			c.logger.WithFields(map[string]interface{}{
				"topic": topic,
				"error": token.Error(),
			}).Error("Failed to subscribe to topic")
		} else {
			c.logger.WithField("topic", topic).Info("Subscribed to MQTT topic")
		}
	})

	// Callback при потере соединения
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()

		c.logger.WithField("error", err).Warn("Lost connection to MQTT broker")
		metrics.MQTTConnectionStatus.Set(0)
	})

	c.client = mqtt.NewClient(opts)

	return c, nil
}

// connectTimeout ограничивает ожидание первого подключения: при
// включенном ConnectRetry токен paho не завершается, пока брокер
// недоступен.
const connectTimeout = 10 * time.Second

// Connect подключается к MQTT брокеру и ждет подтверждения
func (c *Client) Connect() error {
	c.logger.WithField("broker", c.config.URL).Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	timeout := time.After(connectTimeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			return fmt.Errorf("connection timeout")
		case <-ticker.C:
			if c.IsConnected() {
				return nil
			}
		}
	}
}

// Disconnect отключается от MQTT брокера, дождавшись обработчиков
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")

	if c.client.IsConnected() {
		c.client.Disconnect(1000)
	}

	c.wg.Wait()
	c.logger.Info("MQTT client disconnected")
}

// IsConnected проверяет статус подключения
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// messageHandler создает обработчик MQTT сообщений. Каждое сообщение
// обрабатывается в отдельной горутине, чтобы не блокировать poll loop
// paho клиента.
func (c *Client) messageHandler() mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()

			topic := msg.Topic()
			payload := msg.Payload()

			c.logger.WithFields(map[string]interface{}{
				"topic":        topic,
				"payload_size": len(payload),
			}).Debug("Received MQTT message")

			reading, err := c.parser.Parse(topic, payload)
			if err != nil {
				c.logger.WithFields(map[string]interface{}{
					"topic": topic,
					"error": err,
				}).Error("Failed to parse reading message")
				metrics.MQTTParseErrors.Inc()
				return
			}

			metrics.MQTTMessagesReceived.WithLabelValues("reading").Inc()
			defer pool.Global.PutReading(reading)

			if c.handler == nil {
				c.logger.WithField("topic", topic).Warn("Message handler is nil")
				return
			}

			if err := c.handler(reading); err != nil {
				c.logger.WithFields(map[string]interface{}{
					"topic":     topic,
					"sensor_id": reading.SensorID,
					"device_id": reading.DeviceID,
					"error":     err,
				}).Warn("Reading rejected")
			}
		}()
	}
}

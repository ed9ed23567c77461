package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/BenJaminBMorin/hide-n-seek/internal/metrics"
	"github.com/BenJaminBMorin/hide-n-seek/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
)

// StreamMessage обертка сообщения для WebSocket клиентов
type StreamMessage struct {
	Type      string      `json:"type"` // position | zone_event | welcome
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// WebSocketHub раздает обновления позиций и события зон всем
// подключенным клиентам. Реализует издателя для цикла трекинга.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Entry

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Client представляет WebSocket соединение
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *WebSocketHub
}

// NewWebSocketHub создает новый hub
func NewWebSocketHub(logger *logrus.Entry) *WebSocketHub {
	if logger == nil {
		logger = logrus.New().WithField("component", "websocket")
	}

	return &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*Client]struct{}),
	}
}

// HandleWebSocket обрабатывает WebSocket подключения
func (h *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to upgrade to WebSocket")
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	metrics.WebSocketConnections.Inc()

	h.logger.WithField("remote_addr", conn.RemoteAddr().String()).Info("WebSocket client connected")

	client.enqueue(StreamMessage{Type: "welcome", Timestamp: time.Now().UnixMilli()})

	go client.writePump()
	go client.readPump()
}

// PublishPosition рассылает обновление позиции всем клиентам
func (h *WebSocketHub) PublishPosition(update *models.PositionUpdate) {
	h.broadcast(StreamMessage{
		Type:      "position",
		Timestamp: update.Timestamp.UnixMilli(),
		Data:      update,
	})
}

// PublishZoneEvent рассылает событие зоны всем клиентам
func (h *WebSocketHub) PublishZoneEvent(event models.ZoneEvent) {
	h.broadcast(StreamMessage{
		Type:      "zone_event",
		Timestamp: event.Timestamp.UnixMilli(),
		Data:      event,
	})
}

// broadcast сериализует сообщение один раз и раздает всем клиентам.
// Медленный клиент с переполненным буфером отключается, чтобы не
// тормозить остальных.
func (h *WebSocketHub) broadcast(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to marshal stream message")
		return
	}

	h.mu.RLock()
	var slow []*Client
	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.WithField("remote_addr", client.conn.RemoteAddr().String()).
			Warn("Disconnecting slow WebSocket client")
		h.unregister(client)
	}

	metrics.WebSocketMessagesOut.WithLabelValues(msg.Type).Inc()
}

// ClientCount возвращает число подключенных клиентов
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close отключает всех клиентов
func (h *WebSocketHub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		h.unregister(client)
	}
}

// unregister удаляет клиента и закрывает его канал отправки
func (h *WebSocketHub) unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()

	close(client.send)
	metrics.WebSocketConnections.Dec()
}

// enqueue ставит сообщение в очередь одного клиента
func (c *Client) enqueue(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump читает сообщения клиента. Входящие данные игнорируются,
// поток нужен для обработки pong и обнаружения разрыва.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithField("error", err).Debug("WebSocket read error")
			}
			return
		}
	}
}

// writePump отправляет сообщения клиенту и шлет периодический ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.WithField("error", err).Debug("WebSocket write error")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

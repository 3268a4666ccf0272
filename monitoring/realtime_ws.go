package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	PredictionEvent MessageType = "prediction"
	SystemStatus    MessageType = "system_status"
	Heartbeat       MessageType = "heartbeat"
)

// Message 监控消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// PredictionEventData 推送给监控客户端的推理事件，不包含输入特征
type PredictionEventData struct {
	RequestID   string  `json:"request_id"`
	Transport   string  `json:"transport"`
	Prediction  int     `json:"prediction"`
	Probability float64 `json:"probability"`
	LatencyMS   float64 `json:"latency_ms"`
}

const (
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
)

// Client WebSocket客户端
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	clientID string
}

// HubStats 中心统计
type HubStats struct {
	ConnectedClients int64     `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	StartTime        time.Time `json:"start_time"`
}

// WebSocketHub 把推理事件广播给所有已连接的监控客户端
type WebSocketHub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	sent      atomic.Int64
	dropped   atomic.Int64
	startTime time.Time

	heartbeat time.Duration
}

// NewWebSocketHub 创建WebSocket中心
func NewWebSocketHub(logger *zap.Logger) *WebSocketHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketHub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:    logger,
		startTime: time.Now(),
		heartbeat: 30 * time.Second,
	}
}

// Run 运行中心直到 ctx 结束，只能调用一次
func (h *WebSocketHub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("monitor client connected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("monitor client disconnected", zap.String("client_id", client.clientID), zap.Int("total", total))

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-ticker.C:
			if msg, err := encodeMessage(Heartbeat, h.Stats()); err == nil {
				h.fanOut(msg)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *WebSocketHub) fanOut(message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
			h.sent.Add(1)
		default:
			close(client.send)
			delete(h.clients, client)
			h.dropped.Add(1)
		}
	}
}

// HandleWebSocket 处理WebSocket连接
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 256),
		clientID: uuid.NewString(),
	}
	if msg, err := encodeMessage(SystemStatus, h.Stats()); err == nil {
		client.send <- msg
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump(h.logger)
	go client.readPump(h)
}

// PublishPrediction 广播一次推理事件，队列满时丢弃
func (h *WebSocketHub) PublishPrediction(event PredictionEventData) {
	msg, err := encodeMessage(PredictionEvent, event)
	if err != nil {
		h.logger.Warn("encode prediction event failed", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
	}
}

// Stats 获取统计信息
func (h *WebSocketHub) Stats() HubStats {
	h.mu.RLock()
	connected := len(h.clients)
	h.mu.RUnlock()
	return HubStats{
		ConnectedClients: int64(connected),
		MessagesSent:     h.sent.Load(),
		MessagesDropped:  h.dropped.Load(),
		StartTime:        h.startTime,
	}
}

func encodeMessage(typ MessageType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      payload,
		ID:        uuid.NewString(),
	})
}

// writePump WebSocket写入泵
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("monitor write failed", zap.String("client_id", c.clientID), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只用于探测断开，监控客户端发来的消息被忽略
func (c *Client) readPump(h *WebSocketHub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("monitor read failed", zap.String("client_id", c.clientID), zap.Error(err))
			}
			return
		}
	}
}

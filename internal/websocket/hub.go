package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Hub WebSocket连接管理中心，向所有客户端推送出料状态
type Hub struct {
	// 客户端连接池
	clients   map[string]*Client
	clientsMu sync.RWMutex

	// 消息广播通道
	broadcast chan []byte

	// 注册/注销通道
	register   chan *Client
	unregister chan *Client

	// 日志
	logger *zap.Logger
}

// Message 推送消息
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// 消息类型
const (
	MessageTypeConnected  = "connected"
	MessageTypeState      = "dispense_state"
	MessageTypeSerialLine = "serial_line"
	MessageTypeStatus     = "status"
	MessageTypeError      = "error"
)

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run 运行Hub
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID))

	welcome, _ := json.Marshal(Message{
		Type:      MessageTypeConnected,
		Timestamp: time.Now().UnixMilli(),
	})
	select {
	case client.Send <- welcome:
	default:
	}
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID))
}

// broadcastMessage 广播消息到所有客户端
func (h *Hub) broadcastMessage(message []byte) {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.Send <- message:
		default:
			// 发送缓冲区已满，跳过该客户端
			h.logger.Warn("WebSocket发送缓冲区已满，丢弃消息",
				zap.String("client_id", client.ID))
		}
	}
}

// BroadcastState 广播出料状态变更
func (h *Hub) BroadcastState(state string) {
	h.Broadcast(MessageTypeState, map[string]string{"state": state})
}

// BroadcastSerialLine 广播一条串口收发记录
func (h *Hub) BroadcastSerialLine(direction, line string) {
	h.Broadcast(MessageTypeSerialLine, map[string]string{
		"direction": direction,
		"line":      line,
	})
}

// Broadcast 广播任意类型的消息
func (h *Hub) Broadcast(msgType string, data interface{}) {
	payload, err := json.Marshal(Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		h.logger.Error("WebSocket消息序列化失败", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("WebSocket广播通道已满，丢弃消息")
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

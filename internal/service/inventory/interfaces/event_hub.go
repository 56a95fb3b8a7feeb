package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// EventHub 维护所有订阅订单事件的 WebSocket 连接，并负责广播。
// 它实现了 port.EventPublisher。
type EventHub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
	done       chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理连接的注册和注销，直到 ctx 被取消，退出时断开所有连接
func (h *EventHub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			logger.Ctx(ctx).Debug().Str("order_filter", client.orderID).Msg("event subscriber registered")
		case client := <-h.unregister:
			h.lock.Lock()
			h.remove(client)
			h.lock.Unlock()
			logger.Ctx(ctx).Debug().Msg("event subscriber unregistered")
		case <-ctx.Done():
			h.lock.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.lock.Unlock()
			return nil
		}
	}
}

// remove 调用方必须持有写锁
func (h *EventHub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// Subscribers 返回当前连接数
func (h *EventHub) Subscribers() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// Publish 把事件推给所有订阅者。发送缓冲已满的慢连接会丢掉这条消息。
func (h *EventHub) Publish(ctx context.Context, event *domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order event")
	}

	h.lock.RLock()
	defer h.lock.RUnlock()
	for client := range h.clients {
		if client.orderID != "" && client.orderID != event.OrderID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			logger.Ctx(ctx).Warn().Str("order_id", event.OrderID).Msg("subscriber too slow, event dropped")
		}
	}
	return nil
}

// ServeWs 把 HTTP 请求升级为 WebSocket。?orderId= 只订阅单个订单的事件。
func (h *EventHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		orderID: r.URL.Query().Get("orderId"),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub     *EventHub
	conn    *websocket.Conn
	send    chan []byte
	orderID string
}

// writePump 负责将 send channel 中的消息写入 websocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理心跳和关闭帧，订阅者不需要向服务端发业务消息
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

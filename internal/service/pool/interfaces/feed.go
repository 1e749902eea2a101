package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"emergency-nexus/internal/pkg/logger"
	"emergency-nexus/internal/service/pool/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 看板可能部署在其他域名下
		return true
	},
}

// FeedHub 维护所有订阅资源池变化的 WebSocket 连接，并负责广播
type FeedHub struct {
	clients    map[string]*feedClient
	register   chan *feedClient
	unregister chan *feedClient
	broadcast  chan domain.PoolEvent
	done       chan struct{}
	lock       sync.RWMutex
}

func NewFeedHub() *FeedHub {
	return &FeedHub{
		clients:    make(map[string]*feedClient),
		register:   make(chan *feedClient),
		unregister: make(chan *feedClient),
		broadcast:  make(chan domain.PoolEvent, 256),
		done:       make(chan struct{}),
	}
}

// Publish 实现 domain.EventSink，缓冲区满时丢弃事件而不是阻塞分配
func (h *FeedHub) Publish(event domain.PoolEvent) {
	select {
	case h.broadcast <- event:
	default:
		zlog.Warn().Str("location", event.LocationKey).Msg("pool feed buffer full, dropping event")
	}
}

// Run 处理注册、注销和广播，直到 ctx 结束
func (h *FeedHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for id, c := range h.clients {
				delete(h.clients, id)
				close(c.send)
			}
			h.lock.Unlock()
			return
		case c := <-h.register:
			h.lock.Lock()
			h.clients[c.id] = c
			h.lock.Unlock()
		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.lock.Unlock()
		case event := <-h.broadcast:
			payload, err := json.Marshal(event)
			if err != nil {
				zlog.Error().Err(err).Msg("failed to marshal pool event")
				continue
			}
			h.lock.Lock()
			for id, c := range h.clients {
				if c.location != "" && c.location != event.LocationKey {
					continue
				}
				select {
				case c.send <- payload:
				default:
					// 客户端消费太慢，直接断开
					delete(h.clients, id)
					close(c.send)
				}
			}
			h.lock.Unlock()
		}
	}
}

func (h *FeedHub) clientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// feedClient 是一个 WebSocket 连接，location 为空表示订阅全部位置
type feedClient struct {
	id       string
	hub      *FeedHub
	conn     *websocket.Conn
	send     chan []byte
	location string
}

// writePump 负责将 send channel 中的消息写入 websocket，并定期发送 ping
func (c *feedClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump 只处理心跳和关闭，连接断开后从 hub 注销
func (c *feedClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
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

// ServeFeed 把 HTTP 连接升级为 WebSocket 并注册到 hub
func (h *FeedHub) ServeFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &feedClient{
		id:       uuid.NewString(),
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 64),
		location: domain.NormalizeLocation(r.URL.Query().Get("location")),
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

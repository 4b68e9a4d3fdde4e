package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"crowd-sim/internal/game"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// MaxWSConnectionsTotal is the maximum number of WebSocket connections allowed
	MaxWSConnectionsTotal = 500

	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// DefaultBroadcastInterval is how often world:state is pushed
	DefaultBroadcastInterval = 100 * time.Millisecond

	wsWriteTimeout = 2 * time.Second
	wsMaxMessage   = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// HubEngine is what the hub needs from the engine
type HubEngine interface {
	GetSnapshot() *game.WorldSnapshot
	SetPlayerInput(in game.PlayerInput) bool
}

// wsMessage is the msgpack envelope of every server push
type wsMessage struct {
	Event string      `msgpack:"event"`
	Data  interface{} `msgpack:"data"`
}

// wsCommand is a JSON message sent by a client
type wsCommand struct {
	Event string  `json:"event"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
}

// WebSocketHub pushes snapshots to connected clients and forwards their
// input to the engine
type WebSocketHub struct {
	engine HubEngine

	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex

	limiter *ConnLimiter

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a hub. Nothing runs until Run is called.
func NewWebSocketHub(engine HubEngine) *WebSocketHub {
	return &WebSocketHub{
		engine:     engine,
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		limiter:    NewConnLimiter(MaxWSConnectionsPerIP),
		stopChan:   make(chan struct{}),
	}
}

// Run serves register/unregister/broadcast until Stop
func (h *WebSocketHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			clients := make([]*wsClient, 0, len(h.clients))
			for c := range h.clients {
				clients = append(clients, c)
			}
			h.mu.RUnlock()

			for _, c := range clients {
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
					h.remove(c)
					continue
				}
				IncrementWSMessages()
			}

		case <-h.stopChan:
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				h.limiter.Release(c.ip)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return
		}
	}
}

func (h *WebSocketHub) remove(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		h.limiter.Release(c.ip)
		c.conn.Close()
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		log.Printf("📱 Client disconnected (%d remaining)", count)
		UpdateWSConnections(count)
	}
}

// Stop closes every connection and ends Run and the broadcast loop
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
}

// Broadcast msgpack-encodes an event and queues it for all clients.
// It drops the message when the queue is full.
func (h *WebSocketHub) Broadcast(event string, data interface{}) error {
	b, err := msgpack.Marshal(wsMessage{Event: event, Data: data})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- b:
	default:
	}
	return nil
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartBroadcastLoop pushes world:state every interval while clients are
// connected and the snapshot has changed
func (h *WebSocketHub) StartBroadcastLoop(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		var lastSeq uint64
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
			}

			if h.ClientCount() == 0 {
				continue
			}
			snap := h.engine.GetSnapshot()
			if snap.Sequence == lastSeq {
				continue
			}
			lastSeq = snap.Sequence

			if err := h.Broadcast("world:state", snap); err != nil {
				log.Printf("❌ Snapshot encode failed: %v", err)
			}
		}
	}()
}

// HandleWebSocket upgrades the request after the total and per-IP checks
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= MaxWSConnectionsTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.limiter.Acquire(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.limiter.Release(ip)
		return
	}
	conn.SetReadLimit(wsMaxMessage)

	client := &wsClient{conn: conn, ip: ip}
	select {
	case h.register <- client:
	case <-h.stopChan:
		conn.Close()
		h.limiter.Release(ip)
		return
	}

	go h.readLoop(client)
}

// readLoop forwards input commands until the connection fails
func (h *WebSocketHub) readLoop(c *wsClient) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.stopChan:
		}
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			RecordConnectionRejected("invalid")
			continue
		}

		switch cmd.Event {
		case "input":
			h.engine.SetPlayerInput(game.PlayerInput{X: cmd.X, Y: cmd.Y})
		default:
			log.Printf("📨 Unknown WebSocket event from %s: %q", c.ip, cmd.Event)
		}
	}
}

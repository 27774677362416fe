package progress

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// frame is the envelope every broadcast message is wrapped in, mirroring
// the {type, payload} shape the external progress-reporting socket expects
// (spec.md §1 lists this socket as an out-of-scope collaborator; Broadcaster
// is the transport that feeds it).
type frame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Broadcaster fans Snapshot updates out to every connected websocket client.
// One connection gets its own write mutex so concurrent broadcasts never
// interleave frames on the wire.
type Broadcaster struct {
	logger arbor.ILogger

	mu          sync.RWMutex
	clients     map[*websocket.Conn]bool
	clientLocks map[*websocket.Conn]*sync.Mutex
}

// NewBroadcaster constructs a Broadcaster.
func NewBroadcaster(logger arbor.ILogger) *Broadcaster {
	return &Broadcaster{
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientLocks: make(map[*websocket.Conn]*sync.Mutex),
	}
}

// HandleWebSocket upgrades the request and registers the connection until
// the client disconnects.
func (b *Broadcaster) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	b.clientLocks[conn] = &sync.Mutex{}
	b.mu.Unlock()

	b.logger.Info().Msgf("progress websocket client connected (total: %d)", len(b.clients))

	defer func() {
		b.mu.Lock()
		delete(b.clients, conn)
		delete(b.clientLocks, conn)
		remaining := len(b.clients)
		b.mu.Unlock()

		conn.Close()
		b.logger.Info().Msgf("progress websocket client disconnected (remaining: %d)", remaining)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				b.logger.Warn().Err(err).Msg("progress websocket read error")
			}
			break
		}
	}
}

// BroadcastSnapshot pushes one ProgressState snapshot to every connected
// client.
func (b *Broadcaster) BroadcastSnapshot(snap Snapshot) {
	b.broadcast(frame{Type: "progress", Payload: snap})
}

// BroadcastJobEvent pushes an arbitrary job lifecycle event (e.g. queue
// stats, a dead-letter notice) under a caller-chosen type tag.
func (b *Broadcaster) BroadcastJobEvent(eventType string, payload interface{}) {
	b.broadcast(frame{Type: eventType, Payload: payload})
}

func (b *Broadcaster) broadcast(msg frame) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to marshal progress broadcast frame")
		return
	}

	b.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	locks := make([]*sync.Mutex, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
		locks = append(locks, b.clientLocks[conn])
	}
	b.mu.RUnlock()

	for i, conn := range conns {
		lock := locks[i]
		lock.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		lock.Unlock()

		if err != nil {
			b.logger.Warn().Err(err).Msg("failed to send progress frame to client")
		}
	}
}

// ClientCount reports how many websocket clients are currently connected.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

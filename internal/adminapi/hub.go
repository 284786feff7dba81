package adminapi

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/tos-network/prizepool/internal/events"
	"github.com/tos-network/prizepool/internal/util"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient is a single subscriber to the event stream.
type wsClient struct {
	id   uint64
	conn *websocket.Conn

	writeMu sync.Mutex
	quit    chan struct{}
}

// eventHub fans every pool event out to connected admin dashboards.
// Broadcast writes to each client in turn and waits for every write to
// finish; a client whose write fails is dropped and its connection closed.
type eventHub struct {
	clients  sync.Map // uint64 -> *wsClient
	clientSeq uint64
}

func newEventHub() *eventHub {
	return &eventHub{}
}

// upgrade promotes an HTTP connection to a websocket subscriber.
func (h *eventHub) upgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		util.Warnf("adminapi: websocket upgrade failed: %v", err)
		return
	}

	id := atomic.AddUint64(&h.clientSeq, 1)
	client := &wsClient{id: id, conn: conn, quit: make(chan struct{})}
	h.clients.Store(id, client)

	go h.readLoop(client)
}

// readLoop drains and discards client frames so ping/pong and close
// control frames are processed; subscribers only receive, never send.
func (h *eventHub) readLoop(client *wsClient) {
	defer func() {
		h.clients.Delete(client.id)
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast pushes ev to every connected subscriber as JSON.
func (h *eventHub) Broadcast(ev events.Event) {
	h.clients.Range(func(_, v interface{}) bool {
		client := v.(*wsClient)
		client.writeMu.Lock()
		err := client.conn.WriteJSON(ev)
		client.writeMu.Unlock()
		if err != nil {
			h.clients.Delete(client.id)
			client.conn.Close()
		}
		return true
	})
}

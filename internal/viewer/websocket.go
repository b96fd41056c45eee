package viewer

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// reloadHub broadcasts a single kind of message — "the trace file
// changed, reload" — to every connected /_local/ws client. Same single-
// goroutine-owns-the-map shape as the teacher's dashboard wsHub, trimmed
// to one broadcast frame instead of a general event stream.
type reloadHub struct {
	connections  map[*wsConn]bool
	broadcastCh  chan []byte
	registerCh   chan *wsConn
	unregisterCh chan *wsConn
}

type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	mu   sync.Mutex
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func newReloadHub() *reloadHub {
	return &reloadHub{
		connections:  make(map[*wsConn]bool),
		broadcastCh:  make(chan []byte, 16),
		registerCh:   make(chan *wsConn),
		unregisterCh: make(chan *wsConn),
	}
}

func (h *reloadHub) run() {
	for {
		select {
		case conn := <-h.registerCh:
			h.connections[conn] = true

		case conn := <-h.unregisterCh:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.send)
			}

		case msg := <-h.broadcastCh:
			for conn := range h.connections {
				select {
				case conn.send <- msg:
				default:
					delete(h.connections, conn)
					close(conn.send)
				}
			}
		}
	}
}

// broadcastReload notifies every connected client that the underlying
// trace file changed. Best-effort: a full channel drops the frame rather
// than blocking the watcher goroutine.
func (h *reloadHub) broadcastReload() {
	select {
	case h.broadcastCh <- []byte(`{"type":"reload"}`):
	default:
	}
}

func (h *reloadHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("viewer websocket upgrade failed", "error", err)
		return
	}

	client := &wsConn{conn: conn, send: make(chan []byte, 4)}
	h.registerCh <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *wsConn) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.mu.Lock()
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		c.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (c *wsConn) readPump(h *reloadHub) {
	defer func() {
		h.unregisterCh <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

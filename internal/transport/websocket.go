// SPDX-License-Identifier: MIT
package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	applog "keydetect/internal/log"
	"keydetect/internal/param"
)

// controlRequest is a client message on the WebSocket control channel.
type controlRequest struct {
	Op    string `json:"op"` // "get" or "set".
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

// controlReply answers one controlRequest.
type controlReply struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

// Broadcaster serves key updates as JSON to WebSocket subscribers on /ws
// and answers parameter get/set requests through the bridge. One writer
// mutex serializes all outbound frames, so broadcasts and control replies
// never interleave on a connection.
type Broadcaster struct {
	addr      string
	bridge    *param.Bridge
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan KeyUpdate
	server    *http.Server
	done      chan struct{}
}

// NewBroadcaster starts a WebSocket server on addr. The bridge may be nil,
// in which case control requests are answered with an error and only
// broadcasts are served.
func NewBroadcaster(addr string, bridge *param.Bridge) *Broadcaster {
	b := &Broadcaster{
		addr:   addr,
		bridge: bridge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan KeyUpdate, 64),
		done:      make(chan struct{}),
	}
	b.start()
	return b
}

func (b *Broadcaster) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWebSocket)

	b.server = &http.Server{Addr: b.addr, Handler: mux}

	go func() {
		applog.Infof("websocket: listening on %s", b.addr)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("websocket: server error: %v", err)
		}
	}()
	go b.handleBroadcasts()
}

// handleWebSocket upgrades the connection, registers the client, and
// reads control requests until the client goes away.
func (b *Broadcaster) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("websocket: upgrade error: %v", err)
		return
	}

	b.clientsMu.Lock()
	b.clients[conn] = true
	total := len(b.clients)
	b.clientsMu.Unlock()
	applog.Debugf("websocket: client connected, total: %d", total)

	go b.readLoop(conn)
}

func (b *Broadcaster) readLoop(conn *websocket.Conn) {
	defer func() {
		b.clientsMu.Lock()
		delete(b.clients, conn)
		total := len(b.clients)
		b.clientsMu.Unlock()
		conn.Close()
		applog.Debugf("websocket: client disconnected, total: %d", total)
	}()

	for {
		var req controlRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		b.writeReply(conn, b.handleControl(req))
	}
}

// handleControl resolves one get/set request against the bridge.
func (b *Broadcaster) handleControl(req controlRequest) controlReply {
	if b.bridge == nil {
		return controlReply{Name: req.Name, Error: "no parameter bridge attached"}
	}
	switch req.Op {
	case "get":
		value, err := b.bridge.Get(req.Name)
		if err != nil {
			return controlReply{Name: req.Name, Error: err.Error()}
		}
		return controlReply{Name: req.Name, Value: value}
	case "set":
		if err := b.bridge.Set(req.Name, req.Value); err != nil {
			return controlReply{Name: req.Name, Error: err.Error()}
		}
		value, _ := b.bridge.Get(req.Name)
		return controlReply{Name: req.Name, Value: value}
	default:
		return controlReply{Name: req.Name, Error: "unknown op " + req.Op}
	}
}

func (b *Broadcaster) writeReply(conn *websocket.Conn, reply controlReply) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	if !b.clients[conn] {
		return
	}
	if err := conn.WriteJSON(reply); err != nil {
		applog.Warnf("websocket: reply write failed: %v", err)
	}
}

// handleBroadcasts pushes queued updates to every connected client.
func (b *Broadcaster) handleBroadcasts() {
	for {
		select {
		case update := <-b.broadcast:
			b.clientsMu.Lock()
			for client := range b.clients {
				if err := client.WriteJSON(update); err != nil {
					applog.Warnf("websocket: send failed, dropping client: %v", err)
					client.Close()
					delete(b.clients, client)
				}
			}
			b.clientsMu.Unlock()
		case <-b.done:
			return
		}
	}
}

// Send queues an update for broadcast. A full queue drops the update:
// subscribers are monitors, not recorders, and the next change follows.
func (b *Broadcaster) Send(update KeyUpdate) error {
	select {
	case b.broadcast <- update:
	default:
	}
	return nil
}

// Close shuts down the server and every client connection.
func (b *Broadcaster) Close() error {
	close(b.done)

	b.clientsMu.Lock()
	for client := range b.clients {
		client.Close()
	}
	b.clients = make(map[*websocket.Conn]bool)
	b.clientsMu.Unlock()

	if b.server != nil {
		return b.server.Close()
	}
	return nil
}

var _ Transport = (*Broadcaster)(nil)

package adaptor

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ponyo877/chatroom/server/domain"
	"github.com/ponyo877/chatroom/server/usecase"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 8192
	sendBuffer   = 64
)

// Adaptor is the transport boundary: it upgrades websocket connections, feeds
// inbound frames to the session handler and serves the admin HTTP API.
type Adaptor struct {
	handler  SessionHandler
	rooms    RoomAPI
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewAdaptor(handler SessionHandler, rooms RoomAPI, logger *slog.Logger) *Adaptor {
	return &Adaptor{
		handler: handler,
		rooms:   rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (a *Adaptor) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", a.serveWS)
	mux.HandleFunc("GET /api/rooms", a.listRooms)
	mux.HandleFunc("POST /api/rooms", a.createRoom)
	mux.HandleFunc("DELETE /api/rooms/{id}", a.deleteRoom)
	mux.HandleFunc("GET /api/rooms/{id}/history", a.roomHistory)
	mux.HandleFunc("GET /api/rooms/{id}/search", a.searchMessages)
	return mux
}

// client wraps one websocket connection behind the Pusher contract. Pushes go
// through a buffered channel drained by the write pump; a full buffer or a
// closed connection fails the push without blocking the caller.
type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
}

func (c *client) Push(data []byte) error {
	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

func (a *Adaptor) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	connID := uuid.NewString()
	c := newClient(conn)
	go c.writePump()

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	a.handler.HandleOpen(connID, c)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug("websocket read failed", "conn", connID, "error", err)
			}
			break
		}
		a.handler.HandleMessage(connID, data)
	}
	c.close()
	a.handler.HandleClose(connID)
}

func (a *Adaptor) listRooms(w http.ResponseWriter, r *http.Request) {
	infos, err := a.rooms.Rooms()
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"rooms": infos})
}

func (a *Adaptor) createRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || len(req.Name) > 50 {
		http.Error(w, "room name must be 1-50 characters", http.StatusBadRequest)
		return
	}
	room, err := a.rooms.CreateRoom(req.Name)
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, room.DTO())
}

func (a *Adaptor) deleteRoom(w http.ResponseWriter, r *http.Request) {
	if err := a.rooms.DeleteRoom(r.PathValue("id")); err != nil {
		a.apiError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *Adaptor) roomHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "limit must be 1-200", http.StatusBadRequest)
			return
		}
		limit = n
	}
	var before time.Time
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			http.Error(w, "before must be RFC 3339", http.StatusBadRequest)
			return
		}
		before = t
	}
	history, err := a.rooms.RoomHistory(r.PathValue("id"), limit, before)
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, history)
}

func (a *Adaptor) searchMessages(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("q")
	if pattern == "" {
		http.Error(w, "missing q parameter", http.StatusBadRequest)
		return
	}
	messages, err := a.rooms.SearchMessages(r.PathValue("id"), pattern)
	if err != nil {
		a.apiError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (a *Adaptor) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("write api response", "error", err)
	}
}

func (a *Adaptor) apiError(w http.ResponseWriter, err error) {
	var se domain.StatusError
	switch {
	case errors.As(err, &se) && se.Code == domain.CodeRoomNotFound,
		errors.Is(err, usecase.ErrNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, usecase.ErrAlreadyExists):
		http.Error(w, "room already exists", http.StatusConflict)
	default:
		a.logger.Error("admin api error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

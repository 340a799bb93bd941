package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/pulse/async"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames; anything larger is a misbehaving peer
	maxMessageSize = 64 * 1024
)

// JobUpdateMessage is pushed to WebSocket clients whenever a job changes
type JobUpdateMessage struct {
	Type string     `json:"type"`
	Job  *async.Job `json:"job"`
}

// client is one WebSocket connection
type client struct {
	server    *Server
	conn      *websocket.Conn
	send      chan interface{}
	id        string
	closeOnce sync.Once
}

// checkOrigin allows requests without an Origin header and otherwise
// prefix-matches server.allowed_origins, so any port is accepted
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	s.originsMu.RLock()
	defer s.originsMu.RUnlock()
	for _, allowed := range s.allowedOrigins {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	return false
}

// HandleWebSocket upgrades the connection and streams job updates
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.getState() != ServerStateRunning {
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	}
	if s.clientCount() >= MaxClients {
		s.logger.Warnw("Rejecting WebSocket client, limit reached", "max_clients", MaxClients)
		writeError(w, http.StatusServiceUnavailable, "too many clients")
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("WebSocket upgrade failed", logger.FieldError, err, "remote", r.RemoteAddr)
		return
	}

	c := &client{
		server: s,
		conn:   conn,
		send:   make(chan interface{}, MaxClientMessageQueueSize),
		id:     uuid.NewString(),
	}
	s.register(c)

	go c.writePump()
	go c.readPump()
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	s.clients[c] = true
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Debugw("WebSocket client connected", "client_id", c.id, "clients", total)
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		c.close()
	}
	total := len(s.clients)
	s.mu.Unlock()
	s.logger.Debugw("WebSocket client disconnected", "client_id", c.id, "clients", total)
}

func (s *Server) clientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// broadcastMessage sends msg to every client whose queue has room.
// Returns the number of clients that accepted it.
func (s *Server) broadcastMessage(msg interface{}) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sent := 0
	for c := range s.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			s.logger.Debugw("Client queue full, dropping update", "client_id", c.id)
		}
	}
	return sent
}

// startJobUpdateBroadcaster forwards job manager notifications to clients
// until the server shuts down
func (s *Server) startJobUpdateBroadcaster() {
	jobChan := s.jobs.Subscribe()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			// unsubscribe before close so the manager never sends on a closed channel
			s.jobs.Unsubscribe(jobChan)
			close(jobChan)
		}()

		for {
			select {
			case <-s.ctx.Done():
				s.closeClients()
				return
			case job := <-jobChan:
				if job == nil {
					continue
				}
				s.broadcastMessage(JobUpdateMessage{Type: "job_update", Job: job})
			}
		}
	}()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// readPump drains the connection so pongs and close frames are processed
func (c *client) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.server.logger.Warnw("WebSocket read error", "client_id", c.id, logger.FieldError, err)
			}
			return
		}
	}
}

// writePump serialises queued messages and keeps the connection alive with pings
func (c *client) writePump() {
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
			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Debugw("WebSocket write failed", "client_id", c.id, logger.FieldError, err)
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

// Package dashboard implements the read-only status/health HTTP surface
// (§6a): liveness, a JSON status snapshot, and a push-only feed of per-file
// outcome events. Grounded on alexander-bruun-Orb's services/api/cmd router
// setup (chi.NewRouter + middleware stack, healthz/readyz shape) and its
// listenparty package's websocket hub/client pattern (upgrader, per-client
// send channel, ping-driven writePump), simplified to a single broadcast
// feed since the dashboard has no per-session concept.
//
// Events reach subscribers only through Server.Broadcast. cmd/soundwatch
// never calls it, so a soundwatch run sends no outcome events on the feed.
package dashboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 25 * time.Second
	eventBuffer  = 64
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	CheckOrigin:      func(_ *http.Request) bool { return true },
}

// Status is the snapshot served at GET /status.
type Status struct {
	QueueDepth     int       `json:"queue_depth"`
	WorkersBusy    int       `json:"workers_busy"`
	FoldersPending int       `json:"folders_pending"`
	LastScan       time.Time `json:"last_scan"`
}

// Event is one per-file outcome pushed to GET /ws/events subscribers.
type Event struct {
	Path      string    `json:"path"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusSource supplies the live values Status is built from; the caller
// (cmd/soundwatch) wires this to the monitor and worker pool.
type StatusSource interface {
	Status() Status
}

// Server is the dashboard's HTTP handler plus its broadcast hub. It is off
// by default: cmd/soundwatch only calls ListenAndServe when a dashboard
// address is configured.
type Server struct {
	mu      sync.Mutex
	source  StatusSource
	clients map[*client]bool
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New builds a Server reading live status from source.
func New(source StatusSource) *Server {
	return &Server{
		source:  source,
		clients: make(map[*client]bool),
	}
}

// Router builds the chi mux: GET /healthz, GET /status, GET /ws/events. No
// route accepts a mutating request.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Get("/status", s.status)
	r.Get("/ws/events", s.events)
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// SetSource swaps the live status source. cmd/soundwatch calls this once per
// watch root it brings up, so the dashboard always reports the most recently
// started monitor; with a single configured root (the common case) this is
// simply "the" monitor.
func (s *Server) SetSource(source StatusSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = source
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	source := s.source
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if source == nil {
		_ = json.NewEncoder(w).Encode(Status{})
		return
	}
	if err := json.NewEncoder(w).Encode(source.Status()); err != nil {
		slog.Error("encode status", "err", err)
	}
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &client{conn: conn, send: make(chan []byte, eventBuffer)}
	s.mu.Lock()
	s.clients[c] = true
	s.mu.Unlock()

	go s.writePump(c)
	s.readUntilClosed(c)
}

// readUntilClosed drains (and discards) any client messages, since this feed
// never honors client input; it exists only to detect disconnect.
func (s *Server) readUntilClosed(c *client) {
	defer s.dropClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
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

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

// Broadcast pushes ev to every connected subscriber; slow clients are
// dropped rather than allowed to block the pipeline.
func (s *Server) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			delete(s.clients, c)
			close(c.send)
		}
	}
}

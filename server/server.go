// Package server exposes the job manager over HTTP and WebSocket.
//
// Routes:
//
//	POST   /api/jobs        create a search job, returns 202 {"job_id"}
//	GET    /api/jobs        list jobs newest first (?limit=N)
//	GET    /api/jobs/{id}   job status, progress and result
//	DELETE /api/jobs/{id}   cancel, returns {"cancelled":bool}
//	GET    /api/health      liveness plus registry stats
//	GET    /ws              job updates as they happen
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/quotesearch/am"
	"github.com/teranos/quotesearch/errors"
	"github.com/teranos/quotesearch/logger"
	"github.com/teranos/quotesearch/protocol"
	"github.com/teranos/quotesearch/pulse/async"
)

const (
	// MaxClients is the maximum number of concurrent WebSocket clients
	MaxClients = 100
	// MaxClientMessageQueueSize is the size of per-client message queues
	MaxClientMessageQueueSize = 256
	// ShutdownTimeout bounds graceful shutdown, including worker interruption
	ShutdownTimeout = 30 * time.Second
)

// ServerState is the lifecycle state reported by /api/health
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

func (s ServerState) String() string {
	switch s {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// JobManager is what the HTTP surface needs from pulse/async.Manager
type JobManager interface {
	CreateJob(ctx context.Context, params protocol.Params) (string, error)
	GetJob(ctx context.Context, id string) (*async.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*async.Job, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*async.Stats, error)
	Subscribe() chan *async.Job
	Unsubscribe(ch chan *async.Job)
}

// Server serves the job API
type Server struct {
	jobs   JobManager
	logger *zap.SugaredLogger

	originsMu      sync.RWMutex
	allowedOrigins []string

	mu      sync.RWMutex
	clients map[*client]bool

	state atomic.Int32
	http  *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a server over jobs. Call Handler for tests or ListenAndServe
// to bind a port.
func New(jobs JobManager, cfg am.ServerConfig, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobs:           jobs,
		logger:         log,
		allowedOrigins: cfg.AllowedOrigins,
		clients:        make(map[*client]bool),
		ctx:            ctx,
		cancel:         cancel,
	}
	s.setState(ServerStateRunning)
	s.startJobUpdateBroadcaster()
	return s
}

// SetAllowedOrigins replaces the WebSocket origin allow-list
func (s *Server) SetAllowedOrigins(origins []string) {
	s.originsMu.Lock()
	defer s.originsMu.Unlock()
	s.allowedOrigins = origins
}

// ListenAndServe binds port and serves until Shutdown
func (s *Server) ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to listen on %s", addr),
			"another quotesearch server may be running; change server.port")
	}

	s.http = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Infow("Server listening", "addr", ln.Addr().String())

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server failed")
	}
	return nil
}

// Shutdown drains HTTP connections and stops the broadcaster
func (s *Server) Shutdown(ctx context.Context) error {
	s.setState(ServerStateDraining)
	s.cancel()

	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.wg.Wait()
	s.setState(ServerStateStopped)
	return err
}

func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Debugw("Server state changed", "new_state", state.String())
}

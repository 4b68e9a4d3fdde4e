package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// statsInterval is how often engine counters are mirrored into gauges
const statsInterval = time.Second

// Server is the HTTP API server with WebSocket support.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter

	mu         sync.Mutex
	httpServer *http.Server
	stopChan   chan struct{}
	stopOnce   sync.Once
}

// NewServer creates an API server with the production rate limits.
//
// Background workers do NOT start until Start() is called. For testing
// HTTP endpoints use Router() with httptest.
func NewServer(engine EngineInterface, renderer FrameEncoder) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(engine),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		stopChan:    make(chan struct{}),
	}

	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Renderer:    renderer,
		Hub:         s.wsHub,
		RateLimiter: s.rateLimiter,
	})

	return s
}

// Start launches the hub, the broadcast and stats loops, then serves addr.
// It blocks until Shutdown and returns nil in that case.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(DefaultBroadcastInterval)
	go s.statsLoop()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	log.Printf("🌐 API server starting on %s", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statsLoop mirrors grid and event log counters into gauges
func (s *Server) statsLoop() {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			stats := s.engine.Stats()
			UpdateGridStats(stats.Grid.OccupiedCells)
			UpdateEventLogStats(stats.EventLog)
		}
	}
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, closes WebSocket clients and stops
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopChan)

		s.mu.Lock()
		srv := s.httpServer
		s.mu.Unlock()
		if srv != nil {
			err = srv.Shutdown(ctx)
		}

		s.wsHub.Stop()
		s.rateLimiter.Stop()
	})
	return err
}

package api

import (
	"io"
	"net/http"
	"time"

	"crowd-sim/internal/game"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// EngineInterface defines the engine methods used by the API.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// GetSnapshot returns the latest lock-free immutable snapshot
	GetSnapshot() *game.WorldSnapshot
	// AddBody registers a new body
	AddBody(opts game.BodyOptions) (game.Handle, error)
	// SpawnRandom registers count bodies at random positions
	SpawnRandom(count int, kind game.Kind, radius, mass float32) ([]game.Handle, error)
	// RemoveBody deregisters a body, false if unknown
	RemoveBody(h game.Handle) bool
	// SetPlayerInput queues an axis command for the next tick
	SetPlayerInput(in game.PlayerInput) bool
	// Stats returns engine counters
	Stats() game.EngineStats
}

// FrameEncoder renders a snapshot as PNG. *render.Renderer implements it.
type FrameEncoder interface {
	EncodePNG(w io.Writer, snap *game.WorldSnapshot) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Engine: engine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000,
//	        Burst:             1000,
//	        CleanupInterval:   time.Hour,
//	    },
//	    DisableLogging: true,
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the crowd engine (required)
	Engine EngineInterface

	// Renderer serves /api/frame.png. If nil the route answers 503.
	Renderer FrameEncoder

	// Hub serves /ws. If nil the route is not mounted.
	Hub *WebSocketHub

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost origins are allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine   EngineInterface
	renderer FrameEncoder
	hub      *WebSocketHub
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// NewRouter has no side effects beyond the rate limiter's cleanup goroutine
// (none when cfg.RateLimiter is supplied): no listeners are opened and the
// hub is not started.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	h := &routerHandlers{
		engine:   cfg.Engine,
		renderer: cfg.Renderer,
		hub:      cfg.Hub,
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)

		r.Post("/bodies", h.handleAddBody)
		r.Post("/bodies/batch", h.handleBatchSpawn)
		r.Get("/bodies/{handle}", h.handleGetBody)
		r.Delete("/bodies/{handle}", h.handleRemoveBody)

		r.Post("/player/input", h.handlePlayerInput)

		r.Get("/frame.png", h.handleFrame)
	})

	if cfg.Hub != nil {
		r.Get("/ws", cfg.Hub.HandleWebSocket)
	}

	return r
}

// metricsMiddleware records latency per route pattern, never per raw URL.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

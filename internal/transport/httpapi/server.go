// Package httpapi is the operator boundary: a chi router exposing the
// motion and program commands over HTTP, plus a WebSocket endpoint
// mirroring the broadcast bus. All motion semantics live in
// internal/motion and internal/program; this package only translates
// HTTP/JSON into calls against them, following the teacher's
// chi+cors+gorilla/websocket router shape.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/sixdof/pendant/internal/auth"
	"github.com/sixdof/pendant/internal/broadcast"
	"github.com/sixdof/pendant/internal/motion"
	"github.com/sixdof/pendant/internal/posestate"
	"github.com/sixdof/pendant/internal/program"
)

// Server is the HTTP/WebSocket operator boundary.
type Server struct {
	httpServer *http.Server
	log        *logrus.Logger
}

// Config holds the listening address and timeouts for the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig mirrors the teacher's server timeout defaults.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8088",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Deps bundles the core collaborators the operator boundary calls into.
type Deps struct {
	Controller   *motion.Controller
	Engine       *program.Engine
	State        *posestate.Serializer
	Bus          *broadcast.Bus
	ProgramStore program.Store
	PoseStore    posestate.SavedPoseStore
	Issuer       *auth.Issuer
}

// NewServer builds a Server with routes wired against deps.
func NewServer(cfg Config, deps Deps, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	h := &handlers{deps: deps, log: log}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/auth/login", h.handleLogin)

	r.Route("/api/motion", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/jog/start", h.handleJogStart)
		r.Post("/jog/velocity", h.handleJogVelocity)
		r.Post("/jog/stop", h.handleJogStop)
		r.Post("/jog/increment", h.handleJogIncrement)
		r.Post("/move-j", h.handleMoveJ)
		r.Post("/move-l", h.handleMoveL)
		r.Post("/home", h.handleHome)
		r.Post("/estop", h.handleEStop)
		r.Get("/state", h.handleState)
	})

	r.Route("/api/programs", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.handleListPrograms)
		r.Post("/", h.handleCreateProgram)
		r.Get("/{id}", h.handleGetProgram)
		r.Put("/{id}", h.handleReplaceProgram)
		r.Delete("/{id}", h.handleDeleteProgram)
		r.Post("/{id}/execute", h.handleExecuteProgram)
	})

	r.Route("/api/saved-poses", func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/", h.handleListSavedPoses)
		r.Post("/", h.handleSaveCurrentPose)
		r.Delete("/{id}", h.handleDeleteSavedPose)
	})

	r.Get("/ws/events", h.handleWebSocket)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: log,
	}
}

// Handler returns the underlying router, for use in tests that want to
// drive the server through httptest without binding a real socket.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving requests; blocks until the server stops.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("httpapi: listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

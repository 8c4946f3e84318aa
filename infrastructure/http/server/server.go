// Package server exposes the session service over HTTP and websockets.
package server

import (
	"log/slog"
	"match-lab/auth"
	"match-lab/contract"
	"match-lab/domain"
	"match-lab/observability"
	"match-lab/services"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
)

const requestTimeout = 15 * time.Second

// Connections attaches live streams to the event pipeline.
type Connections interface {
	RegisterConnection(connectionID string, roomID domain.RoomID, sink contract.EventSink)
	UnregisterConnection(connectionID string, roomID domain.RoomID)
}

type Server struct {
	log                  *slog.Logger
	sessions             services.ISessionService
	identity             services.IIdentityService
	catalog              contract.ICatalog
	issuer               *auth.TokenIssuer
	connections          Connections
	upgrader             websocket.Upgrader
	allowedOrigins       []string
	publicURL            string
	connectionBufferSize int
	writeTimeout         time.Duration
}

type Option func(*Server)

// WithAllowedOrigins restricts CORS and websocket origins. Empty means any.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.allowedOrigins = origins }
}

// WithPublicURL sets the base URL encoded in join QR codes.
func WithPublicURL(url string) Option {
	return func(s *Server) { s.publicURL = url }
}

func NewServer(log *slog.Logger, sessions services.ISessionService, identity services.IIdentityService,
	catalog contract.ICatalog, issuer *auth.TokenIssuer, connections Connections,
	connectionBufferSize int, writeTimeout time.Duration, opts ...Option) *Server {
	s := &Server{
		log:                  log,
		sessions:             sessions,
		identity:             identity,
		catalog:              catalog,
		issuer:               issuer,
		connections:          connections,
		connectionBufferSize: connectionBufferSize,
		writeTimeout:         writeTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins(),
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, observability.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, http.StatusOK, "ok")
	})
	r.Handle("/metrics", observability.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.With(middleware.Timeout(requestTimeout)).Post("/session", s.startSession)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			// streams are long-lived, no request timeout
			r.Get("/rooms/{roomID}/events", s.streamEvents)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(requestTimeout))
				r.Get("/me", s.me)
				r.Post("/rooms", s.createRoom)
				r.Post("/rooms/join", s.joinRoom)
				r.Get("/rooms/code/{code}", s.findByCode)
				r.Get("/rooms/code/{code}/qr", s.joinQRCode)
				r.Get("/rooms/{roomID}", s.getRoom)
				r.Get("/rooms/{roomID}/items", s.roomItems)
				r.Get("/items/{itemID}/trailer", s.itemTrailer)
				r.Post("/rooms/{roomID}/preferences", s.submitPreference)
				r.Post("/rooms/{roomID}/resume", s.confirmResume)
				r.Post("/rooms/{roomID}/leave", s.leaveRoom)
			})
		})
	})
	return r
}

// authenticate resolves the bearer token into the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.issuer.Authenticate(r)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithParticipant(r.Context(), p)))
	})
}

func (s *Server) corsOrigins() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.allowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(s.allowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

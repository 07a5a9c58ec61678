package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/credentials"
	"github.com/cuemby/burrow/pkg/dns"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/gate"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxBodyBytes bounds an operation's argument object
const maxBodyBytes = 1 << 20

// Server exposes the Service over HTTP together with health, metrics and
// an event stream
type Server struct {
	service *Service
	broker  *events.Broker
	token   string
	router  chi.Router
	logger  zerolog.Logger

	mu   sync.Mutex
	http *http.Server
}

// NewServer creates the HTTP server. When token is non-empty every /api
// request must carry it as a bearer token. broker may be nil.
func NewServer(service *Service, broker *events.Broker, token string) *Server {
	s := &Server{
		service: service,
		broker:  broker,
		token:   token,
		logger:  log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, s.requestLogger)

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.auth)
		api.Get("/operations", s.listOperations)
		api.Get("/events", s.streamEvents)
		api.Post("/{op}", s.dispatch)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler for embedding in other servers or tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: the event stream is long-lived and refresh-all
		// can take minutes across many appliances
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	metrics.RegisterComponent("api", true, "listening on "+addr)
	s.logger.Info().Str("addr", addr).Msg("API listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		metrics.UpdateComponent("api", false, err.Error())
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	metrics.UpdateComponent("api", false, "shutting down")
	return srv.Shutdown(ctx)
}

// Response is the envelope of every operation answer
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "failed to read request body"})
		return
	}
	if len(body) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, Response{Error: "request body too large"})
		return
	}

	result, err := s.service.Dispatch(r.Context(), op, body)
	if err != nil {
		writeJSON(w, statusFor(err), Response{Error: Message(err)})
		return
	}
	writeJSON(w, http.StatusOK, Response{OK: true, Data: result})
}

func (s *Server) listOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{OK: true, Data: s.service.Operations()})
}

// statusFor maps an operation error to an HTTP status
func statusFor(err error) int {
	var httpErr *client.HTTPError
	switch {
	case errors.Is(err, ErrUnknownOperation), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArguments), errors.Is(err, credentials.ErrValidation),
		errors.Is(err, dns.ErrUnsupportedType), errors.Is(err, dns.ErrNoAddress):
		return http.StatusBadRequest
	case errors.Is(err, gate.ErrTimedOut):
		return http.StatusGatewayTimeout
	case errors.As(err, &httpErr), errors.Is(err, client.ErrNetwork), errors.Is(err, client.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// auth enforces the bearer token when one is configured
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			// EventSource cannot set headers
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, Response{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

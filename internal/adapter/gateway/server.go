package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"solmate/internal/adapter/cache"
	"solmate/internal/domain"
	"solmate/internal/usecase"
)

// ChatService is the orchestration surface the HTTP gateway exposes.
type ChatService interface {
	Process(ctx context.Context, message string, convCtx domain.ConversationContext, opts domain.GenerateOptions) (*domain.ShapedResponse, error)
	ProcessStream(ctx context.Context, message string, convCtx domain.ConversationContext, opts domain.GenerateOptions) (<-chan domain.StreamEvent, domain.ConversationContext, error)
	Providers() []domain.ProviderProfile
	Models(provider string) []string
}

// StatsSource exposes cache state for the metrics endpoint.
type StatsSource interface {
	Stats() cache.Stats
	Enabled() bool
}

// HandlerDeps holds everything the HTTP handlers need.
type HandlerDeps struct {
	Chat    ChatService
	Metrics *usecase.Metrics
	Cache   StatsSource // can be nil
	Logger  *slog.Logger
}

// Server is the HTTP gateway: chat endpoints, provider listing, health, and
// metrics.
type Server struct {
	deps      HandlerDeps
	addr      string
	httpSrv   *http.Server
	boundAddr string
	startTime time.Time
}

// NewServer creates a gateway server.
func NewServer(deps HandlerDeps, addr string) *Server {
	return &Server{
		deps:      deps,
		addr:      addr,
		startTime: time.Now(),
	}
}

// Start begins serving HTTP. Blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.withRequestID(s.handleChat))
	mux.HandleFunc("POST /api/chat/stream", s.withRequestID(s.handleChatStream))
	mux.HandleFunc("GET /api/providers", s.withRequestID(s.handleProviders))
	mux.HandleFunc("GET /api/providers/{id}/models", s.withRequestID(s.handleModels))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /metrics", metricsHandler(s.deps, s.startTime))

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.deps.Logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after
// Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// withRequestID stamps each request with a ULID, echoed in the X-Request-ID
// response header and carried in handler logs.
func (s *Server) withRequestID(next func(http.ResponseWriter, *http.Request, *slog.Logger)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", id)

		logger := s.deps.Logger.With("request_id", id)
		next(w, r, logger)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"status":"ok"}`)
}

package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rbtchain/core"
	"rbtchain/services/indexer"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20
	txSeenTTL              = 15 * time.Minute
	shutdownTimeout        = 5 * time.Second
	requestIDHeader        = "X-Request-Id"
)

// ServerConfig tunes the HTTP surface of the node.
type ServerConfig struct {
	RequestsPerMinute float64
	Burst             int
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	Logger            *slog.Logger
}

// Server exposes the marketplace over JSON-RPC.
type Server struct {
	exec    *core.Executor
	indexer *indexer.Indexer
	cfg     ServerConfig
	logger  *slog.Logger
	limiter *rateLimiter

	mu     sync.Mutex
	txSeen map[string]time.Time
	nowFn  func() time.Time

	serverMu   sync.Mutex
	httpServer *http.Server
}

// NewServer builds a server around exec. idx may be nil, in which case the
// listing methods report the indexer as unavailable.
func NewServer(exec *core.Executor, idx *indexer.Indexer, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		exec:    exec,
		indexer: idx,
		cfg:     cfg,
		logger:  logger,
		limiter: newRateLimiter(cfg.RequestsPerMinute, cfg.Burst),
		txSeen:  make(map[string]time.Time),
		nowFn:   time.Now,
	}
}

// Handler returns the routed and instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(s.limiter.middleware).Post("/", s.handle)

	return otelhttp.NewHandler(r, "rbtchain.rpc")
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// Serve accepts connections on listener until ctx is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return fmt.Errorf("rpc: listener required")
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("rpc shutdown", "error", err)
		}
	}()

	s.logger.Info("json-rpc server listening", "addr", listener.Addr().String())
	err := srv.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ListenAndServe is Serve over a fresh TCP listener on addr.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// rememberTx records hash and reports whether it was not seen within
// txSeenTTL.
func (s *Server) rememberTx(hash string) bool {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, seenAt := range s.txSeen {
		if now.Sub(seenAt) > txSeenTTL {
			delete(s.txSeen, h)
		}
	}
	if _, exists := s.txSeen[hash]; exists {
		return false
	}
	s.txSeen[hash] = now
	return true
}

func (s *Server) forgetTx(hash string) {
	s.mu.Lock()
	delete(s.txSeen, hash)
	s.mu.Unlock()
}

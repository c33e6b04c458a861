// internal/collector/server.go
package collector

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalnine/rowdelta/internal/config"
	"github.com/signalnine/rowdelta/internal/logging"
)

// Server is the central collector
type Server struct {
	cfg    *config.CollectorConfig
	db     *DB
	log    logging.Logger
	server *http.Server
}

// NewServer creates a new collector server
func NewServer(cfg *config.CollectorConfig, logger logging.Logger) (*Server, error) {
	db, err := NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	handler, err := NewIngestHandler(db, cfg.APIKey, cfg.MaxPayloadBytes, cfg.DedupCacheSize, metrics, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create handler: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/ingest", handler)
	mux.Handle("/ingest/events", handler.Events())
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		cfg:    cfg,
		db:     db,
		log:    logger,
		server: server,
	}, nil
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// DB returns the store the server writes to
func (s *Server) DB() *DB {
	return s.db
}

// Run listens on the configured address and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done. TLS is used when a
// certificate is configured.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.db.Close()

	tlsOn := s.cfg.TLSCert != ""
	if tlsOn {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			return fmt.Errorf("load TLS cert: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	s.log.Info("Collector starting", "addr", ln.Addr().String(), "tls", tlsOn)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tlsOn {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.log.Info("Collector shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// Package web exposes the valuation engine over JSON HTTP.
package web

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/vadiminshakov/gainboard/internal/domain"
	"github.com/vadiminshakov/gainboard/internal/services/gain"
)

type leaderboardReader interface {
	LeaderboardJSON(ctx context.Context, window domain.Window, forceRefresh bool) ([]byte, error)
	Invalidate(ctx context.Context) error
}

type portfolioReader interface {
	PortfolioValuation(ctx context.Context, userID int64) (gain.Valuation, error)
	Snapshots(ctx context.Context, userID int64) ([]domain.PortfolioSnapshot, error)
}

type priceHistoryReader interface {
	PriceHistory(ctx context.Context, symbol string, date time.Time) (domain.PricePoint, error)
}

type snapshotFeed interface {
	SnapshotsAfter(index uint64) ([]domain.PortfolioSnapshotRecord, error)
}

// Deps services the server reads from. Feed and Metrics are optional.
type Deps struct {
	Leaderboard leaderboardReader
	Portfolios  portfolioReader
	Prices      priceHistoryReader
	Feed        snapshotFeed
	Metrics     http.Handler
}

// Server exposes HTTP endpoints serving JSON and an SSE snapshot stream.
type Server struct {
	Addr string
	deps Deps
	l    *zap.Logger
}

// NewServer creates a new web server instance.
func NewServer(addr string, deps Deps, l *zap.Logger) *Server {
	return &Server{Addr: addr, deps: deps, l: l}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("DELETE /leaderboard", s.handleLeaderboardInvalidate)
	mux.HandleFunc("GET /portfolio/{userID}", s.handlePortfolio)
	mux.HandleFunc("GET /portfolio/{userID}/snapshots", s.handleSnapshots)
	mux.HandleFunc("GET /snapshots/stream", s.handleSnapshotStream)
	mux.HandleFunc("GET /price/{symbol}/history", s.handlePriceHistory)
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics)
	}
	return gzipJSON(mux)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.l.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve http")
	}
	return nil
}

// StartWithAutoTLS runs an HTTPS server with automatic TLS certificates via ACME.
// It also starts an HTTP server on port 80 to handle ACME HTTP-01 challenges.
func (s *Server) StartWithAutoTLS(ctx context.Context, domains []string, cacheDir string) error {
	if len(domains) == 0 {
		return errors.New("no domains provided for automatic TLS")
	}
	if cacheDir == "" {
		cacheDir = "cert-cache"
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(domains...),
		Cache:      autocert.DirCache(cacheDir),
	}

	httpSrv := &http.Server{
		Addr:              ":80",
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	httpsSrv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
		TLSConfig:         tlsConfig,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("http (acme) server shutdown error", zap.Error(err))
		}
		if err := httpsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Warn("https server shutdown error", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http (acme) server error", zap.Error(err))
		}
	}()

	s.l.Info("https server listening", zap.String("addr", s.Addr), zap.Strings("domains", domains))
	if err := httpsSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve https")
	}
	return nil
}

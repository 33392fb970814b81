// Package app assembles the service: storage gateway, feed ingestion and
// the HTTP API, run side by side until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/EarthNatchanon/Topgun2/internal/config"
	apperrors "github.com/EarthNatchanon/Topgun2/internal/errors"
	"github.com/EarthNatchanon/Topgun2/internal/httpserver"
	"github.com/EarthNatchanon/Topgun2/internal/ingest"
	"github.com/EarthNatchanon/Topgun2/internal/logging"
	"github.com/EarthNatchanon/Topgun2/internal/metrics"
	"github.com/EarthNatchanon/Topgun2/internal/store"
)

// Run connects to Postgres, prepares the schema and serves until ctx is
// done. A schema failure is fatal and returned before anything starts.
func Run(ctx context.Context, cfg config.Config) error {
	m := metrics.New(prometheus.NewRegistry())

	st, err := store.NewPostgresStore(ctx, cfg.DBURL, cfg.DBMaxConns, m)
	if err != nil {
		return apperrors.Wrap(err, "connecting to database")
	}
	defer st.Close()

	if err := st.Initialize(ctx); err != nil {
		return apperrors.Wrap(err, "initializing schema")
	}

	dialer := ingest.WebsocketDialer{
		ReadLimit:        cfg.Feed.ReadLimit,
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
	}
	return serve(ctx, cfg, st, dialer, m)
}

// serve runs the ingestion client and the HTTP server until ctx is done
// or one of them fails, then shuts the server down gracefully.
func serve(ctx context.Context, cfg config.Config, st httpserver.Backend, dialer ingest.Dialer, m *metrics.Metrics) error {
	log := logging.Component("app")

	client := ingest.NewClient(ingest.Config{
		URL:            cfg.Feed.URL,
		Token:          cfg.Feed.Token,
		InitialBackoff: cfg.Feed.InitialBackoff,
		MaxBackoff:     cfg.Feed.MaxBackoff,
		WriteTimeout:   cfg.Feed.WriteTimeout,
	}, dialer, st, m)

	router := httpserver.NewRouter(cfg, st, func() string { return client.State().String() }, m)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return client.Run(gctx)
	})

	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down http server")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}

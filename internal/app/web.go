package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"padron/internal/config"
	"padron/internal/httpapi"
	logx "padron/pkg/logx"
	"padron/pkg/systemd"
)

const shutdownTimeout = 10 * time.Second

// RunWeb serves the HTTP API until ctx is canceled.
func RunWeb(ctx context.Context, opt Options) error {
	rt, err := bootstrap(ctx, opt, config.Config.ValidateWeb, false)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.startPprof(ctx)

	api := httpapi.New(httpapi.Options{
		Searcher:    rt.search,
		Pinger:      rt.store,
		ImageRoot:   rt.cfg.ImageBasePath,
		CORSOrigins: rt.cfg.HTTP.CORSOrigins,
		Metrics:     rt.metrics,
		Gatherer:    rt.registry,
		Logger:      rt.log,
	})
	srv := &http.Server{
		Addr:              rt.cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      rt.cfg.QueryTimeout + 15*time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return serve(ctx, rt.log, srv, ln)
}

// serve runs srv on ln and shuts it down gracefully when ctx ends.
func serve(ctx context.Context, log logx.Logger, srv *http.Server, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", logx.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		_, _ = systemd.Stopping()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("http server shutting down")
		return srv.Shutdown(sctx)
	})

	if sent, err := systemd.Ready(); err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		log.Debug("systemd notified ready")
	}
	return g.Wait()
}

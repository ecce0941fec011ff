// Package app wires configuration, logging, storage and the front ends
// into the two runnable processes.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"padron/internal/config"
	"padron/internal/metrics"
	"padron/internal/observability/pprof"
	"padron/internal/search"
	"padron/internal/storage"
	logx "padron/pkg/logx"
)

// Options are process-level inputs that do not come from the environment.
type Options struct {
	// DotEnv lists .env files to load before parsing; missing files are skipped.
	DotEnv []string
}

// runtime is what both processes share once bootstrapped.
type runtime struct {
	cfg  config.Config
	log  logx.Logger
	logs *logx.Service

	store    *storage.Store
	search   *search.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// bootstrap loads and validates config, starts logging and opens the
// databases. withAudit opens the audit database as well.
func bootstrap(ctx context.Context, opt Options, validate func(config.Config) error, withAudit bool) (*runtime, error) {
	cfg, err := config.Load(opt.DotEnv...)
	if err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	schema, err := config.LoadSchema(cfg.SchemaFile)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram,
			MinLevel:   "warn",
			RatePerSec: 1,
		},
		Redact: []string{cfg.Telegram.Token, cfg.DB.Password, cfg.AuditDB.Password, cfg.Pprof.Token},
	})

	rt := &runtime{cfg: cfg, log: log.With(logx.String("comp", "app")), logs: logs}
	ok := false
	defer func() {
		if !ok {
			rt.close()
		}
	}()

	storeLog := log.With(logx.String("comp", "storage"))
	primary, err := storage.Open(ctx, cfg.DB.Storage(cfg.MaxOpenConns), storeLog)
	if err != nil {
		return nil, fmt.Errorf("primary database: %w", err)
	}

	var audit storage.Handle
	switch {
	case !withAudit:
	case cfg.SharedAudit():
		audit = primary
	default:
		audit, err = storage.Open(ctx, cfg.AuditDB.Storage(cfg.MaxOpenConns), storeLog.With(logx.String("db", "audit")))
		if err != nil {
			_ = primary.DB.Close()
			return nil, fmt.Errorf("audit database: %w", err)
		}
	}

	st, err := storage.New(primary, audit, storage.Options{
		Schema:       schema,
		AuthTable:    cfg.AuthTable,
		AuditTable:   cfg.AuditTable,
		QueryTimeout: cfg.QueryTimeout,
	}, storeLog)
	if err != nil {
		_ = primary.DB.Close()
		if audit.DB != nil && audit.DB != primary.DB {
			_ = audit.DB.Close()
		}
		return nil, err
	}
	rt.store = st

	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = metrics.New(rt.registry)
	rt.search = search.New(st, cfg.ImageBasePath, rt.metrics, log)

	if cfg.ImageBasePath == "" {
		rt.log.Warn("IMAGE_BASE_PATH not set; image lookup disabled")
	}
	ok = true
	return rt, nil
}

// startPprof runs the profiling listener in the background when configured.
func (rt *runtime) startPprof(ctx context.Context) {
	pc := rt.cfg.Pprof.Config()
	if !pc.Enabled() {
		return
	}
	go func() {
		if err := pprof.Serve(ctx, pc, rt.log); err != nil {
			rt.log.Warn("pprof stopped", logx.Err(err))
		}
	}()
}

func (rt *runtime) close() error {
	var errs []error
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	if rt.logs != nil {
		errs = append(errs, rt.logs.Close())
	}
	return errors.Join(errs...)
}

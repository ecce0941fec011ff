package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	logx "padron/pkg/logx"
)

// Handle is an opened database together with its driver name.
type Handle struct {
	DB     *sql.DB
	Driver string
}

// Open opens and pings one logical database.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Handle, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return Handle{}, err
	}
	dsn, err := d.dsn(cfg)
	if err != nil {
		return Handle{}, err
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return Handle{}, fmt.Errorf("open database: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 || maxIdle > maxOpen {
		maxIdle = min(2, maxOpen)
	}
	lifetime := cfg.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return Handle{}, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database opened",
		logx.String("driver", d.driverName()),
		logx.String("host", cfg.Host),
		logx.Int("port", cfg.Port),
		logx.String("database", cfg.Database),
	)
	return Handle{DB: db, Driver: cfg.Driver}, nil
}

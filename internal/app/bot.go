package app

import (
	"context"
	"fmt"
	"time"

	"padron/internal/bot"
	"padron/internal/config"
	kit "padron/internal/transport"
	telegram "padron/internal/transport/telegram/adapter"
	"padron/internal/transport/telegram/router"
	logx "padron/pkg/logx"
	"padron/pkg/systemd"
)

const (
	updateBuffer   = 256
	handlerTimeout = 60 * time.Second
)

// RunBot long-polls Telegram until ctx is canceled.
func RunBot(ctx context.Context, opt Options) error {
	rt, err := bootstrap(ctx, opt, config.Config.ValidateBot, true)
	if err != nil {
		return err
	}
	defer rt.close()
	rt.startPprof(ctx)

	if err := rt.store.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize control tables: %w", err)
	}
	rt.log.Info("control tables ready",
		logx.String("auth_table", rt.cfg.AuthTable),
		logx.String("audit_table", rt.cfg.AuditTable),
		logx.Bool("shared_audit", rt.cfg.SharedAudit()),
	)

	tg := rt.cfg.Telegram
	ad, err := telegram.New(telegram.Config{
		Token:       tg.Token,
		PollTimeout: tg.PollTimeout,
		RatePerSec:  tg.RatePerSec,
	}, rt.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if rt.cfg.Logging.Telegram {
		rt.logs.AttachTelegram(ad, tg.AdminID)
	}

	b := bot.New(bot.Options{
		Store:      rt.store,
		Searcher:   rt.search,
		AdminID:    tg.AdminID,
		PageSize:   tg.PageSize,
		MaxResults: tg.MaxResults,
		Metrics:    rt.metrics,
		Logger:     rt.log,
	})
	r := router.New(rt.log, ad, tg.AdminID, handlerTimeout, router.Messages{})
	r.SetRegistry(b.Commands(), b.Callbacks())

	return runBot(ctx, rt.log, ad, r)
}

func runBot(ctx context.Context, log logx.Logger, ad kit.Adapter, r *router.Router) error {
	updates := make(chan kit.Update, updateBuffer)
	if err := ad.Start(ctx, updates); err != nil {
		return fmt.Errorf("start polling: %w", err)
	}
	defer func() {
		_, _ = systemd.Stopping()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ad.Stop(sctx); err != nil {
			log.Warn("adapter stop", logx.Err(err))
		}
	}()

	if err := r.PublishMenu(ctx); err != nil {
		log.Warn("could not publish command menu", logx.Err(err))
	}
	if _, err := systemd.Ready(); err != nil {
		log.Warn("systemd notify failed", logx.Err(err))
	}
	log.Info("bot listening")
	return r.DispatchLoop(ctx, updates)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "padron/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// slowHandler is the duration above which successful handlers log at info.
const slowHandler = time.Second

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// withDeadline bounds a handler, including the database query it runs.
func withDeadline(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

// recoverPanics turns a handler panic into an error so one bad update
// cannot stop the dispatch loop.
func recoverPanics() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				req.Logger.Error("handler panic",
					logx.Any("panic", p),
					logx.Stack(string(debug.Stack())),
				)
				err = fmt.Errorf("handler %s panicked: %v", req.Command, p)
			}()
			return next(ctx, req)
		}
	}
}

func logOutcome() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			took := time.Since(start)

			log := req.Logger.With(logx.Duration("took", took))
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				log.Warn("handler timed out", logx.Err(err))
			case err != nil:
				log.Warn("handler failed", logx.Err(err))
			case took >= slowHandler:
				log.Info("handler done")
			default:
				log.Debug("handler done")
			}
			return err
		}
	}
}

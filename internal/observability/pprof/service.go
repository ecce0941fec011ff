// Package pprof serves net/http/pprof on a separate, opt-in listener.
package pprof

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	logx "padron/pkg/logx"
)

// ErrInsecureBind is returned when a non-loopback address is configured
// without a token.
var ErrInsecureBind = errors.New("pprof: non-loopback address requires a token")

type Config struct {
	// Addr is host:port. Empty disables the server.
	Addr string
	// Token, when set, is required as "Authorization: Bearer <token>" or ?token=.
	Token string
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.Addr) != "" }

// Validate rejects public binds without a token.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("pprof: invalid address %q: %w", c.Addr, err)
	}
	if strings.TrimSpace(c.Token) == "" && !isLoopbackAddr(c.Addr) {
		return ErrInsecureBind
	}
	return nil
}

// Handler returns the pprof mux rooted at /debug/pprof/.
func Handler(token string) http.Handler {
	mux := http.NewServeMux()
	wrap := func(h http.HandlerFunc) http.Handler { return withAuth(token, h) }
	mux.Handle("/debug/pprof/", wrap(hpprof.Index))
	mux.Handle("/debug/pprof/cmdline", wrap(hpprof.Cmdline))
	mux.Handle("/debug/pprof/profile", wrap(hpprof.Profile))
	mux.Handle("/debug/pprof/symbol", wrap(hpprof.Symbol))
	mux.Handle("/debug/pprof/trace", wrap(hpprof.Trace))
	return mux
}

// Serve runs the pprof server until ctx is done. It returns nil when the
// config is disabled.
func Serve(ctx context.Context, cfg Config, log logx.Logger) error {
	if !cfg.Enabled() {
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("pprof listen %s: %w", cfg.Addr, err)
	}
	return serve(ctx, ln, cfg.Token, log.With(logx.String("comp", "pprof")))
}

func serve(ctx context.Context, ln net.Listener, token string, log logx.Logger) error {
	srv := &http.Server{
		Handler:           Handler(token),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       time.Minute,
		// profile and trace stream for their requested duration.
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info("pprof listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("token_set", token != ""),
	)
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("pprof serve: %w", err)
	}
	return nil
}

func withAuth(token string, h http.HandlerFunc) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.URL.Query().Get("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(tok)) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	})
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

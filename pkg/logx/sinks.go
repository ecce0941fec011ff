package logx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "padron/internal/transport"
)

type Config struct {
	Level string
	// File appends JSON lines to this path when set.
	File     string
	Telegram TelegramConfig
	// Redact lists values masked in every sink, such as the bot token or
	// database passwords. Values shorter than 4 bytes are ignored.
	Redact []string
}

type TelegramConfig struct {
	Enabled    bool
	MinLevel   string
	RatePerSec int
}

const (
	redactedMark   = "***"
	tgQueueSize    = 256
	minSecretBytes = 4
)

// Service owns the sinks behind the root Logger. The Telegram sink drops
// records until AttachTelegram is called.
type Service struct {
	mu     sync.Mutex
	file   *os.File
	chatID int64
	stop   context.CancelFunc
	done   chan struct{}

	tgMin   Level
	tgLimit *rate.Limiter
	tgQueue chan string
}

// New builds the sinks and returns them with the root Logger.
func New(cfg Config) (*Service, Logger) {
	return newService(cfg, os.Stdout)
}

func newService(cfg Config, console io.Writer) (*Service, Logger) {
	configureZerolog()

	burst := max(1, cfg.Telegram.RatePerSec)
	s := &Service{
		tgMin:   parseLevel(cfg.Telegram.MinLevel, LevelWarn),
		tgLimit: rate.NewLimiter(rate.Limit(burst), burst),
		tgQueue: make(chan string, tgQueueSize),
	}

	sinks := []io.Writer{zerolog.ConsoleWriter{Out: console, TimeFormat: timeFormat}}
	if path := strings.TrimSpace(cfg.File); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	if cfg.Telegram.Enabled {
		sinks = append(sinks, telegramSink{s})
	}

	var out zerolog.LevelWriter = zerolog.MultiLevelWriter(sinks...)
	if r := newRedactor(out, cfg.Redact); r != nil {
		out = r
	}
	zl := zerolog.New(out).Level(parseLevel(cfg.Level, LevelInfo)).With().Timestamp().Logger()
	return s, Logger{zl: &zl}
}

// AttachTelegram starts delivering records at or above the Telegram
// minimum level to chatID. Only the first call has an effect.
func (s *Service) AttachTelegram(sender kit.Adapter, chatID int64) {
	if sender == nil || chatID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.chatID = chatID
	s.stop = cancel
	s.done = make(chan struct{})
	go s.deliver(ctx, sender, kit.ChatTarget{ChatID: chatID})
}

// Close stops Telegram delivery and closes the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	stop, done, f := s.stop, s.done, s.file
	s.stop, s.file, s.chatID = nil, nil, 0
	s.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if f == nil {
		return nil
	}
	return f.Close()
}

// redactor masks secrets before any sink sees the record.
type redactor struct {
	next    zerolog.LevelWriter
	secrets [][]byte
}

func newRedactor(next zerolog.LevelWriter, secrets []string) *redactor {
	r := &redactor{next: next}
	for _, v := range secrets {
		if len(v) >= minSecretBytes {
			r.secrets = append(r.secrets, []byte(v))
		}
	}
	if len(r.secrets) == 0 {
		return nil
	}
	return r
}

func (r *redactor) Write(p []byte) (int, error) {
	return r.WriteLevel(zerolog.NoLevel, p)
}

func (r *redactor) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	masked := p
	for _, sec := range r.secrets {
		if bytes.Contains(masked, sec) {
			masked = bytes.ReplaceAll(masked, sec, []byte(redactedMark))
		}
	}
	if _, err := r.next.WriteLevel(level, masked); err != nil {
		return 0, err
	}
	return len(p), nil
}

package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	kit "padron/internal/transport"
)

const (
	tgMaxMessage = 3500
	tgMaxValue   = 600
	tgMaxStack   = 900
	tgSendWait   = 10 * time.Second
)

// telegramSink enqueues records for the admin chat. It never blocks the
// caller: records are dropped when rate limited or the queue is full.
type telegramSink struct{ s *Service }

func (t telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(LevelInfo, p)
}

func (t telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := t.s
	s.mu.Lock()
	attached := s.chatID != 0
	s.mu.Unlock()
	if !attached || level < s.tgMin || !s.tgLimit.Allow() {
		return len(p), nil
	}
	if msg := formatTelegramJSON(p); msg != "" {
		select {
		case s.tgQueue <- msg:
		default:
		}
	}
	return len(p), nil
}

func (s *Service) deliver(ctx context.Context, sender kit.Adapter, to kit.ChatTarget) {
	defer close(s.done)
	opt := &kit.SendOptions{DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.tgQueue:
			sctx, cancel := context.WithTimeout(ctx, tgSendWait)
			_, _ = sender.SendText(sctx, to, msg, opt)
			cancel()
		}
	}
}

// formatTelegramJSON renders one JSON record as
//
//	[LEVEL] message
//	- key=value
//
// with keys sorted. Input that is not JSON is sent as is.
func formatTelegramJSON(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var rec map[string]any
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return clip(raw, tgMaxMessage)
	}

	var b strings.Builder
	if lvl, _ := rec["level"].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := rec["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if k != "time" && k != "level" && k != "message" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		limit := tgMaxValue
		if k == "stack" {
			limit = tgMaxStack
		}
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(rec[k]), limit))
	}
	return clip(b.String(), tgMaxMessage)
}

func clip(s string, n int) string {
	switch {
	case len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	}
	return s[:n-3] + "..."
}

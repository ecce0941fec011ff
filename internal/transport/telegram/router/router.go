// Package router dispatches bot updates to command and callback handlers.
package router

import (
	"context"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	kit "padron/internal/transport"
	logx "padron/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routed but left out of the menu and help.
	Hidden bool

	Timeout time.Duration
	// Middleware wraps only this command, inside the router's own chain.
	Middleware []Middleware
	Handle     HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute matches callback data of the form "<Prefix><payload>".
type CallbackRoute struct {
	Prefix  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update kit.Update
	Chat   kit.ChatTarget
	From   kit.User

	Command string   // command name, or "cb:<prefix>"
	Args    []string // tokenized arguments
	ArgText string   // raw text after the command word
	Payload string   // callback payload
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request's chat.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, opt)
}

// Messages the router itself sends.
type Messages struct {
	Unknown   string
	Forbidden string
}

type Router struct {
	mu        sync.RWMutex
	commands  map[string]*Command
	callbacks []CallbackRoute
	listed    []Command

	adminID int64
	msgs    Messages

	log     logx.Logger
	adapter kit.Adapter
	timeout time.Duration
}

// New builds a router. adminID gates AccessAdminOnly routes. timeout is the
// default per-update handler timeout (0 disables it).
func New(log logx.Logger, adapter kit.Adapter, adminID int64, timeout time.Duration, msgs Messages) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if msgs.Unknown == "" {
		msgs.Unknown = "Comando no reconocido. Usa /help para ver los comandos disponibles."
	}
	if msgs.Forbidden == "" {
		msgs.Forbidden = "No tienes permiso para usar este comando."
	}
	return &Router{
		commands: map[string]*Command{},
		adminID:  adminID,
		msgs:     msgs,
		log:      log.With(logx.String("comp", "telegram.router")),
		adapter:  adapter,
		timeout:  timeout,
	}
}

// SetRegistry replaces the command and callback tables.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	table := map[string]*Command{}
	listed := make([]Command, 0, len(cmds))
	for i := range cmds {
		c := cmds[i]
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		table[name] = &c
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				if _, exists := table[a]; !exists {
					table[a] = &c
				}
			}
		}
		if !c.Hidden {
			listed = append(listed, c)
		}
	}
	sort.SliceStable(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	routes := make([]CallbackRoute, 0, len(cbs))
	for _, cb := range cbs {
		if strings.TrimSpace(cb.Prefix) == "" || cb.Handle == nil {
			continue
		}
		routes = append(routes, cb)
	}
	// Longest prefix wins.
	sort.SliceStable(routes, func(i, j int) bool { return len(routes[i].Prefix) > len(routes[j].Prefix) })

	r.mu.Lock()
	r.commands = table
	r.callbacks = routes
	r.listed = listed
	r.mu.Unlock()
}

// Commands returns the visible commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Command(nil), r.listed...)
}

// IsAdmin reports whether id is the configured admin.
func (r *Router) IsAdmin(id int64) bool { return r.adminID != 0 && id == r.adminID }

// PublishMenu pushes the visible, non-admin commands to the platform menu
// when the adapter supports it.
func (r *Router) PublishMenu(ctx context.Context) error {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	var menu []kit.BotCommand
	for _, c := range r.Commands() {
		if c.Access == AccessAdminOnly {
			continue
		}
		menu = append(menu, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return up.UpdateMenuCommands(ctx, menu)
}

// DispatchLoop handles updates one at a time until ctx is done or updates
// is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("dispatcher started")
	defer r.log.Info("dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.safeHandle(ctx, up)
		}
	}
}

// safeHandle keeps the loop alive if anything outside the middleware chain panics.
func (r *Router) safeHandle(ctx context.Context, up kit.Update) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in dispatcher", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	r.Handle(ctx, up)
}

// Handle routes a single update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

// parseCommand splits "/cmd@bot a b" into the command word and the rest.
func parseCommand(text string) (word, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	word, rest, _ = strings.Cut(text[1:], " ")
	if i := strings.IndexAny(word, "\n\t"); i >= 0 {
		rest = word[i+1:] + " " + rest
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word), strings.TrimSpace(rest), word != ""
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, rest, ok := parseCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID}

	r.mu.RLock()
	cmd := r.commands[word]
	r.mu.RUnlock()
	if cmd == nil {
		_, _ = r.adapter.SendText(ctx, chat, r.msgs.Unknown, nil)
		return
	}
	if cmd.Access == AccessAdminOnly && !r.IsAdmin(msg.From.ID) {
		_, _ = r.adapter.SendText(ctx, chat, r.msgs.Forbidden, nil)
		return
	}

	req := r.newRequest(up, chat, msg.From, cmd.Name)
	req.Args = tokenizeCommandLine(rest)
	req.ArgText = rest

	h := Chain(cmd.Handle, cmd.Middleware...)
	r.run(ctx, req, h, cmd.Timeout)
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	r.mu.RLock()
	routes := r.callbacks
	r.mu.RUnlock()

	var route *CallbackRoute
	for i := range routes {
		if strings.HasPrefix(cb.Data, routes[i].Prefix) {
			route = &routes[i]
			break
		}
	}
	if route == nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if route.Access == AccessAdminOnly && !r.IsAdmin(cb.From.ID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, r.msgs.Forbidden)
		return
	}

	payload := strings.TrimPrefix(cb.Data, route.Prefix)
	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID}, cb.From, "cb:"+route.Prefix)
	req.Payload = payload

	handle := route.Handle
	h := func(ctx context.Context, req *Request) error { return handle(ctx, req, payload) }
	r.run(ctx, req, h, route.Timeout)
	// Stop the client's loading indicator.
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from kit.User, command string) *Request {
	rid := uuid.NewString()
	return &Request{
		Update:  up,
		Chat:    chat,
		From:    from,
		Command: command,
		ReqID:   rid,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from.ID),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) run(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration) {
	if timeout <= 0 {
		timeout = r.timeout
	}
	final := Chain(h,
		recoverPanics(),
		logOutcome(),
		withDeadline(timeout),
	)
	_ = final(ctx, req)
}

// Package bot implements the Telegram front end: the access gate, admin
// approval flow and search commands. Transport and routing live in
// internal/transport.
package bot

import (
	"context"

	"padron/internal/metrics"
	"padron/internal/search"
	"padron/internal/storage"
	"padron/internal/transport/telegram/router"
	logx "padron/pkg/logx"
)

const (
	DefaultPageSize   = 5
	DefaultMaxResults = 25

	channelBot = "bot"
)

// Store is the subset of storage.Store the bot needs.
type Store interface {
	IsAuthorized(ctx context.Context, chatID int64) (bool, error)
	ListAuthorized(ctx context.Context) (map[int64]struct{}, error)
	AddAuthorized(ctx context.Context, chatID, addedBy int64) (bool, error)
	RemoveAuthorized(ctx context.Context, chatID int64) (bool, error)
	LogSearch(ctx context.Context, e storage.SearchLogEntry) error
}

type Searcher interface {
	Search(ctx context.Context, channel string, c storage.Criteria) ([]search.Result, error)
}

type Options struct {
	Store    Store
	Searcher Searcher
	AdminID  int64

	// PageSize is the number of result cards per message.
	PageSize int
	// MaxResults caps the cards sent for one search.
	MaxResults int

	Metrics *metrics.Metrics
	Logger  logx.Logger
}

type Bot struct {
	store    Store
	searcher Searcher
	adminID  int64

	pageSize   int
	maxResults int

	metrics *metrics.Metrics
	log     logx.Logger
}

func New(opt Options) *Bot {
	log := opt.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	b := &Bot{
		store:      opt.Store,
		searcher:   opt.Searcher,
		adminID:    opt.AdminID,
		pageSize:   opt.PageSize,
		maxResults: opt.MaxResults,
		metrics:    opt.Metrics,
		log:        log.With(logx.String("comp", "bot")),
	}
	if b.pageSize <= 0 {
		b.pageSize = DefaultPageSize
	}
	if b.maxResults <= 0 {
		b.maxResults = DefaultMaxResults
	}
	return b
}

func (b *Bot) isAdmin(id int64) bool { return b.adminID != 0 && id == b.adminID }

// Commands returns the bot's command table.
func (b *Bot) Commands() []router.Command {
	gate := b.RequireAuthorized()
	count := b.countUpdates()
	gated := []router.Middleware{count, gate}

	return []router.Command{
		{
			Name:        "start",
			Description: "Iniciar el bot",
			Middleware:  gated,
			Handle:      b.handleStart,
		},
		{
			Name:        "help",
			Aliases:     []string{"ayuda"},
			Description: "Mostrar la ayuda",
			Middleware:  gated,
			Handle:      b.handleHelp,
		},
		{
			Name:        "buscar",
			Description: "Búsqueda por varios campos",
			Usage:       "/buscar campo=valor [campo=valor ...]",
			Middleware:  gated,
			Handle:      b.handleBuscar,
		},
		{
			Name:        "dui",
			Description: "Buscar por número de DUI",
			Usage:       "/dui <número>",
			Middleware:  gated,
			Handle:      b.singleField("dui", storage.AttrDUI),
		},
		{
			Name:        "nombre",
			Description: "Buscar por nombre",
			Usage:       "/nombre <texto>",
			Middleware:  gated,
			Handle:      b.singleField("nombre", storage.AttrNombres),
		},
		{
			Name:        "placa",
			Description: "Buscar por placa de vehículo",
			Usage:       "/placa <placa>",
			Middleware:  gated,
			Handle:      b.singleField("placa", storage.AttrPlaca),
		},
		{
			Name:        "telefono",
			Description: "Buscar por teléfono",
			Usage:       "/telefono <número>",
			Middleware:  gated,
			Handle:      b.singleField("telefono", storage.AttrTelefono),
		},
		{
			Name:        "id",
			Description: "Ver tu ID de Telegram",
			Middleware:  []router.Middleware{count},
			Handle:      b.handleID,
		},
		{
			Name:        "usuarios",
			Description: "Listar usuarios autorizados",
			Access:      router.AccessAdminOnly,
			Middleware:  []router.Middleware{count},
			Handle:      b.handleUsuarios,
		},
		{
			Name:        "autorizar",
			Description: "Autorizar un usuario",
			Usage:       "/autorizar <id>",
			Access:      router.AccessAdminOnly,
			Middleware:  []router.Middleware{count},
			Handle:      b.handleAutorizar,
		},
		{
			Name:        "revocar",
			Description: "Revocar el acceso de un usuario",
			Usage:       "/revocar <id>",
			Access:      router.AccessAdminOnly,
			Middleware:  []router.Middleware{count},
			Handle:      b.handleRevocar,
		},
	}
}

// Callbacks returns the inline-button routes.
func (b *Bot) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Prefix: PrefixApprove, Access: router.AccessAdminOnly, Handle: b.handleApprove},
		{Prefix: PrefixDeny, Access: router.AccessAdminOnly, Handle: b.handleDeny},
	}
}

func (b *Bot) countUpdates() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			b.metrics.IncBotUpdate(req.Command)
			return next(ctx, req)
		}
	}
}

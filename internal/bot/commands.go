package bot

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"padron/internal/transport/telegram/router"
	"padron/pkg/tgui"
)

func (b *Bot) handleStart(ctx context.Context, req *router.Request) error {
	name := tgui.FirstNonEmpty(req.From.FirstName, req.From.Username, "usuario")
	msg := tgui.New().
		Title("👋", "Hola, "+name).
		Line("Puedo buscar personas en el padrón por DUI, nombre, placa, teléfono y más.").
		Blank().
		RawLine(tgui.Raw("Usa /help para ver los comandos disponibles.")).
		Build()
	_, err := msg.Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) handleHelp(ctx context.Context, req *router.Request) error {
	admin := b.isAdmin(req.From.ID)
	mb := tgui.New().Title("📖", "Comandos disponibles")
	var adminLines []tgui.H
	for _, c := range b.Commands() {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := tgui.JoinH(" ", tgui.Code(usage), tgui.Esc("- "+c.Description))
		if c.Access == router.AccessAdminOnly {
			adminLines = append(adminLines, line)
			continue
		}
		mb.RawLine(line)
	}
	if admin && len(adminLines) > 0 {
		mb.Blank().Title("🛡", "Administración")
		for _, l := range adminLines {
			mb.RawLine(l)
		}
	}
	mb.Blank().
		Line("Campos para /buscar: " + strings.Join(searchFields(), ", ")).
		RawLine(tgui.I(`Ejemplo: /buscar nombres="ana maria" ciudad=santa`))
	_, err := mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) handleID(ctx context.Context, req *router.Request) error {
	_, err := req.Reply(ctx, "Tu ID de Telegram es: "+idCode(req.From.ID), htmlOpt())
	return err
}

func (b *Bot) handleUsuarios(ctx context.Context, req *router.Request) error {
	set, err := b.store.ListAuthorized(ctx)
	if err != nil {
		_, _ = req.Reply(ctx, "Error al consultar los usuarios autorizados.", nil)
		return err
	}
	if len(set) == 0 {
		_, err = req.Reply(ctx, "No hay usuarios autorizados.", nil)
		return err
	}
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	mb := tgui.New().Title("👥", fmt.Sprintf("Usuarios autorizados (%d)", len(ids)))
	for _, id := range ids {
		mb.RawLine(tgui.Raw("• " + idCode(id)))
	}
	_, err = mb.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (b *Bot) handleAutorizar(ctx context.Context, req *router.Request) error {
	id, ok := argID(req)
	if !ok {
		_, err := req.Reply(ctx, "Uso: /autorizar <id>", nil)
		return err
	}
	added, err := b.store.AddAuthorized(ctx, id, req.From.ID)
	if err != nil {
		_, _ = req.Reply(ctx, "Error de base de datos al autorizar al usuario.", nil)
		return err
	}
	text := "✅ Usuario " + idCode(id) + " autorizado."
	if !added {
		text = "ℹ️ El usuario " + idCode(id) + " ya estaba autorizado."
	}
	_, err = req.Reply(ctx, text, htmlOpt())
	return err
}

func (b *Bot) handleRevocar(ctx context.Context, req *router.Request) error {
	id, ok := argID(req)
	if !ok {
		_, err := req.Reply(ctx, "Uso: /revocar <id>", nil)
		return err
	}
	removed, err := b.store.RemoveAuthorized(ctx, id)
	if err != nil {
		_, _ = req.Reply(ctx, "Error de base de datos al revocar el acceso.", nil)
		return err
	}
	text := "🚫 Acceso de " + idCode(id) + " revocado."
	if !removed {
		text = "ℹ️ El usuario " + idCode(id) + " no estaba autorizado."
	}
	_, err = req.Reply(ctx, text, htmlOpt())
	return err
}

func argID(req *router.Request) (int64, bool) {
	if len(req.Args) != 1 {
		return 0, false
	}
	id, err := strconv.ParseInt(req.Args[0], 10, 64)
	return id, err == nil
}

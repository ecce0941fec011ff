package bot

import (
	"context"
	"fmt"
	"strconv"

	"padron/internal/transport"
	"padron/internal/transport/telegram/router"
	logx "padron/pkg/logx"
	"padron/pkg/tgui"
)

// Callback data prefixes for the admin approval buttons.
const (
	PrefixApprove = "admin_approve_"
	PrefixDeny    = "admin_deny_"
)

const (
	msgAuthCheckFailed = "Error al verificar tu autorización. Contacta al administrador."
	msgRequestSent     = "Tu solicitud de acceso ha sido enviada al administrador para su revisión."
	msgRequestFailed   = "No se pudo procesar tu solicitud. Por favor, contacta al administrador directamente."
)

// Access decisions recorded in metrics.
const (
	accessAllowed   = "allowed"
	accessRequested = "requested"
	accessFailed    = "request_failed"
	accessError     = "error"
	accessApproved  = "approved"
	accessDenied    = "denied"
)

// RequireAuthorized runs the wrapped handler only for users in the
// authorized list. Anyone else triggers an approval request to the admin.
// The admin always passes.
func (b *Bot) RequireAuthorized() router.Middleware {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(ctx context.Context, req *router.Request) error {
			user := req.From
			if b.isAdmin(user.ID) {
				return next(ctx, req)
			}

			ok, err := b.store.IsAuthorized(ctx, user.ID)
			if err != nil {
				b.metrics.IncAccess(accessError)
				req.Logger.Error("authorization check failed", logx.Err(err))
				_, _ = req.Reply(ctx, msgAuthCheckFailed, nil)
				return nil
			}
			if ok {
				b.metrics.IncAccess(accessAllowed)
				return next(ctx, req)
			}

			req.Logger.Warn("access denied, forwarding request to admin",
				logx.Int64("user_id", user.ID),
				logx.String("username", user.Username),
			)
			msg, err := accessRequest(user)
			if err == nil {
				_, err = msg.Send(ctx, req.Adapter, transport.ChatTarget{ChatID: b.adminID})
			}
			if err != nil {
				b.metrics.IncAccess(accessFailed)
				req.Logger.Warn("could not deliver access request to admin",
					logx.Int64("admin_id", b.adminID),
					logx.Err(err),
				)
				_, _ = req.Reply(ctx, msgRequestFailed, nil)
				return nil
			}
			b.metrics.IncAccess(accessRequested)
			_, _ = req.Reply(ctx, msgRequestSent, nil)
			return nil
		}
	}
}

// accessRequest renders the admin notification with approve/deny buttons.
func accessRequest(u transport.User) (tgui.Message, error) {
	approve, err := tgui.ActionData(PrefixApprove, u.ID)
	if err != nil {
		return tgui.Message{}, err
	}
	deny, err := tgui.ActionData(PrefixDeny, u.ID)
	if err != nil {
		return tgui.Message{}, err
	}

	username := "N/A"
	if u.Username != "" {
		username = "@" + u.Username
	}
	return tgui.New().
		Title("🔔", "Solicitud de Acceso Nueva").
		Blank().
		KV("- Nombre", u.FirstName).
		KV("- Username", username).
		RawLine(tgui.B("- ID:")+" "+tgui.Code(strconv.FormatInt(u.ID, 10))).
		Inline(tgui.ConfirmInline(
			tgui.Btn("✅ Aprobar", approve),
			tgui.Btn("❌ Denegar", deny),
		)).
		Build(), nil
}

func idCode(id int64) string { return tgui.Code(strconv.FormatInt(id, 10)).String() }

func (b *Bot) handleApprove(ctx context.Context, req *router.Request, payload string) error {
	id, err := tgui.ParseID(payload)
	if err != nil {
		return err
	}
	ref := adminMessage(req)

	added, err := b.store.AddAuthorized(ctx, id, req.From.ID)
	if err != nil {
		_ = req.Adapter.EditText(ctx, ref, "⚠️ Error de base de datos al autorizar a "+idCode(id)+".", htmlOpt())
		return fmt.Errorf("approve %d: %w", id, err)
	}
	if !added {
		return req.Adapter.EditText(ctx, ref, "ℹ️ El usuario "+idCode(id)+" ya estaba autorizado.", htmlOpt())
	}

	b.metrics.IncAccess(accessApproved)
	req.Logger.Info("user approved", logx.Int64("user_id", id))
	if _, err := req.Adapter.SendText(ctx, transport.ChatTarget{ChatID: id},
		"✅ Tu acceso ha sido aprobado. Usa /help para ver los comandos disponibles.", nil); err != nil {
		req.Logger.Warn("could not notify approved user", logx.Int64("user_id", id), logx.Err(err))
	}
	return req.Adapter.EditText(ctx, ref, "✅ Usuario "+idCode(id)+" autorizado.", htmlOpt())
}

func (b *Bot) handleDeny(ctx context.Context, req *router.Request, payload string) error {
	id, err := tgui.ParseID(payload)
	if err != nil {
		return err
	}
	b.metrics.IncAccess(accessDenied)
	req.Logger.Info("user denied", logx.Int64("user_id", id))
	if _, err := req.Adapter.SendText(ctx, transport.ChatTarget{ChatID: id},
		"❌ Tu solicitud de acceso ha sido denegada.", nil); err != nil {
		req.Logger.Warn("could not notify denied user", logx.Int64("user_id", id), logx.Err(err))
	}
	return req.Adapter.EditText(ctx, adminMessage(req), "❌ Solicitud de "+idCode(id)+" denegada.", htmlOpt())
}

// adminMessage is the message carrying the pressed button.
func adminMessage(req *router.Request) transport.MessageRef {
	ref := transport.MessageRef{ChatID: req.Chat.ChatID}
	if cb := req.Update.Callback; cb != nil {
		ref.MessageID = cb.MessageID
	}
	return ref
}

func htmlOpt() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}
}

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"padron/internal/search"
	"padron/internal/storage"
	"padron/internal/transport/telegram/router"
	logx "padron/pkg/logx"
	"padron/pkg/tgui"
)

const (
	msgSearchFailed = "Ocurrió un error al realizar la búsqueda. Intenta de nuevo más tarde."
	msgNoResults    = "No se encontraron resultados para tu búsqueda."
)

var errBadCriteria = errors.New("criterio inválido")

// searchFields lists the attributes accepted by /buscar.
func searchFields() []string { return storage.Attributes }

// parseCriteria turns "campo=valor" tokens into criteria. Keys are
// case-insensitive; repeated keys keep the last value.
func parseCriteria(args []string) (storage.Criteria, error) {
	out := storage.Criteria{}
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: %q no tiene la forma campo=valor", errBadCriteria, a)
		}
		if !storage.IsAttribute(k) {
			return nil, fmt.Errorf("%w: campo desconocido %q", errBadCriteria, k)
		}
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out, nil
}

func (b *Bot) handleBuscar(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		_, err := req.Reply(ctx, buscarUsage(), htmlOpt())
		return err
	}
	c, err := parseCriteria(req.Args)
	if err != nil {
		_, err = req.Reply(ctx, tgui.Esc(err.Error()).String()+"\n\n"+buscarUsage(), htmlOpt())
		return err
	}
	if len(c) == 0 {
		_, err := req.Reply(ctx, buscarUsage(), htmlOpt())
		return err
	}
	return b.runSearch(ctx, req, c)
}

func buscarUsage() string {
	return tgui.JoinH("\n",
		tgui.B("Uso:")+" "+tgui.Code("/buscar campo=valor [campo=valor ...]"),
		tgui.Esc("Campos: "+strings.Join(searchFields(), ", ")),
		tgui.I(`Ejemplo: /buscar nombres="ana maria" ciudad=santa`),
	).String()
}

// singleField handles commands that search one attribute with the whole
// argument text, e.g. "/nombre ana maria".
func (b *Bot) singleField(command, attr string) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		v := strings.TrimSpace(req.ArgText)
		if v == "" {
			_, err := req.Reply(ctx, "Uso: /"+command+" <valor>", nil)
			return err
		}
		return b.runSearch(ctx, req, storage.Criteria{attr: v})
	}
}

func (b *Bot) runSearch(ctx context.Context, req *router.Request, c storage.Criteria) error {
	results, err := b.searcher.Search(ctx, channelBot, c)
	if err != nil {
		_, _ = req.Reply(ctx, msgSearchFailed, nil)
		return fmt.Errorf("search: %w", err)
	}
	b.audit(ctx, req, c, len(results))

	if len(results) == 0 {
		_, err := req.Reply(ctx, msgNoResults, nil)
		return err
	}
	return b.sendResults(ctx, req, results)
}

// audit records the search. Failures never reach the user.
func (b *Bot) audit(ctx context.Context, req *router.Request, c storage.Criteria, n int) {
	query, err := json.Marshal(c)
	if err != nil {
		query = []byte(fmt.Sprint(map[string]string(c)))
	}
	entry := storage.SearchLogEntry{
		ChatID:       req.From.ID,
		Username:     tgui.FirstNonEmpty(req.From.Username, req.From.FirstName),
		SearchType:   req.Command,
		SearchQuery:  string(query),
		ResultsFound: n,
	}
	if err := b.store.LogSearch(ctx, entry); err != nil {
		b.metrics.IncAuditError()
		req.Logger.Warn("search log write failed", logx.Err(err))
	}
}

func (b *Bot) sendResults(ctx context.Context, req *router.Request, results []search.Result) error {
	total := len(results)
	shown := results
	if total > b.maxResults {
		shown = results[:b.maxResults]
	}

	header := tgui.New().Title("🔎", resultCount(total))
	if total > b.maxResults {
		header.RawLine(tgui.I(fmt.Sprintf(
			"Se muestran los primeros %d. Refina tu búsqueda para obtener resultados más precisos.", b.maxResults)))
	}
	if _, err := header.Build().Send(ctx, req.Adapter, req.Chat); err != nil {
		return err
	}

	blocks := make([]tgui.H, 0, len(shown))
	for _, r := range shown {
		blocks = append(blocks, Card(r))
	}
	const sep = "\n\n"
	pages := tgui.Pages(blocks, b.pageSize, tgui.MaxMessageLen-32, sep)
	for i, p := range pages {
		text := p
		if len(pages) > 1 {
			text = tgui.I(tgui.PageLabel(i, len(pages))) + sep + p
		}
		if _, err := req.Reply(ctx, text.String(), htmlOpt()); err != nil {
			return err
		}
	}

	for _, r := range shown {
		if r.ImagePath == "" {
			continue
		}
		caption := tgui.TruncRunes(photoCaption(r).String(), tgui.MaxCaptionLen)
		if _, err := req.Adapter.SendPhoto(ctx, req.Chat, r.ImagePath, caption, htmlOpt()); err != nil {
			req.Logger.Warn("could not send identity image", logx.String("path", r.ImagePath), logx.Err(err))
		}
	}
	return nil
}

func resultCount(n int) string {
	if n == 1 {
		return "Se encontró 1 resultado"
	}
	return "Se encontraron " + strconv.Itoa(n) + " resultados"
}

func photoCaption(r search.Result) tgui.H {
	return tgui.JoinH(" ", tgui.Raw("🪪"), tgui.Code(deref(r.Dui)), tgui.Esc(deref(r.NombreCompleto)))
}

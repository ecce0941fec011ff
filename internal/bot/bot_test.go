package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"padron/internal/metrics"
	"padron/internal/search"
	"padron/internal/storage"
	"padron/internal/transport"
	"padron/internal/transport/telegram/router"
	"padron/internal/transport/transporttest"
	logx "padron/pkg/logx"
)

const adminID int64 = 1000

type fakeStore struct {
	authorized map[int64]int64 // id -> added by
	checkErr   error
	addErr     error
	logErr     error
	logs       []storage.SearchLogEntry
	checks     int
}

func newFakeStore(ids ...int64) *fakeStore {
	s := &fakeStore{authorized: map[int64]int64{}}
	for _, id := range ids {
		s.authorized[id] = adminID
	}
	return s
}

func (s *fakeStore) IsAuthorized(_ context.Context, id int64) (bool, error) {
	s.checks++
	if s.checkErr != nil {
		return false, s.checkErr
	}
	_, ok := s.authorized[id]
	return ok, nil
}

func (s *fakeStore) ListAuthorized(context.Context) (map[int64]struct{}, error) {
	out := map[int64]struct{}{}
	for id := range s.authorized {
		out[id] = struct{}{}
	}
	return out, nil
}

func (s *fakeStore) AddAuthorized(_ context.Context, id, by int64) (bool, error) {
	if s.addErr != nil {
		return false, s.addErr
	}
	if _, ok := s.authorized[id]; ok {
		return false, nil
	}
	s.authorized[id] = by
	return true, nil
}

func (s *fakeStore) RemoveAuthorized(_ context.Context, id int64) (bool, error) {
	_, ok := s.authorized[id]
	delete(s.authorized, id)
	return ok, nil
}

func (s *fakeStore) LogSearch(_ context.Context, e storage.SearchLogEntry) error {
	if s.logErr != nil {
		return s.logErr
	}
	s.logs = append(s.logs, e)
	return nil
}

type fakeSearcher struct {
	results []search.Result
	err     error
	got     []storage.Criteria
}

func (f *fakeSearcher) Search(_ context.Context, channel string, c storage.Criteria) ([]search.Result, error) {
	if channel != channelBot {
		return nil, fmt.Errorf("unexpected channel %q", channel)
	}
	f.got = append(f.got, c)
	return f.results, f.err
}

type harness struct {
	fake     *transporttest.Fake
	store    *fakeStore
	searcher *fakeSearcher
	metrics  *metrics.Metrics
	router   *router.Router
}

func newHarness(t *testing.T, authorized ...int64) *harness {
	t.Helper()
	h := &harness{
		fake:     transporttest.New(),
		store:    newFakeStore(authorized...),
		searcher: &fakeSearcher{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	b := New(Options{
		Store:      h.store,
		Searcher:   h.searcher,
		AdminID:    adminID,
		PageSize:   5,
		MaxResults: 10,
		Metrics:    h.metrics,
		Logger:     logx.Nop(),
	})
	h.router = router.New(logx.Nop(), h.fake, adminID, 0, router.Messages{})
	h.router.SetRegistry(b.Commands(), b.Callbacks())
	return h
}

func (h *harness) send(from transport.User, text string) {
	h.router.Handle(context.Background(), transporttest.Message(from.ID, from, text))
}

func (h *harness) press(from transport.User, data string) {
	h.router.Handle(context.Background(), transporttest.Callback(from.ID, from, 77, data))
}

func ptr(s string) *string { return &s }

func person(dui, name string) search.Result {
	return search.Result{Person: storage.Person{Dui: ptr(dui), NombreCompleto: ptr(name), Sexo: ptr("Femenino")}}
}

var (
	alice = transport.User{ID: 42, Username: "alice", FirstName: "Alice"}
	eve   = transport.User{ID: 7, FirstName: "<Eve & co>"}
	admin = transport.User{ID: adminID, Username: "boss", FirstName: "Boss"}
)

func TestAuthorizedUserSearches(t *testing.T) {
	h := newHarness(t, alice.ID)
	h.searcher.results = []search.Result{person("012345678", "Maria Lopez")}

	h.send(alice, "/dui 012345678")

	require.Equal(t, []storage.Criteria{{"dui": "012345678"}}, h.searcher.got)
	texts := h.fake.To(alice.ID)
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "Se encontró 1 resultado")
	assert.Contains(t, texts[1], "<b>Maria Lopez</b>")
	assert.Contains(t, texts[1], "<b>DUI:</b> <code>012345678</code>")

	require.Len(t, h.store.logs, 1)
	assert.Equal(t, storage.SearchLogEntry{
		ChatID:       alice.ID,
		Username:     "alice",
		SearchType:   "dui",
		SearchQuery:  `{"dui":"012345678"}`,
		ResultsFound: 1,
	}, h.store.logs[0])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthRequests.WithLabelValues(accessAllowed)))
}

func TestUnauthorizedUserIsForwardedToAdmin(t *testing.T) {
	h := newHarness(t)

	h.send(eve, "/buscar nombres=ana")

	assert.Empty(t, h.searcher.got)
	assert.Equal(t, []string{msgRequestSent}, h.fake.To(eve.ID))

	var req transporttest.Sent
	for _, s := range h.fake.Sent() {
		if s.ChatID == adminID {
			req = s
		}
	}
	require.NotEmpty(t, req.Text)
	assert.Contains(t, req.Text, "Solicitud de Acceso Nueva")
	assert.Contains(t, req.Text, "&lt;Eve &amp; co&gt;")
	assert.Contains(t, req.Text, "<b>- Username:</b> N/A")
	assert.Contains(t, req.Text, "<code>7</code>")
	assert.Equal(t, "HTML", req.Options.ParseMode)

	rm, ok := req.Options.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 1)
	require.Len(t, rm.InlineKeyboard[0], 2)
	assert.Equal(t, "✅ Aprobar", rm.InlineKeyboard[0][0].Text)
	assert.Equal(t, "admin_approve_7", rm.InlineKeyboard[0][0].Data)
	assert.Equal(t, "❌ Denegar", rm.InlineKeyboard[0][1].Text)
	assert.Equal(t, "admin_deny_7", rm.InlineKeyboard[0][1].Data)
}

func TestAdminDeliveryFailure(t *testing.T) {
	h := newHarness(t)
	h.fake.FailChat[adminID] = errors.New("chat not found")

	h.send(eve, "/start")

	assert.Equal(t, []string{msgRequestFailed}, h.fake.To(eve.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuthRequests.WithLabelValues(accessFailed)))
}

func TestAuthorizationStoreError(t *testing.T) {
	h := newHarness(t, alice.ID)
	h.store.checkErr = errors.New("timeout")

	h.send(alice, "/nombre maria")

	assert.Empty(t, h.searcher.got)
	assert.Equal(t, []string{msgAuthCheckFailed}, h.fake.To(alice.ID))
	assert.Empty(t, h.fake.To(adminID))
}

func TestAdminBypassesGate(t *testing.T) {
	h := newHarness(t)
	h.send(admin, "/placa p123")

	assert.Zero(t, h.store.checks)
	assert.Equal(t, []storage.Criteria{{"placa": "p123"}}, h.searcher.got)
	assert.Equal(t, []string{msgNoResults}, h.fake.To(adminID))
}

func TestIDIsUngated(t *testing.T) {
	h := newHarness(t)
	h.send(eve, "/id")
	assert.Equal(t, []string{"Tu ID de Telegram es: <code>7</code>"}, h.fake.To(eve.ID))
	assert.Zero(t, h.store.checks)
}

func TestApproveCallback(t *testing.T) {
	h := newHarness(t)

	h.press(admin, "admin_approve_7")

	assert.Equal(t, adminID, h.store.authorized[eve.ID])
	require.Len(t, h.fake.To(eve.ID), 1)
	assert.Contains(t, h.fake.To(eve.ID)[0], "aprobado")

	var edit transporttest.Sent
	for _, s := range h.fake.Sent() {
		if s.Kind == "edit" {
			edit = s
		}
	}
	assert.Equal(t, transport.MessageRef{ChatID: adminID, MessageID: 77}, edit.Ref)
	assert.Contains(t, edit.Text, "autorizado")

	h.fake.Reset()
	h.press(admin, "admin_approve_7")
	assert.Empty(t, h.fake.To(eve.ID))
	require.Len(t, h.fake.To(adminID), 1)
	assert.Contains(t, h.fake.To(adminID)[0], "ya estaba autorizado")
}

func TestDenyCallback(t *testing.T) {
	h := newHarness(t)
	h.press(admin, "admin_deny_7")

	assert.NotContains(t, h.store.authorized, eve.ID)
	require.Len(t, h.fake.To(eve.ID), 1)
	assert.Contains(t, h.fake.To(eve.ID)[0], "denegada")
	assert.Contains(t, h.fake.To(adminID)[0], "denegada")
}

func TestCallbacksRejectNonAdminAndBadIDs(t *testing.T) {
	h := newHarness(t)

	h.press(eve, "admin_approve_7")
	assert.Empty(t, h.store.authorized)

	for _, data := range []string{"admin_approve_007", "admin_approve_+7", "admin_approve_x"} {
		h.press(admin, data)
	}
	assert.Empty(t, h.store.authorized)
	assert.Empty(t, h.fake.To(eve.ID))
}

func TestBuscarParsesCriteria(t *testing.T) {
	h := newHarness(t, alice.ID)

	h.send(alice, `/buscar nombres="ana maria" Ciudad=santa edad=30 placa=`)
	require.Len(t, h.searcher.got, 1)
	assert.Equal(t, storage.Criteria{"nombres": "ana maria", "ciudad": "santa", "edad": "30"}, h.searcher.got[0])

	h.fake.Reset()
	h.send(alice, "/buscar color=rojo")
	assert.Len(t, h.searcher.got, 1)
	require.Len(t, h.fake.To(alice.ID), 1)
	assert.Contains(t, h.fake.To(alice.ID)[0], "campo desconocido")

	h.fake.Reset()
	h.send(alice, "/buscar")
	assert.Contains(t, h.fake.To(alice.ID)[0], "Uso:")
}

func TestResultsArePagedAndCapped(t *testing.T) {
	h := newHarness(t, alice.ID)
	for i := range 12 {
		h.searcher.results = append(h.searcher.results, person(fmt.Sprintf("%09d", i), fmt.Sprintf("Persona %d", i)))
	}
	h.searcher.results[0].ImagePath = "/img/000000000.jpg"

	h.send(alice, "/nombre persona")

	texts := h.fake.To(alice.ID)
	// header, two pages of five, one photo
	require.Len(t, texts, 4)
	assert.Contains(t, texts[0], "Se encontraron 12 resultados")
	assert.Contains(t, texts[0], "Refina tu búsqueda")
	assert.True(t, strings.HasPrefix(texts[1], "<i>Página 1/2</i>"))
	assert.Equal(t, 5, strings.Count(texts[1], "👤"))
	assert.Equal(t, 5, strings.Count(texts[2], "👤"))
	assert.NotContains(t, texts[2], "Persona 10")

	var photo transporttest.Sent
	for _, s := range h.fake.Sent() {
		if s.Kind == "photo" {
			photo = s
		}
	}
	assert.Equal(t, "/img/000000000.jpg", photo.Path)
	assert.Contains(t, photo.Text, "Persona 0")

	require.Len(t, h.store.logs, 1)
	assert.Equal(t, 12, h.store.logs[0].ResultsFound)
	assert.Equal(t, "nombre", h.store.logs[0].SearchType)
}

func TestAuditFailureDoesNotHideResults(t *testing.T) {
	h := newHarness(t, alice.ID)
	h.store.logErr = errors.New("audit down")
	h.searcher.results = []search.Result{person("1", "Ana")}

	h.send(alice, "/dui 1")

	assert.Len(t, h.fake.To(alice.ID), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.AuditErrors))
}

func TestSearchErrorIsGeneric(t *testing.T) {
	h := newHarness(t, alice.ID)
	h.searcher.err = errors.New("deadlock victim")

	h.send(alice, "/telefono 7777")

	assert.Equal(t, []string{msgSearchFailed}, h.fake.To(alice.ID))
	assert.Empty(t, h.store.logs)
}

func TestAdminCommands(t *testing.T) {
	h := newHarness(t, alice.ID)

	h.send(alice, "/usuarios")
	assert.Equal(t, []string{"No tienes permiso para usar este comando."}, h.fake.To(alice.ID))

	h.send(admin, "/autorizar 9")
	h.send(admin, "/autorizar 9")
	h.send(admin, "/revocar 42")
	h.send(admin, "/revocar 42")
	h.send(admin, "/usuarios")
	h.send(admin, "/autorizar nope")

	texts := h.fake.To(adminID)
	require.Len(t, texts, 6)
	assert.Contains(t, texts[0], "autorizado")
	assert.Contains(t, texts[1], "ya estaba autorizado")
	assert.Contains(t, texts[2], "revocado")
	assert.Contains(t, texts[3], "no estaba autorizado")
	assert.Contains(t, texts[4], "Usuarios autorizados (1)")
	assert.Contains(t, texts[4], "<code>9</code>")
	assert.Equal(t, "Uso: /autorizar <id>", texts[5])
}

func TestHelpListsAdminSectionOnlyForAdmin(t *testing.T) {
	h := newHarness(t, alice.ID)

	h.send(alice, "/help")
	require.Len(t, h.fake.To(alice.ID), 1)
	assert.Contains(t, h.fake.To(alice.ID)[0], "/buscar")
	assert.NotContains(t, h.fake.To(alice.ID)[0], "/autorizar")

	h.send(admin, "/ayuda")
	assert.Contains(t, h.fake.To(adminID)[0], "/autorizar")
}

func TestParseCriteria(t *testing.T) {
	c, err := parseCriteria([]string{"DUI=1", "nombres= ana ", "dui=2"})
	require.NoError(t, err)
	assert.Equal(t, storage.Criteria{"dui": "2", "nombres": "ana"}, c)

	_, err = parseCriteria([]string{"ana"})
	assert.ErrorIs(t, err, errBadCriteria)
	_, err = parseCriteria([]string{"=x"})
	assert.ErrorIs(t, err, errBadCriteria)
}

func TestCardOmitsEmptyFields(t *testing.T) {
	age := int64(30)
	r := search.Result{Person: storage.Person{
		NombreCompleto: ptr("Ana <Diaz>"),
		Telefono:       ptr("  "),
		Ciudad:         ptr("San Salvador"),
		Edad:           &age,
	}}
	got := Card(r).String()
	assert.Equal(t, "👤 <b>Ana &lt;Diaz&gt;</b>\n<b>Ciudad:</b> San Salvador\n<b>Edad:</b> 30 años", got)
}

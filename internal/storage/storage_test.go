package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "padron/pkg/logx"
)

func testSchema() Schema {
	return Schema{
		Table: "personas",
		Columns: Columns{
			Dui:              "dui",
			NombreCompleto:   "nombre",
			Sexo:             "sexo",
			Profesion:        "profesion",
			Telefono:         "telefono",
			Correo:           "correo",
			Direccion:        "direccion",
			Calle:            "calle",
			Ciudad:           "ciudad",
			NombrePadre:      "padre",
			NombreMadre:      "madre",
			NombreConyuge:    "conyuge",
			Placa:            "placa",
			Marca:            "marca",
			Modelo:           "modelo",
			Anio:             "anio",
			NombreEmpresa:    "empresa",
			Salario:          "salario",
			DireccionLaboral: "direccion_laboral",
			FechaNacimiento:  "fecha_nac",
		},
	}
}

const createPersonas = `CREATE TABLE personas (
	dui TEXT PRIMARY KEY, nombre TEXT, sexo TEXT, profesion TEXT, telefono TEXT, correo TEXT,
	direccion TEXT, calle TEXT, ciudad TEXT, padre TEXT, madre TEXT, conyuge TEXT,
	placa TEXT, marca TEXT, modelo TEXT, anio INTEGER, empresa TEXT, salario REAL,
	direccion_laboral TEXT, fecha_nac TEXT)`

type personRow struct {
	dui, nombre, sexo, ciudad, placa string
	age                              int
}

func openSQLite(t *testing.T, name string) Handle {
	t.Helper()
	h, err := Open(context.Background(), Config{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), name),
	}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.DB.Close() })
	return h
}

func seedPeople(t *testing.T, db *sql.DB, rows ...personRow) {
	t.Helper()
	_, err := db.Exec(createPersonas)
	require.NoError(t, err)
	year := time.Now().Year()
	for _, r := range rows {
		var sexo any
		if r.sexo != "" {
			sexo = r.sexo
		}
		_, err := db.Exec(`INSERT INTO personas (dui, nombre, sexo, ciudad, placa, anio, salario, fecha_nac)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.dui, r.nombre, sexo, r.ciudad, r.placa, 2015, 850.5, fmt.Sprintf("%d-06-15", year-r.age))
		require.NoError(t, err)
	}
}

func newTestStore(t *testing.T) (*Store, Handle, Handle) {
	t.Helper()
	main := openSQLite(t, "main.db")
	audit := openSQLite(t, "audit.db")
	seedPeople(t, main.DB,
		personRow{dui: "01234567-8", nombre: "Maria Lopez", sexo: "F", ciudad: "San Salvador", placa: "P123-456", age: 30},
		personRow{dui: "02345678-9", nombre: "Pedro Ruiz", sexo: "M", ciudad: "Santa Ana", placa: "P999-000", age: 45},
		personRow{dui: "03456789-0", nombre: "Ana Maria Diaz", ciudad: "San Salvador", age: 30},
	)
	st, err := New(main, audit, Options{Schema: testSchema()}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Initialize(context.Background()))
	return st, main, audit
}

func names(ps []Person) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		if p.NombreCompleto != nil {
			out = append(out, *p.NombreCompleto)
		}
	}
	return out
}

func TestBuildSearchNoPredicates(t *testing.T) {
	t.Parallel()
	cases := []Criteria{
		nil,
		{},
		{"unknown": "x"},
		{AttrNombres: ""},
		{AttrEdad: "not-a-number"},
	}
	for _, c := range cases {
		_, ok := buildSearch(testSchema(), sqliteDialect{}, c, logx.Nop())
		assert.False(t, ok, "criteria %v", c)
	}
}

func TestBuildSearchDropsInvalidAge(t *testing.T) {
	t.Parallel()
	q, ok := buildSearch(testSchema(), sqliteDialect{}, Criteria{AttrEdad: "not-a-number", AttrNombres: "Ana"}, logx.Nop())
	require.True(t, ok)
	assert.Equal(t, []any{"%ana%"}, q.args)
	assert.Equal(t, 1, strings.Count(q.text, "?"))
}

func TestBuildSearchBindsValues(t *testing.T) {
	t.Parallel()
	c := Criteria{
		AttrNombres: "x' OR 1=1 --",
		AttrSexo:    "f",
		AttrEdad:    " 30 ",
	}
	tests := []struct {
		name string
		d    dialect
		want []string
	}{
		{name: "sqlserver", d: sqlServer{}, want: []string{"LIKE @p1", "sexo = @p2", "DATEDIFF(year, fecha_nac, GETDATE()) = @p3"}},
		{name: "postgres", d: postgres{}, want: []string{"LOWER(CAST(nombre AS TEXT)) LIKE $1", "sexo = $2", "= $3"}},
		{name: "sqlite", d: sqliteDialect{}, want: []string{"LOWER(nombre) LIKE ?", "sexo = ?"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q, ok := buildSearch(testSchema(), tt.d, c, logx.Nop())
			require.True(t, ok)
			for _, w := range tt.want {
				assert.Contains(t, q.text, w)
			}
			assert.NotContains(t, q.text, "1=1")
			assert.Equal(t, []any{"%x' or 1=1 --%", "F", 30}, q.args)
			assert.True(t, strings.HasSuffix(q.text, "ORDER BY nombre ASC"))
			assert.Contains(t, q.text, " AND ")
		})
	}
}

func TestBuildSearchFilterOverride(t *testing.T) {
	t.Parallel()
	s := testSchema()
	s.Filters = map[string]string{AttrApellidos: "apellidos"}
	q, ok := buildSearch(s, sqliteDialect{}, Criteria{AttrApellidos: "Lopez"}, logx.Nop())
	require.True(t, ok)
	assert.Contains(t, q.text, "LOWER(apellidos) LIKE ?")
}

func TestSearch(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{name: "substring any case", c: Criteria{AttrNombres: "MARIA"}, want: []string{"Ana Maria Diaz", "Maria Lopez"}},
		{name: "and", c: Criteria{AttrNombres: "maria", AttrSexo: "f"}, want: []string{"Maria Lopez"}},
		{name: "age", c: Criteria{AttrEdad: "45"}, want: []string{"Pedro Ruiz"}},
		{name: "bad age keeps other predicates", c: Criteria{AttrEdad: "not-a-number", AttrCiudad: "san salvador"}, want: []string{"Ana Maria Diaz", "Maria Lopez"}},
		{name: "plate", c: Criteria{AttrPlaca: "p999"}, want: []string{"Pedro Ruiz"}},
		{name: "dui", c: Criteria{AttrDUI: "01234567-8"}, want: []string{"Maria Lopez"}},
		{name: "no match", c: Criteria{AttrNombres: "zzz"}, want: []string{}},
		{name: "unknown keys ignored", c: Criteria{"foo": "bar", AttrCiudad: "santa"}, want: []string{"Pedro Ruiz"}},
	}
	for _, tt := range tests {
		got, err := st.Search(ctx, tt.c)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, names(got), tt.name)
	}
}

func TestSearchProjection(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	got, err := st.Search(context.Background(), Criteria{AttrDUI: "01234567-8"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	p := got[0]
	require.NotNil(t, p.Edad)
	assert.Equal(t, int64(30), *p.Edad)
	require.NotNil(t, p.Anio)
	assert.Equal(t, "2015", *p.Anio)
	require.NotNil(t, p.Sexo)
	assert.Equal(t, "F", *p.Sexo)
	assert.Nil(t, p.Correo)
}

func TestSearchEmptyCriteriaDoesNotQuery(t *testing.T) {
	t.Parallel()
	st, main, _ := newTestStore(t)
	require.NoError(t, main.DB.Close())

	got, err := st.Search(context.Background(), Criteria{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = st.Search(context.Background(), Criteria{AttrNombres: "ana"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStore))
}

func TestAuthorizedUsers(t *testing.T) {
	t.Parallel()
	st, _, _ := newTestStore(t)
	ctx := context.Background()

	// Initialize is idempotent.
	require.NoError(t, st.Initialize(ctx))

	ok, err := st.AddAuthorized(ctx, 1001, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.AddAuthorized(ctx, 1001, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	set, err := st.ListAuthorized(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]struct{}{1001: {}}, set)

	found, err := st.IsAuthorized(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, found)

	removed, err := st.RemoveAuthorized(ctx, 2002)
	require.NoError(t, err)
	assert.False(t, removed)

	set, err = st.ListAuthorized(ctx)
	require.NoError(t, err)
	assert.Len(t, set, 1)

	removed, err = st.RemoveAuthorized(ctx, 1001)
	require.NoError(t, err)
	assert.True(t, removed)

	found, err = st.IsAuthorized(ctx, 1001)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLogSearch(t *testing.T) {
	t.Parallel()
	st, _, audit := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.LogSearch(ctx, SearchLogEntry{
		ChatID:       1001,
		Username:     "ana",
		SearchType:   "dui",
		SearchQuery:  `{"dui":"01234567-8"}`,
		ResultsFound: 1,
	}))
	require.NoError(t, st.LogSearch(ctx, SearchLogEntry{ChatID: 1002, SearchType: "buscar"}))

	var n int
	require.NoError(t, audit.DB.QueryRow(`SELECT COUNT(*) FROM BotSearchLog`).Scan(&n))
	assert.Equal(t, 2, n)

	var username sql.NullString
	var results int
	require.NoError(t, audit.DB.QueryRow(`SELECT Username, ResultsFound FROM BotSearchLog WHERE ChatID = 1001`).Scan(&username, &results))
	assert.Equal(t, "ana", username.String)
	assert.Equal(t, 1, results)
}

func TestLogSearchWithoutAudit(t *testing.T) {
	t.Parallel()
	main := openSQLite(t, "main.db")
	st, err := New(main, Handle{}, Options{Schema: testSchema()}, logx.Nop())
	require.NoError(t, err)

	err = st.LogSearch(context.Background(), SearchLogEntry{ChatID: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, ErrAuditDisabled)
}

func TestNewRejectsBadTables(t *testing.T) {
	t.Parallel()
	main := openSQLite(t, "main.db")
	_, err := New(main, Handle{}, Options{Schema: testSchema(), AuthTable: "users; DROP TABLE x"}, logx.Nop())
	require.Error(t, err)
}

func TestSchemaValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, testSchema().Validate())

	s := testSchema()
	s.Table = ""
	s.Columns.Correo = ""
	s.Columns.Placa = "placa--"
	s.Filters = map[string]string{"color": "c", AttrApellidos: "bad name"}
	err := s.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"schema.table", "schema.columns.correo is required", "schema.columns.placa", `unknown attribute "color"`, "schema.filters.apellidos"} {
		assert.Contains(t, msg, want)
	}
}

func TestDialectFor(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"", "sqlserver", "MSSQL", "postgres", "pgx", "sqlite3"} {
		_, err := dialectFor(name)
		assert.NoError(t, err, name)
	}
	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	t.Parallel()
	dsn, err := sqlServer{}.dsn(Config{Host: "db", User: "sa", Password: "p@ss", Database: "padron"})
	require.NoError(t, err)
	assert.Equal(t, "sqlserver://sa:p%40ss@db:1433?database=padron", dsn)

	dsn, err = postgres{}.dsn(Config{Host: "db", Port: 5433, User: "u", Password: "p", Database: "padron", SSLMode: "disable"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5433/padron?sslmode=disable", dsn)

	_, err = sqliteDialect{}.dsn(Config{})
	assert.Error(t, err)
}

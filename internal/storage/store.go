package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	logx "padron/pkg/logx"
)

const (
	DefaultAuthTable    = "BotAuthorizedUsers"
	DefaultAuditTable   = "BotSearchLog"
	DefaultQueryTimeout = 15 * time.Second
)

// Options configures a Store.
type Options struct {
	Schema       Schema
	AuthTable    string
	AuditTable   string
	QueryTimeout time.Duration
}

type database struct {
	name string
	db   *sql.DB
	d    dialect
}

// withConn acquires a dedicated connection for one unit of work and
// always hands it back to the pool.
func (b database) withConn(ctx context.Context, op string, fn func(conn *sql.Conn) error) error {
	conn, err := b.db.Conn(ctx)
	if err != nil {
		return storeErr(b.name, op+": acquire connection", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Store serves person search (primary database) and the bot control
// tables (authorized users on primary, search log on audit).
type Store struct {
	main  database
	audit *database

	schema     Schema
	authTable  string
	auditTable string
	timeout    time.Duration

	log logx.Logger
}

// New builds a Store over already opened handles. audit may have a nil DB,
// in which case audit operations fail with ErrAuditDisabled.
func New(main, audit Handle, opt Options, log logx.Logger) (*Store, error) {
	if main.DB == nil {
		return nil, errors.New("storage: primary database is required")
	}
	if err := opt.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	md, err := dialectFor(main.Driver)
	if err != nil {
		return nil, err
	}
	st := &Store{
		main:       database{name: "main", db: main.DB, d: md},
		schema:     opt.Schema,
		authTable:  orDefault(opt.AuthTable, DefaultAuthTable),
		auditTable: orDefault(opt.AuditTable, DefaultAuditTable),
		timeout:    opt.QueryTimeout,
		log:        log,
	}
	if st.timeout <= 0 {
		st.timeout = DefaultQueryTimeout
	}
	for _, t := range []string{st.authTable, st.auditTable} {
		if !ValidIdentifier(t) {
			return nil, fmt.Errorf("storage: invalid control table name %q", t)
		}
	}
	if audit.DB != nil {
		ad, err := dialectFor(audit.Driver)
		if err != nil {
			return nil, err
		}
		st.audit = &database{name: "audit", db: audit.DB, d: ad}
	}
	return st, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (s *Store) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

// Close closes both databases.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	err1 := s.main.db.Close()
	var err2 error
	if s.audit != nil && s.audit.db != s.main.db {
		err2 = s.audit.db.Close()
	}
	return errors.Join(err1, err2)
}

// Ping checks both databases.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()
	if err := s.main.db.PingContext(ctx); err != nil {
		return storeErr(s.main.name, "ping", err)
	}
	if s.audit != nil {
		if err := s.audit.db.PingContext(ctx); err != nil {
			return storeErr(s.audit.name, "ping", err)
		}
	}
	return nil
}

// Search runs the person search. Criteria without any usable predicate
// return an empty result without touching the database.
func (s *Store) Search(ctx context.Context, c Criteria) ([]Person, error) {
	q, ok := buildSearch(s.schema, s.main.d, c, s.log)
	if !ok {
		return []Person{}, nil
	}

	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out := []Person{}
	err := s.main.withConn(ctx, "search", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, q.text, q.args...)
		if err != nil {
			return storeErr(s.main.name, "search", err)
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPerson(rows)
			if err != nil {
				return storeErr(s.main.name, "search: scan", err)
			}
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return storeErr(s.main.name, "search: rows", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func scanPerson(rows *sql.Rows) (Person, error) {
	var (
		str [19]sql.NullString
		age sql.NullInt64
	)
	dest := make([]any, 0, len(str)+1)
	for i := range str {
		dest = append(dest, &str[i])
	}
	dest = append(dest, &age)
	if err := rows.Scan(dest...); err != nil {
		return Person{}, err
	}
	// Order matches Columns.projection().
	return Person{
		Dui:              strPtr(str[0]),
		NombreCompleto:   strPtr(str[1]),
		Sexo:             strPtr(str[2]),
		Profesion:        strPtr(str[3]),
		Telefono:         strPtr(str[4]),
		Correo:           strPtr(str[5]),
		Direccion:        strPtr(str[6]),
		Calle:            strPtr(str[7]),
		Ciudad:           strPtr(str[8]),
		NombrePadre:      strPtr(str[9]),
		NombreMadre:      strPtr(str[10]),
		NombreConyuge:    strPtr(str[11]),
		Placa:            strPtr(str[12]),
		Marca:            strPtr(str[13]),
		Modelo:           strPtr(str[14]),
		Anio:             strPtr(str[15]),
		NombreEmpresa:    strPtr(str[16]),
		Salario:          strPtr(str[17]),
		DireccionLaboral: strPtr(str[18]),
		Edad:             int64Ptr(age),
	}, nil
}

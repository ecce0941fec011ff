package storage

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// dialect hides the SQL differences between the supported engines.
type dialect interface {
	// driverName is the database/sql driver registered by the imported package.
	driverName() string
	dsn(cfg Config) (string, error)
	placeholder(n int) string
	// ageExpr computes whole calendar years between col and today.
	ageExpr(col string) string
	// textExpr makes col usable with LOWER/LIKE.
	textExpr(col string) string
	createAuthTable(table string) string
	createAuditTable(table string) string
	isDuplicateKey(err error) bool
}

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlserver", "mssql":
		return sqlServer{}, nil
	case "postgres", "postgresql", "pgx":
		return postgres{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	default:
		return nil, fmt.Errorf("unknown database driver: %s", driver)
	}
}

// ---- SQL Server ----

type sqlServer struct{}

func (sqlServer) driverName() string { return "sqlserver" }

func (sqlServer) dsn(cfg Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", errors.New("sqlserver: host and database are required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 1433
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (sqlServer) placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (sqlServer) ageExpr(col string) string { return "DATEDIFF(year, " + col + ", GETDATE())" }

func (sqlServer) textExpr(col string) string { return col }

func (sqlServer) createAuthTable(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%[1]s', N'U') IS NULL
CREATE TABLE %[1]s (ChatID BIGINT PRIMARY KEY, AddedBy BIGINT, AddedDate DATETIME DEFAULT GETDATE())`, table)
}

func (sqlServer) createAuditTable(table string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'%[1]s', N'U') IS NULL
CREATE TABLE %[1]s (LogID INT PRIMARY KEY IDENTITY(1,1), ChatID BIGINT, Username NVARCHAR(255), SearchType NVARCHAR(50), SearchQuery NVARCHAR(MAX), ResultsFound INT, SearchTimestamp DATETIME DEFAULT GETDATE())`, table)
}

// 2627: PRIMARY KEY / UNIQUE constraint, 2601: unique index.
func (sqlServer) isDuplicateKey(err error) bool {
	var me interface{ SQLErrorNumber() int32 }
	if errors.As(err, &me) {
		n := me.SQLErrorNumber()
		return n == 2627 || n == 2601
	}
	return false
}

// ---- PostgreSQL ----

type postgres struct{}

func (postgres) driverName() string { return "pgx" }

func (postgres) dsn(cfg Config) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", errors.New("postgres: host and database are required")
	}
	port := cfg.Port
	if port <= 0 {
		port = 5432
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Database,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (postgres) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgres) ageExpr(col string) string {
	return "CAST(EXTRACT(YEAR FROM CURRENT_DATE) - EXTRACT(YEAR FROM " + col + ") AS INTEGER)"
}

func (postgres) textExpr(col string) string { return "CAST(" + col + " AS TEXT)" }

func (postgres) createAuthTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (ChatID BIGINT PRIMARY KEY, AddedBy BIGINT, AddedDate TIMESTAMPTZ NOT NULL DEFAULT now())`
}

func (postgres) createAuditTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (LogID BIGSERIAL PRIMARY KEY, ChatID BIGINT, Username VARCHAR(255), SearchType VARCHAR(50), SearchQuery TEXT, ResultsFound INT, SearchTimestamp TIMESTAMPTZ NOT NULL DEFAULT now())`
}

func (postgres) isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ---- SQLite ----

type sqliteDialect struct{}

func (sqliteDialect) driverName() string { return "sqlite" }

func (sqliteDialect) dsn(cfg Config) (string, error) {
	path := strings.TrimSpace(cfg.Database)
	if path == "" {
		return "", errors.New("sqlite: database path is required")
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode(), nil
}

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) ageExpr(col string) string {
	return "(CAST(strftime('%Y', 'now') AS INTEGER) - CAST(strftime('%Y', " + col + ") AS INTEGER))"
}

func (sqliteDialect) textExpr(col string) string { return col }

func (sqliteDialect) createAuthTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (ChatID INTEGER PRIMARY KEY, AddedBy INTEGER, AddedDate TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP)`
}

func (sqliteDialect) createAuditTable(table string) string {
	return `CREATE TABLE IF NOT EXISTS ` + table + ` (LogID INTEGER PRIMARY KEY AUTOINCREMENT, ChatID INTEGER, Username TEXT, SearchType TEXT, SearchQuery TEXT, ResultsFound INTEGER, SearchTimestamp TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP)`
}

func (sqliteDialect) isDuplicateKey(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		// Extended codes keep the primary code in the low byte.
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// Initialize creates the control tables when missing. Safe on every startup.
func (s *Store) Initialize(ctx context.Context) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.main.withConn(ctx, "initialize", func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.main.d.createAuthTable(s.authTable)); err != nil {
			return storeErr(s.main.name, "create "+s.authTable, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if s.audit == nil {
		return nil
	}
	return s.audit.withConn(ctx, "initialize", func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.audit.d.createAuditTable(s.auditTable)); err != nil {
			return storeErr(s.audit.name, "create "+s.auditTable, err)
		}
		return nil
	})
}

// ListAuthorized returns the set of authorized chat ids.
func (s *Store) ListAuthorized(ctx context.Context) (map[int64]struct{}, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	out := map[int64]struct{}{}
	err := s.main.withConn(ctx, "list authorized", func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, "SELECT ChatID FROM "+s.authTable)
		if err != nil {
			return storeErr(s.main.name, "list authorized", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return storeErr(s.main.name, "list authorized: scan", err)
			}
			out[id] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			return storeErr(s.main.name, "list authorized: rows", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsAuthorized looks up a single chat id.
func (s *Store) IsAuthorized(ctx context.Context, chatID int64) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var found bool
	err := s.main.withConn(ctx, "is authorized", func(conn *sql.Conn) error {
		q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE ChatID = %s", s.authTable, s.main.d.placeholder(1))
		var n int64
		if err := conn.QueryRowContext(ctx, q, chatID).Scan(&n); err != nil {
			return storeErr(s.main.name, "is authorized", err)
		}
		found = n > 0
		return nil
	})
	return found, err
}

// AddAuthorized inserts chatID. It returns false, without error, when the
// id is already authorized.
func (s *Store) AddAuthorized(ctx context.Context, chatID, addedBy int64) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var added bool
	err := s.main.withConn(ctx, "add authorized", func(conn *sql.Conn) error {
		q := fmt.Sprintf("INSERT INTO %s (ChatID, AddedBy) VALUES (%s, %s)",
			s.authTable, s.main.d.placeholder(1), s.main.d.placeholder(2))
		if _, err := conn.ExecContext(ctx, q, chatID, addedBy); err != nil {
			if s.main.d.isDuplicateKey(err) {
				return nil
			}
			return storeErr(s.main.name, "add authorized", err)
		}
		added = true
		return nil
	})
	return added, err
}

// RemoveAuthorized deletes chatID and reports whether a row was removed.
func (s *Store) RemoveAuthorized(ctx context.Context, chatID int64) (bool, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	var removed bool
	err := s.main.withConn(ctx, "remove authorized", func(conn *sql.Conn) error {
		q := fmt.Sprintf("DELETE FROM %s WHERE ChatID = %s", s.authTable, s.main.d.placeholder(1))
		res, err := conn.ExecContext(ctx, q, chatID)
		if err != nil {
			return storeErr(s.main.name, "remove authorized", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return storeErr(s.main.name, "remove authorized: rows affected", err)
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// LogSearch appends one audit row on the audit database.
func (s *Store) LogSearch(ctx context.Context, e SearchLogEntry) error {
	if s.audit == nil {
		return fmt.Errorf("%w: %w", ErrStore, ErrAuditDisabled)
	}
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	a := s.audit
	return a.withConn(ctx, "log search", func(conn *sql.Conn) error {
		q := fmt.Sprintf("INSERT INTO %s (ChatID, Username, SearchType, SearchQuery, ResultsFound) VALUES (%s, %s, %s, %s, %s)",
			s.auditTable, a.d.placeholder(1), a.d.placeholder(2), a.d.placeholder(3), a.d.placeholder(4), a.d.placeholder(5))
		if _, err := conn.ExecContext(ctx, q, e.ChatID, nullStr(e.Username), e.SearchType, e.SearchQuery, e.ResultsFound); err != nil {
			return storeErr(a.name, "log search", err)
		}
		return nil
	})
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// Package sqlstore implements a Store backed by database/sql, grounded
// on the prepared-statement, WAL-mode idiom used for SQLite-backed
// state in the wider example pack. It targets modernc.org/sqlite (pure
// Go, no cgo) so the connection string is a plain filesystem path.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chproxy/chproxy/store"
)

func init() {
	store.Register("sql", func(conn string) (store.Store, error) {
		path, table := splitConn(conn)
		return New(path, table)
	})
}

// splitConn splits a "path#table" connection string (the form main
// wires up from CHP_DATABASE_URL/CHP_DATABASE_TABLE) into its path and
// table parts; table is empty, deferring to New's own default, if conn
// carries no "#table" suffix.
func splitConn(conn string) (path, table string) {
	if i := strings.LastIndexByte(conn, '#'); i >= 0 {
		return conn[:i], conn[i+1:]
	}
	return conn, ""
}

// Store persists routes in a SQL table, one row per prefix, with
// Record.Data serialized as a JSON blob.
type Store struct {
	db    *sql.DB
	table string

	getStmt    *sql.Stmt
	upsertStmt *sql.Stmt
	deleteStmt *sql.Stmt
	listStmt   *sql.Stmt
}

const defaultTable = "chp_routes"

// New opens (creating if absent) a SQLite database at path and returns
// a Store backed by table (defaulting to "chp_routes").
func New(path string, table string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlstore: database path must not be empty")
	}
	if table == "" {
		table = defaultTable
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, table: table}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		prefix TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		last_activity TEXT,
		data TEXT NOT NULL DEFAULT '{}'
	)`, s.table)
	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("sqlstore: init schema: %w", err)
	}
	return nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.getStmt, err = s.db.Prepare(fmt.Sprintf(
		`SELECT target, last_activity, data FROM %s WHERE prefix = ?`, s.table))
	if err != nil {
		return fmt.Errorf("sqlstore: prepare get: %w", err)
	}

	s.upsertStmt, err = s.db.Prepare(fmt.Sprintf(`
		INSERT INTO %s (prefix, target, last_activity, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (prefix) DO UPDATE SET
			target = excluded.target,
			last_activity = excluded.last_activity,
			data = excluded.data
	`, s.table))
	if err != nil {
		return fmt.Errorf("sqlstore: prepare upsert: %w", err)
	}

	s.deleteStmt, err = s.db.Prepare(fmt.Sprintf(`DELETE FROM %s WHERE prefix = ?`, s.table))
	if err != nil {
		return fmt.Errorf("sqlstore: prepare delete: %w", err)
	}

	s.listStmt, err = s.db.Prepare(fmt.Sprintf(`SELECT prefix, target, last_activity, data FROM %s`, s.table))
	if err != nil {
		return fmt.Errorf("sqlstore: prepare list: %w", err)
	}

	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetTarget(ctx context.Context, path string) (string, *store.Record, bool, error) {
	all, err := s.GetAll(ctx)
	if err != nil {
		return "", nil, false, err
	}

	normalized := store.NormalizePrefix(path)
	var bestPrefix string
	var best *store.Record
	for prefix, rec := range all {
		if !store.Matches(prefix, normalized) {
			continue
		}
		if best == nil || len(prefix) > len(bestPrefix) {
			bestPrefix, best = prefix, rec
		}
	}
	if best == nil {
		return "", nil, false, nil
	}
	return bestPrefix, best, true, nil
}

func (s *Store) Get(ctx context.Context, prefix string) (*store.Record, bool, error) {
	prefix = store.NormalizePrefix(prefix)

	var target string
	var lastActivity sql.NullString
	var dataJSON string
	err := s.getStmt.QueryRowContext(ctx, prefix).Scan(&target, &lastActivity, &dataJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlstore: get: %w", err)
	}

	rec, err := decodeRow(target, lastActivity, dataJSON)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *Store) GetAll(ctx context.Context) (map[string]*store.Record, error) {
	rows, err := s.listStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*store.Record)
	for rows.Next() {
		var prefix, target, dataJSON string
		var lastActivity sql.NullString
		if err := rows.Scan(&prefix, &target, &lastActivity, &dataJSON); err != nil {
			return nil, fmt.Errorf("sqlstore: scan: %w", err)
		}
		rec, err := decodeRow(target, lastActivity, dataJSON)
		if err != nil {
			return nil, err
		}
		out[prefix] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlstore: rows: %w", err)
	}
	return out, nil
}

func (s *Store) Add(ctx context.Context, prefix string, rec *store.Record) error {
	prefix = store.NormalizePrefix(prefix)

	existing, ok, err := s.Get(ctx, prefix)
	if err != nil {
		return err
	}
	if ok {
		existing.Target = rec.Target
		existing.LastActivity = rec.LastActivity
		existing.MergeData(rec.Data)
		rec = existing
	}

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal data: %w", err)
	}

	_, err = s.upsertStmt.ExecContext(ctx, prefix, rec.Target, encodeTime(rec.LastActivity), string(dataJSON))
	if err != nil {
		return fmt.Errorf("sqlstore: add: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, prefix string, partial map[string]any) error {
	prefix = store.NormalizePrefix(prefix)

	rec, ok, err := s.Get(ctx, prefix)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}

	if v, ok := partial["target"]; ok {
		if t, ok := v.(string); ok {
			rec.Target = t
		}
	}
	if v, ok := partial["last_activity"]; ok {
		if t, ok := v.(time.Time); ok && t.After(rec.LastActivity) {
			rec.LastActivity = t
		}
	}
	rest := make(map[string]any, len(partial))
	for k, v := range partial {
		if k == "target" || k == "last_activity" {
			continue
		}
		rest[k] = v
	}
	rec.MergeData(rest)

	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("sqlstore: marshal data: %w", err)
	}
	_, err = s.upsertStmt.ExecContext(ctx, prefix, rec.Target, encodeTime(rec.LastActivity), string(dataJSON))
	if err != nil {
		return fmt.Errorf("sqlstore: update: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, prefix string) error {
	prefix = store.NormalizePrefix(prefix)
	_, err := s.deleteStmt.ExecContext(ctx, prefix)
	if err != nil {
		return fmt.Errorf("sqlstore: remove: %w", err)
	}
	return nil
}

// timeLayout matches store.Record's fixed millisecond-precision
// last_activity format, so a row read back out of the table round-trips
// through JSON identically to one that never left the process.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func encodeTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func decodeRow(target string, lastActivity sql.NullString, dataJSON string) (*store.Record, error) {
	rec := &store.Record{Target: target}
	if lastActivity.Valid {
		if t, err := time.Parse(timeLayout, lastActivity.String); err == nil {
			rec.LastActivity = t
		}
	}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &rec.Data); err != nil {
			return nil, fmt.Errorf("sqlstore: unmarshal data: %w", err)
		}
	}
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	return rec, nil
}

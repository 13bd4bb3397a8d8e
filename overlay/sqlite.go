package overlay

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS overlays (
	session_id TEXT NOT NULL,
	shape_id   TEXT NOT NULL,
	kind       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (session_id, shape_id, kind)
)`

// SQLiteStore persists overlays in a SQLite database. Several sessions may
// share one database; each store only sees its own session's rows.
//
// The driver is modernc.org/sqlite by default, or mattn/go-sqlite3 when
// built with -tags cgo_sqlite.
type SQLiteStore struct {
	db      *sql.DB
	session string
	owned   bool
	now     func() time.Time
}

// DriverType reports which SQLite implementation was compiled in:
// "purego" or "cgo".
func DriverType() string {
	return driverType
}

// OpenSQLite opens (creating if needed) the database at path and returns
// the store for one session. Close releases the database.
func OpenSQLite(path, sessionID string) (*SQLiteStore, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("opening overlay database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteStore(db, sessionID)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteStore uses an existing database handle, creating the table if
// it is missing. The caller keeps ownership of db.
func NewSQLiteStore(db *sql.DB, sessionID string) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating overlay schema: %w", err)
	}
	return &SQLiteStore{db: db, session: sessionID, now: time.Now}, nil
}

// Close closes the database if the store opened it.
func (s *SQLiteStore) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, shapeID string) (Set, bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM overlays WHERE session_id = ? AND shape_id = ?`, s.session, shapeID)
	if err != nil {
		return Set{}, false, fmt.Errorf("querying overlays for %s: %w", shapeID, err)
	}
	overlays, err := scanOverlays(rows)
	if err != nil {
		return Set{}, false, err
	}
	var set Set
	for _, o := range overlays {
		set.put(o)
	}
	return set, !set.Empty(), nil
}

func (s *SQLiteStore) Put(ctx context.Context, o Overlay) error {
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = s.now().UTC()
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding overlay %s/%s: %w", o.ShapeID, o.Kind, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO overlays (session_id, shape_id, kind, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (session_id, shape_id, kind) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		s.session, o.ShapeID, string(o.Kind), string(payload), o.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storing overlay %s/%s: %w", o.ShapeID, o.Kind, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, shapeID string, kind Kind) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM overlays WHERE session_id = ? AND shape_id = ? AND kind = ?`, s.session, shapeID, string(kind))
	if err != nil {
		return fmt.Errorf("deleting overlay %s/%s: %w", shapeID, kind, err)
	}
	return nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]Overlay, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM overlays WHERE session_id = ?`, s.session)
	if err != nil {
		return nil, fmt.Errorf("querying overlays: %w", err)
	}
	out, err := scanOverlays(rows)
	if err != nil {
		return nil, err
	}
	Sort(out)
	return out, nil
}

func scanOverlays(rows *sql.Rows) ([]Overlay, error) {
	defer rows.Close()
	out := make([]Overlay, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("reading overlay row: %w", err)
		}
		var o Overlay
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, fmt.Errorf("decoding overlay row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Package sqlite persists networks and query history in a single SQLite file
// for deployments without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/store"
)

type DB struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode and foreign keys enabled and
// creates the schema.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Networks() *NetworkStore { return &NetworkStore{db: d.db} }

func (d *DB) Queries() *QueryStore { return &QueryStore{db: d.db} }

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS networks (
	id TEXT PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	format TEXT NOT NULL,
	source TEXT NOT NULL,
	variables INTEGER NOT NULL,
	edges INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
	id TEXT PRIMARY KEY,
	network_id TEXT NOT NULL,
	variables TEXT NOT NULL,
	evidence TEXT NOT NULL,
	heuristic TEXT NOT NULL,
	result_rows TEXT NOT NULL,
	duration_micros INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(network_id) REFERENCES networks(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_queries_network_created ON queries(network_id, created_at);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlitedrv.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Timestamps are stored as Unix nanoseconds so range deletes compare numerically.
func toUnix(t time.Time) int64 { return t.UTC().UnixNano() }

func fromUnix(n int64) time.Time { return time.Unix(0, n).UTC() }

type NetworkStore struct {
	db *sql.DB
}

func (s *NetworkStore) Create(ctx context.Context, n *domain.NetworkRecord) error {
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO networks (id, name, format, source, variables, edges, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID.String(), n.Name, n.Format, n.Source, n.Variables, n.Edges, toUnix(n.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *NetworkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.NetworkRecord, error) {
	var (
		n       domain.NetworkRecord
		rawID   string
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, format, source, variables, edges, created_at
		 FROM networks WHERE id = ?`, id.String(),
	).Scan(&rawID, &n.Name, &n.Format, &n.Source, &n.Variables, &n.Edges, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if n.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	n.CreatedAt = fromUnix(created)
	return &n, nil
}

func (s *NetworkStore) List(ctx context.Context) ([]domain.NetworkRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, variables, edges, created_at
		 FROM networks ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NetworkRecord
	for rows.Next() {
		var (
			n       domain.NetworkRecord
			rawID   string
			created int64
		)
		if err := rows.Scan(&rawID, &n.Name, &n.Format, &n.Variables, &n.Edges, &created); err != nil {
			return nil, err
		}
		if n.ID, err = uuid.Parse(rawID); err != nil {
			return nil, err
		}
		n.CreatedAt = fromUnix(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NetworkStore) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM networks WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type QueryStore struct {
	db *sql.DB
}

func (s *QueryStore) Create(ctx context.Context, q *domain.QueryRecord) error {
	vars, err := json.Marshal(q.Variables)
	if err != nil {
		return err
	}
	evidence := q.Evidence
	if evidence == nil {
		evidence = map[string]string{}
	}
	ev, err := json.Marshal(evidence)
	if err != nil {
		return err
	}
	rowsJSON, err := json.Marshal(q.Rows)
	if err != nil {
		return err
	}

	q.ID = uuid.New()
	q.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO queries (id, network_id, variables, evidence, heuristic, result_rows, duration_micros, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID.String(), q.NetworkID.String(), string(vars), string(ev), q.Heuristic, string(rowsJSON),
		q.DurationMicros, toUnix(q.CreatedAt),
	)
	if err != nil {
		var se *sqlitedrv.Error
		if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
			return store.ErrNotFound
		}
		return err
	}
	return nil
}

// ListByNetwork returns the newest limit queries for a network.
func (s *QueryStore) ListByNetwork(ctx context.Context, networkID uuid.UUID, limit int) ([]domain.QueryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, network_id, variables, evidence, heuristic, result_rows, duration_micros, created_at
		 FROM queries WHERE network_id = ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		networkID.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueryRecord
	for rows.Next() {
		var (
			q                domain.QueryRecord
			rawID, rawNet    string
			vars, ev, result string
			created          int64
		)
		if err := rows.Scan(&rawID, &rawNet, &vars, &ev, &q.Heuristic, &result, &q.DurationMicros, &created); err != nil {
			return nil, err
		}
		if q.ID, err = uuid.Parse(rawID); err != nil {
			return nil, err
		}
		if q.NetworkID, err = uuid.Parse(rawNet); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vars), &q.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
		if err := json.Unmarshal([]byte(ev), &q.Evidence); err != nil {
			return nil, fmt.Errorf("decode evidence: %w", err)
		}
		if err := json.Unmarshal([]byte(result), &q.Rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		q.CreatedAt = fromUnix(created)
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *QueryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queries WHERE created_at < ?`, toUnix(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

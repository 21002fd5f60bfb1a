package store

import (
	"context"
	"errors"
	"time"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type QueryStore struct {
	db *pgxpool.Pool
}

func NewQueryStore(db *pgxpool.Pool) *QueryStore {
	return &QueryStore{db: db}
}

func (s *QueryStore) Create(ctx context.Context, q *domain.QueryRecord) error {
	evidence := q.Evidence
	if evidence == nil {
		evidence = map[string]string{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO queries (network_id, variables, evidence, heuristic, result_rows, duration_micros)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		q.NetworkID, q.Variables, evidence, q.Heuristic, q.Rows, q.DurationMicros,
	).Scan(&q.ID, &q.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ListByNetwork returns the newest limit queries for a network.
func (s *QueryStore) ListByNetwork(ctx context.Context, networkID uuid.UUID, limit int) ([]domain.QueryRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, network_id, variables, evidence, heuristic, result_rows, duration_micros, created_at
		 FROM queries WHERE network_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		networkID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueryRecord
	for rows.Next() {
		var q domain.QueryRecord
		if err := rows.Scan(&q.ID, &q.NetworkID, &q.Variables, &q.Evidence, &q.Heuristic,
			&q.Rows, &q.DurationMicros, &q.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *QueryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM queries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

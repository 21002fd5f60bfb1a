package store

import (
	"context"
	"errors"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type NetworkStore struct {
	db *pgxpool.Pool
}

func NewNetworkStore(db *pgxpool.Pool) *NetworkStore {
	return &NetworkStore{db: db}
}

func (s *NetworkStore) Create(ctx context.Context, n *domain.NetworkRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO networks (name, format, source, variables, edges)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		n.Name, n.Format, n.Source, n.Variables, n.Edges,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *NetworkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.NetworkRecord, error) {
	n := &domain.NetworkRecord{}
	err := s.db.QueryRow(ctx,
		`SELECT id, name, format, source, variables, edges, created_at
		 FROM networks WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.Name, &n.Format, &n.Source, &n.Variables, &n.Edges, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return n, nil
}

func (s *NetworkStore) List(ctx context.Context) ([]domain.NetworkRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, format, variables, edges, created_at
		 FROM networks ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NetworkRecord
	for rows.Next() {
		var n domain.NetworkRecord
		if err := rows.Scan(&n.ID, &n.Name, &n.Format, &n.Variables, &n.Edges, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NetworkStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM networks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type NetworkStore interface {
	Create(ctx context.Context, n *NetworkRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*NetworkRecord, error)
	List(ctx context.Context) ([]NetworkRecord, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type QueryStore interface {
	Create(ctx context.Context, q *QueryRecord) error
	ListByNetwork(ctx context.Context, networkID uuid.UUID, limit int) ([]QueryRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

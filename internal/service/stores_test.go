package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/store"
)

// fakeNetworkStore implements domain.NetworkStore in memory and counts reads.
type fakeNetworkStore struct {
	mu       sync.Mutex
	networks map[uuid.UUID]*domain.NetworkRecord
	gets     int
}

func newFakeNetworkStore() *fakeNetworkStore {
	return &fakeNetworkStore{networks: make(map[uuid.UUID]*domain.NetworkRecord)}
}

func (f *fakeNetworkStore) Create(ctx context.Context, n *domain.NetworkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.networks {
		if existing.Name == n.Name {
			return store.ErrConflict
		}
	}
	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	cp := *n
	f.networks[n.ID] = &cp
	return nil
}

func (f *fakeNetworkStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.NetworkRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	n, ok := f.networks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNetworkStore) List(ctx context.Context) ([]domain.NetworkRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.NetworkRecord
	for _, n := range f.networks {
		cp := *n
		cp.Source = ""
		out = append(out, cp)
	}
	return out, nil
}

func (f *fakeNetworkStore) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.networks, id)
	return nil
}

func (f *fakeNetworkStore) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

type mockQueryStore struct {
	mock.Mock
}

func (m *mockQueryStore) Create(ctx context.Context, q *domain.QueryRecord) error {
	args := m.Called(ctx, q)
	if args.Error(0) == nil {
		q.ID = uuid.New()
		q.CreatedAt = time.Now().UTC()
	}
	return args.Error(0)
}

func (m *mockQueryStore) ListByNetwork(ctx context.Context, networkID uuid.UUID, limit int) ([]domain.QueryRecord, error) {
	args := m.Called(ctx, networkID, limit)
	recs, _ := args.Get(0).([]domain.QueryRecord)
	return recs, args.Error(1)
}

func (m *mockQueryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

func fixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", name))
	require.NoError(t, err)
	return data
}

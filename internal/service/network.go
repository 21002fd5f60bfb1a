package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/loader"
	"github.com/Harshitk-cp/marginal/internal/network"
	"github.com/Harshitk-cp/marginal/internal/store"
)

var (
	ErrNetworkNotFound = errors.New("network not found")
	ErrNetworkConflict = errors.New("network with this name already exists")
	ErrNetworkTooLarge = errors.New("network source too large")
	ErrInvalidNetwork  = errors.New("invalid network")
)

// NetworkService registers network definitions and hands out compiled,
// immutable networks. Compiled networks are kept in an LRU cache keyed by ID.
type NetworkService struct {
	store    domain.NetworkStore
	cache    *lru.Cache[uuid.UUID, *network.Network]
	maxBytes int64
	logger   *zap.Logger
}

func NewNetworkService(s domain.NetworkStore, cacheSize int, maxBytes int64, logger *zap.Logger) (*NetworkService, error) {
	cache, err := lru.New[uuid.UUID, *network.Network](max(cacheSize, 1))
	if err != nil {
		return nil, err
	}
	return &NetworkService{store: s, cache: cache, maxBytes: maxBytes, logger: logger}, nil
}

// Register parses and validates source in the given format and persists it.
// An empty name falls back to the name declared in the source.
func (s *NetworkService) Register(ctx context.Context, name, format string, source []byte) (*domain.NetworkRecord, error) {
	if s.maxBytes > 0 && int64(len(source)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrNetworkTooLarge, len(source), s.maxBytes)
	}

	f, err := loader.ParseFormat(format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNetwork, err)
	}
	def, err := loader.Parse(f, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNetwork, err)
	}
	if name != "" {
		def.Name = name
	}
	if def.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidNetwork)
	}

	net, err := network.New(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNetwork, err)
	}

	rec := &domain.NetworkRecord{
		Name:      def.Name,
		Format:    string(f),
		Source:    string(source),
		Variables: net.Len(),
		Edges:     len(net.Edges()),
	}
	if err := s.store.Create(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrNetworkConflict
		}
		return nil, err
	}
	s.cache.Add(rec.ID, net)

	s.logger.Info("network registered",
		zap.String("network_id", rec.ID.String()),
		zap.String("name", rec.Name),
		zap.String("format", rec.Format),
		zap.Int("variables", rec.Variables),
		zap.Int("edges", rec.Edges))
	return rec, nil
}

// RegisterDefinition stores an already decoded definition as JSON.
func (s *NetworkService) RegisterDefinition(ctx context.Context, name string, def network.Definition) (*domain.NetworkRecord, error) {
	data, err := loader.EncodeJSON(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidNetwork, err)
	}
	return s.Register(ctx, name, string(loader.FormatJSON), data)
}

func (s *NetworkService) Get(ctx context.Context, id uuid.UUID) (*domain.NetworkRecord, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNetworkNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *NetworkService) List(ctx context.Context) ([]domain.NetworkRecord, error) {
	return s.store.List(ctx)
}

func (s *NetworkService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNetworkNotFound
		}
		return err
	}
	s.cache.Remove(id)
	s.logger.Info("network deleted", zap.String("network_id", id.String()))
	return nil
}

// Compiled returns the validated network for id, rebuilding it from the
// stored source on a cache miss.
func (s *NetworkService) Compiled(ctx context.Context, id uuid.UUID) (*network.Network, error) {
	if net, ok := s.cache.Get(id); ok {
		return net, nil
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	f, err := loader.ParseFormat(rec.Format)
	if err != nil {
		return nil, fmt.Errorf("stored network %s: %w", id, err)
	}
	def, err := loader.Parse(f, []byte(rec.Source))
	if err != nil {
		return nil, fmt.Errorf("stored network %s: %w", id, err)
	}
	def.Name = rec.Name
	net, err := network.New(def)
	if err != nil {
		return nil, fmt.Errorf("stored network %s: %w", id, err)
	}

	s.cache.Add(id, net)
	s.logger.Debug("network compiled", zap.String("network_id", id.String()))
	return net, nil
}

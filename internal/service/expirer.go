package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/domain"
)

const (
	defaultExpirerInterval = 1 * time.Hour
	defaultQueryRetention  = 7 * 24 * time.Hour
)

// ExpirerService prunes query history older than the retention window.
type ExpirerService struct {
	queryStore domain.QueryStore
	logger     *zap.Logger

	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewExpirerService(qs domain.QueryStore, logger *zap.Logger) *ExpirerService {
	return &ExpirerService{
		queryStore: qs,
		logger:     logger,
		interval:   defaultExpirerInterval,
		retention:  defaultQueryRetention,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}
}

func (s *ExpirerService) SetInterval(d time.Duration) {
	s.interval = d
}

func (s *ExpirerService) SetRetention(d time.Duration) {
	s.retention = d
}

// Start runs the expirer on a periodic schedule in a background goroutine.
func (s *ExpirerService) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("query history expirer started",
			zap.Duration("interval", s.interval),
			zap.Duration("retention", s.retention))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				s.run(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("query history expirer stopped")
				return
			}
		}
	}()
}

// Stop gracefully stops the expirer.
func (s *ExpirerService) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *ExpirerService) run(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.retention)
	deleted, err := s.queryStore.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to delete expired queries", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		s.logger.Info("deleted expired queries",
			zap.Int64("count", deleted),
			zap.Time("cutoff", cutoff))
	}
	return deleted
}

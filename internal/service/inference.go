package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/inference"
)

const (
	defaultQueryTimeout = 30 * time.Second
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var (
	ErrInvalidQuery          = errors.New("invalid query")
	ErrContradictoryEvidence = errors.New("contradictory evidence")
	ErrQueryTimeout          = errors.New("query timed out")
)

type QueryRequest struct {
	Variables []string          `json:"variables"`
	Evidence  map[string]string `json:"evidence,omitempty"`
	Heuristic string            `json:"heuristic,omitempty"`
}

// QueryResponse is an answered query. ID is the history entry, nil when the
// query could not be recorded.
type QueryResponse struct {
	ID             uuid.UUID            `json:"id"`
	NetworkID      uuid.UUID            `json:"network_id"`
	Variables      []string             `json:"variables"`
	Evidence       map[string]string    `json:"evidence,omitempty"`
	Heuristic      string               `json:"heuristic"`
	Rows           []domain.MarginalRow `json:"rows"`
	Order          []string             `json:"elimination_order"`
	MaxFactorSize  int                  `json:"max_factor_size"`
	DurationMicros int64                `json:"duration_us"`
}

// Marginal is the posterior of one variable; Probabilities follow States.
type Marginal struct {
	Variable      string    `json:"variable"`
	States        []string  `json:"states"`
	Probabilities []float64 `json:"probabilities"`
}

type InferenceService struct {
	networks *NetworkService
	queries  domain.QueryStore
	metrics  *Metrics
	logger   *zap.Logger

	timeout   time.Duration
	workers   int
	heuristic inference.Heuristic
}

func NewInferenceService(networks *NetworkService, queries domain.QueryStore, metrics *Metrics, logger *zap.Logger) *InferenceService {
	return &InferenceService{
		networks:  networks,
		queries:   queries,
		metrics:   metrics,
		logger:    logger,
		timeout:   defaultQueryTimeout,
		heuristic: inference.MinFill,
	}
}

func (s *InferenceService) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetWorkers caps concurrent queries in Marginals. Zero means unbounded.
func (s *InferenceService) SetWorkers(n int) {
	s.workers = n
}

func (s *InferenceService) SetDefaultHeuristic(h inference.Heuristic) {
	s.heuristic = h
}

// Query answers one posterior query against a registered network and records
// it in the network's history.
func (s *InferenceService) Query(ctx context.Context, networkID uuid.UUID, req QueryRequest) (*QueryResponse, error) {
	net, err := s.networks.Compiled(ctx, networkID)
	if err != nil {
		return nil, err
	}
	h, err := s.heuristicFor(req.Heuristic)
	if err != nil {
		return nil, err
	}

	engine := inference.New(net,
		inference.WithHeuristic(h),
		inference.WithObserver(s.observer(networkID)))

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := engine.Query(qctx, req.Variables, req.Evidence)
	elapsed := time.Since(start)
	if err != nil {
		err = classify(err)
		s.metrics.observe(outcomeOf(err), elapsed, nil)
		s.logger.Debug("query failed",
			zap.String("network_id", networkID.String()),
			zap.Strings("variables", req.Variables),
			zap.Error(err))
		return nil, err
	}

	stats := res.Stats()
	s.metrics.observe(OutcomeOK, elapsed, &stats)

	rec := &domain.QueryRecord{
		NetworkID:      networkID,
		Variables:      res.Names(),
		Evidence:       res.Evidence(),
		Heuristic:      h.String(),
		Rows:           toMarginalRows(res.Rows()),
		DurationMicros: elapsed.Microseconds(),
	}
	s.record(ctx, rec)

	s.logger.Info("query answered",
		zap.String("network_id", networkID.String()),
		zap.Strings("variables", rec.Variables),
		zap.String("heuristic", rec.Heuristic),
		zap.Int("steps", stats.Steps),
		zap.Int("max_factor_size", stats.MaxFactorSize),
		zap.Duration("duration", elapsed))

	return &QueryResponse{
		ID:             rec.ID,
		NetworkID:      networkID,
		Variables:      rec.Variables,
		Evidence:       rec.Evidence,
		Heuristic:      rec.Heuristic,
		Rows:           rec.Rows,
		Order:          stats.Order,
		MaxFactorSize:  stats.MaxFactorSize,
		DurationMicros: rec.DurationMicros,
	}, nil
}

// Marginals computes every single-variable posterior under evidence, in
// declaration order. Batch results are not recorded in history.
func (s *InferenceService) Marginals(ctx context.Context, networkID uuid.UUID, evidence map[string]string, heuristic string) ([]Marginal, error) {
	net, err := s.networks.Compiled(ctx, networkID)
	if err != nil {
		return nil, err
	}
	h, err := s.heuristicFor(heuristic)
	if err != nil {
		return nil, err
	}

	engine := inference.New(net, inference.WithHeuristic(h))

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	results, err := engine.Marginals(qctx, nil, evidence, s.workers)
	elapsed := time.Since(start)
	if err != nil {
		err = classify(err)
		s.metrics.observe(outcomeOf(err), elapsed, nil)
		return nil, err
	}

	out := make([]Marginal, 0, len(results))
	for _, res := range results {
		stats := res.Stats()
		s.metrics.observe(OutcomeOK, elapsed/time.Duration(len(results)), &stats)

		v := res.Variables()[0]
		m := Marginal{Variable: v.Name, States: v.States}
		for _, row := range res.Rows() {
			m.Probabilities = append(m.Probabilities, row.Probability)
		}
		out = append(out, m)
	}

	s.logger.Info("marginals computed",
		zap.String("network_id", networkID.String()),
		zap.Int("variables", len(out)),
		zap.Int("evidence", len(evidence)),
		zap.Duration("duration", elapsed))
	return out, nil
}

// History returns the newest recorded queries for a network.
func (s *InferenceService) History(ctx context.Context, networkID uuid.UUID, limit int) ([]domain.QueryRecord, error) {
	if _, err := s.networks.Get(ctx, networkID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return s.queries.ListByNetwork(ctx, networkID, min(limit, maxHistoryLimit))
}

func (s *InferenceService) heuristicFor(name string) (inference.Heuristic, error) {
	if name == "" {
		return s.heuristic, nil
	}
	h, err := inference.ParseHeuristic(name)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return h, nil
}

// record stores the query for history. Failures are logged, not returned.
func (s *InferenceService) record(ctx context.Context, rec *domain.QueryRecord) {
	if s.queries == nil {
		return
	}
	if err := s.queries.Create(ctx, rec); err != nil {
		s.logger.Warn("failed to record query",
			zap.String("network_id", rec.NetworkID.String()),
			zap.Error(err))
	}
}

func (s *InferenceService) observer(networkID uuid.UUID) func(inference.Step) {
	if !s.logger.Core().Enabled(zap.DebugLevel) {
		return nil
	}
	return func(st inference.Step) {
		s.logger.Debug("elimination step",
			zap.String("network_id", networkID.String()),
			zap.Int("step", st.Index),
			zap.String("variable", st.Variable),
			zap.Int("factors", st.Factors),
			zap.Int("size", st.Size),
			zap.Strings("scope", st.Scope))
	}
}

func classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrQueryTimeout, err)
	case errors.Is(err, bnerr.ErrContradictoryEvidence):
		return fmt.Errorf("%w: %w", ErrContradictoryEvidence, err)
	case bnerr.IsInputError(err):
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	default:
		return err
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrQueryTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrContradictoryEvidence):
		return OutcomeContradictory
	case errors.Is(err, ErrInvalidQuery):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

func toMarginalRows(rows []inference.Row) []domain.MarginalRow {
	out := make([]domain.MarginalRow, len(rows))
	for i, r := range rows {
		out[i] = domain.MarginalRow{States: r.States, Probability: r.Probability}
	}
	return out
}

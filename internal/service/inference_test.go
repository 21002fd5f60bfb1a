package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/domain"
	"github.com/Harshitk-cp/marginal/internal/inference"
)

type inferenceFixture struct {
	svc     *InferenceService
	queries *mockQueryStore
	metrics *Metrics
	chain   uuid.UUID
	asia    uuid.UUID
}

func newInferenceFixture(t *testing.T) *inferenceFixture {
	t.Helper()
	ctx := context.Background()

	networks := newNetworkService(t, newFakeNetworkStore())
	chain, err := networks.Register(ctx, "", "yaml", fixture(t, "chain.yaml"))
	require.NoError(t, err)
	asia, err := networks.Register(ctx, "", "bif", fixture(t, "asia.bif"))
	require.NoError(t, err)

	qs := &mockQueryStore{}
	m := NewMetrics(prometheus.NewRegistry())
	return &inferenceFixture{
		svc:     NewInferenceService(networks, qs, m, zap.NewNop()),
		queries: qs,
		metrics: m,
		chain:   chain.ID,
		asia:    asia.ID,
	}
}

func TestInferenceService_Query(t *testing.T) {
	f := newInferenceFixture(t)
	f.queries.On("Create", mock.Anything, mock.MatchedBy(func(q *domain.QueryRecord) bool {
		return q.NetworkID == f.chain && q.Heuristic == "min-fill"
	})).Return(nil).Once()

	resp, err := f.svc.Query(context.Background(), f.chain, QueryRequest{
		Variables: []string{"C"},
		Evidence:  map[string]string{"A": "true"},
	})
	require.NoError(t, err)
	f.queries.AssertExpectations(t)

	assert.NotEqual(t, uuid.Nil, resp.ID)
	assert.Equal(t, []string{"C"}, resp.Variables)
	assert.Equal(t, map[string]string{"A": "true"}, resp.Evidence)
	assert.Equal(t, []string{"B"}, resp.Order)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, []string{"true"}, resp.Rows[0].States)
	assert.InDelta(t, 0.58, resp.Rows[0].Probability, 1e-9)
	assert.InDelta(t, 0.42, resp.Rows[1].Probability, 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.queries.WithLabelValues(OutcomeOK)))
}

func TestInferenceService_QueryHistoryFailureIsNotFatal(t *testing.T) {
	f := newInferenceFixture(t)
	f.queries.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()

	resp, err := f.svc.Query(context.Background(), f.chain, QueryRequest{Variables: []string{"C"}})
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, resp.ID)
	assert.InDelta(t, 0.4, resp.Rows[0].Probability, 1e-9)
}

func TestInferenceService_QueryHeuristicOverride(t *testing.T) {
	f := newInferenceFixture(t)
	f.queries.On("Create", mock.Anything, mock.Anything).Return(nil)

	resp, err := f.svc.Query(context.Background(), f.asia, QueryRequest{
		Variables: []string{"dysp"},
		Heuristic: "declaration",
	})
	require.NoError(t, err)
	assert.Equal(t, "declaration", resp.Heuristic)
	assert.Equal(t, []string{"asia", "tub", "smoke", "lung", "bronc", "either"}, resp.Order)
}

func TestInferenceService_QueryErrors(t *testing.T) {
	f := newInferenceFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		network uuid.UUID
		req     QueryRequest
		want    []error
		outcome string
	}{
		{"empty", f.chain, QueryRequest{}, []error{ErrInvalidQuery, bnerr.ErrEmptyQuery}, OutcomeInvalid},
		{"unknown variable", f.chain, QueryRequest{Variables: []string{"Z"}}, []error{ErrInvalidQuery, bnerr.ErrUnknownVariable}, OutcomeInvalid},
		{"bad state", f.chain, QueryRequest{Variables: []string{"C"}, Evidence: map[string]string{"A": "maybe"}}, []error{ErrInvalidQuery, bnerr.ErrDomain}, OutcomeInvalid},
		{
			"contradictory", f.asia,
			QueryRequest{Variables: []string{"dysp"}, Evidence: map[string]string{"lung": "yes", "either": "no"}},
			[]error{ErrContradictoryEvidence, bnerr.ErrContradictoryEvidence}, OutcomeContradictory,
		},
		{"unknown network", uuid.New(), QueryRequest{Variables: []string{"C"}}, []error{ErrNetworkNotFound}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Query(ctx, tt.network, tt.req)
			for _, want := range tt.want {
				assert.ErrorIs(t, err, want)
			}
			if tt.outcome != "" {
				assert.Positive(t, testutil.ToFloat64(f.metrics.queries.WithLabelValues(tt.outcome)))
			}
		})
	}

	_, err := f.svc.Query(ctx, f.chain, QueryRequest{Variables: []string{"C"}, Heuristic: "random"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
	assert.ErrorIs(t, err, inference.ErrUnknownHeuristic)

	f.queries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInferenceService_QueryTimeout(t *testing.T) {
	f := newInferenceFixture(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := f.svc.Query(ctx, f.chain, QueryRequest{Variables: []string{"C"}})
	assert.ErrorIs(t, err, ErrQueryTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.queries.WithLabelValues(OutcomeTimeout)))
}

func TestInferenceService_Marginals(t *testing.T) {
	f := newInferenceFixture(t)
	f.svc.SetWorkers(2)

	marginals, err := f.svc.Marginals(context.Background(), f.asia, nil, "")
	require.NoError(t, err)
	require.Len(t, marginals, 8)

	want := map[string]float64{"asia": 0.01, "tub": 0.0104, "lung": 0.055, "bronc": 0.45, "either": 0.064828}
	for _, m := range marginals {
		assert.Equal(t, []string{"yes", "no"}, m.States)
		require.Len(t, m.Probabilities, 2)
		assert.InDelta(t, 1.0, m.Probabilities[0]+m.Probabilities[1], 1e-9)
		if p, ok := want[m.Variable]; ok {
			assert.InDelta(t, p, m.Probabilities[0], 1e-6, m.Variable)
		}
	}
	assert.Equal(t, "asia", marginals[0].Variable)
	assert.Equal(t, "dysp", marginals[7].Variable)
	f.queries.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInferenceService_MarginalsWithEvidence(t *testing.T) {
	f := newInferenceFixture(t)

	marginals, err := f.svc.Marginals(context.Background(), f.chain, map[string]string{"A": "true"}, "min-degree")
	require.NoError(t, err)
	require.Len(t, marginals, 3)
	assert.Equal(t, []float64{1, 0}, marginals[0].Probabilities)
	assert.InDelta(t, 0.8, marginals[1].Probabilities[0], 1e-9)
	assert.InDelta(t, 0.58, marginals[2].Probabilities[0], 1e-9)

	_, err = f.svc.Marginals(context.Background(), f.asia, map[string]string{"lung": "yes", "either": "no"}, "")
	assert.ErrorIs(t, err, ErrContradictoryEvidence)
}

func TestInferenceService_History(t *testing.T) {
	f := newInferenceFixture(t)
	ctx := context.Background()

	recs := []domain.QueryRecord{{ID: uuid.New(), NetworkID: f.chain, Variables: []string{"C"}}}
	f.queries.On("ListByNetwork", mock.Anything, f.chain, defaultHistoryLimit).Return(recs, nil).Once()
	f.queries.On("ListByNetwork", mock.Anything, f.chain, maxHistoryLimit).Return([]domain.QueryRecord(nil), nil).Once()

	got, err := f.svc.History(ctx, f.chain, 0)
	require.NoError(t, err)
	assert.Equal(t, recs, got)

	_, err = f.svc.History(ctx, f.chain, 10_000)
	require.NoError(t, err)

	_, err = f.svc.History(ctx, uuid.New(), 5)
	assert.ErrorIs(t, err, ErrNetworkNotFound)
	f.queries.AssertExpectations(t)
}

package inference

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/network"
)

var (
	tf    = []string{"true", "false"}
	yesNo = []string{"yes", "no"}
)

func chainNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.New(network.Definition{
		Name: "chain",
		Variables: []network.VariableSpec{
			{Name: "A", States: tf, Table: [][]float64{{0.5, 0.5}}},
			{Name: "B", States: tf, Parents: []string{"A"}, Table: [][]float64{{0.8, 0.2}, {0.2, 0.8}}},
			{Name: "C", States: tf, Parents: []string{"B"}, Table: [][]float64{{0.7, 0.3}, {0.1, 0.9}}},
		},
	})
	require.NoError(t, err)
	return n
}

func asiaNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.New(network.Definition{
		Name: "asia",
		Variables: []network.VariableSpec{
			{Name: "asia", States: yesNo, Table: [][]float64{{0.01, 0.99}}},
			{Name: "tub", States: yesNo, Parents: []string{"asia"}, Table: [][]float64{{0.05, 0.95}, {0.01, 0.99}}},
			{Name: "smoke", States: yesNo, Table: [][]float64{{0.5, 0.5}}},
			{Name: "lung", States: yesNo, Parents: []string{"smoke"}, Table: [][]float64{{0.1, 0.9}, {0.01, 0.99}}},
			{Name: "bronc", States: yesNo, Parents: []string{"smoke"}, Table: [][]float64{{0.6, 0.4}, {0.3, 0.7}}},
			{Name: "either", States: yesNo, Parents: []string{"lung", "tub"}, Table: [][]float64{{1, 0}, {1, 0}, {1, 0}, {0, 1}}},
			{Name: "xray", States: yesNo, Parents: []string{"either"}, Table: [][]float64{{0.98, 0.02}, {0.05, 0.95}}},
			{Name: "dysp", States: yesNo, Parents: []string{"bronc", "either"}, Table: [][]float64{{0.9, 0.1}, {0.8, 0.2}, {0.7, 0.3}, {0.1, 0.9}}},
		},
	})
	require.NoError(t, err)
	return n
}

func prob(t *testing.T, r *Result, assignment map[string]string) float64 {
	t.Helper()
	p, err := r.Probability(assignment)
	require.NoError(t, err)
	return p
}

func TestQuery_Chain(t *testing.T) {
	e := New(chainNetwork(t))
	ctx := context.Background()

	r, err := e.Query(ctx, []string{"C"}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, prob(t, r, map[string]string{"C": "true"}), 1e-6)
	assert.InDelta(t, 0.6, prob(t, r, map[string]string{"C": "false"}), 1e-6)

	r, err = e.Query(ctx, []string{"C"}, map[string]string{"A": "true"})
	require.NoError(t, err)
	assert.InDelta(t, 0.58, prob(t, r, map[string]string{"C": "true"}), 1e-6)
	assert.Equal(t, map[string]string{"A": "true"}, r.Evidence())
}

func TestQuery_DiagnosticEvidence(t *testing.T) {
	e := New(chainNetwork(t))

	r, err := e.Query(context.Background(), []string{"A"}, map[string]string{"C": "true"})
	require.NoError(t, err)
	// P(A=t | C=t) = 0.5 * 0.58 / 0.4
	assert.InDelta(t, 0.725, prob(t, r, map[string]string{"A": "true"}), 1e-9)
}

func TestQuery_AsiaPriors(t *testing.T) {
	e := New(asiaNetwork(t))
	want := map[string]float64{
		"asia":   0.01,
		"tub":    0.0104,
		"smoke":  0.5,
		"lung":   0.055,
		"bronc":  0.45,
		"either": 0.064828,
	}
	for name, p := range want {
		r, err := e.Query(context.Background(), []string{name}, nil)
		require.NoError(t, err, name)
		assert.InDelta(t, p, prob(t, r, map[string]string{name: "yes"}), 1e-6, name)
	}
}

func TestQuery_EvidenceFreeMarginalsSumToOne(t *testing.T) {
	net := asiaNetwork(t)
	e := New(net)
	for _, v := range net.Variables() {
		r, err := e.Query(context.Background(), []string{v.Name}, nil)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, r.Factor().Total(), 1e-6, v.Name)
	}
}

func TestQuery_JointMarginalisesToDirect(t *testing.T) {
	e := New(asiaNetwork(t))
	ctx := context.Background()
	evidence := map[string]string{"xray": "yes"}

	joint, err := e.Query(ctx, []string{"either", "lung", "dysp"}, evidence)
	require.NoError(t, err)
	assert.Equal(t, []string{"dysp", "either", "lung"}, joint.Names())

	for _, name := range []string{"dysp", "either", "lung"} {
		fromJoint, err := joint.Distribution(name)
		require.NoError(t, err)

		direct, err := e.Query(ctx, []string{name}, evidence)
		require.NoError(t, err)
		want, err := direct.Distribution(name)
		require.NoError(t, err)

		for state, p := range want {
			assert.InDelta(t, p, fromJoint[state], 1e-9, "%s=%s", name, state)
		}
	}
}

// marginalise sums the rows of r down to name without going through the factor
// algebra.
func marginalise(r *Result, name string) map[string]float64 {
	pos := slices.Index(r.Names(), name)
	out := make(map[string]float64)
	for _, row := range r.Rows() {
		out[row.States[pos]] += row.Probability
	}
	return out
}

func TestQuery_FullJointMarginalisesToSingles(t *testing.T) {
	for _, net := range []*network.Network{chainNetwork(t), asiaNetwork(t)} {
		t.Run(net.Name(), func(t *testing.T) {
			e := New(net)
			ctx := context.Background()

			var all []string
			for _, v := range net.Variables() {
				all = append(all, v.Name)
			}
			joint, err := e.Query(ctx, all, nil)
			require.NoError(t, err)
			require.Len(t, joint.Rows(), 1<<len(all))
			assert.InDelta(t, 1.0, joint.Factor().Total(), 1e-9)

			for _, name := range all {
				fromJoint := marginalise(joint, name)

				direct, err := e.Query(ctx, []string{name}, nil)
				require.NoError(t, err)
				for _, row := range direct.Rows() {
					assert.InDelta(t, row.Probability, fromJoint[row.States[0]], 1e-9, "%s=%s", name, row.States[0])
				}
			}
		})
	}
}

func TestQuery_CallerCannotCorruptStates(t *testing.T) {
	net := chainNetwork(t)
	e := New(net)
	ctx := context.Background()

	net.Variables()[0].States[0] = "mutated"
	if v, ok := net.Variable("A"); ok {
		v.States[0] = "mutated"
	}

	r, err := e.Query(ctx, []string{"C"}, map[string]string{"A": "true"})
	require.NoError(t, err)
	assert.InDelta(t, 0.58, prob(t, r, map[string]string{"C": "true"}), 1e-9)

	r.Variables()[0].States[0] = "oops"
	rows := r.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"true"}, rows[0].States)
	assert.Equal(t, []string{"true", "false"}, r.Variables()[0].States)
}

func TestQuery_ContradictoryEvidence(t *testing.T) {
	e := New(asiaNetwork(t))

	_, err := e.Query(context.Background(), []string{"dysp"}, map[string]string{"lung": "yes", "either": "no"})
	require.Error(t, err)
	assert.ErrorIs(t, err, bnerr.ErrContradictoryEvidence)

	var ce *bnerr.ContradictoryEvidenceError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, map[string]string{"lung": "yes", "either": "no"}, ce.Evidence)
}

func TestQuery_HeuristicsAgree(t *testing.T) {
	net := asiaNetwork(t)
	evidence := map[string]string{"smoke": "yes", "xray": "yes"}
	query := []string{"dysp", "tub"}

	base, err := New(net).Query(context.Background(), query, evidence)
	require.NoError(t, err)

	for _, h := range []Heuristic{MinFill, MinDegree, MinWeight, Declaration} {
		for _, prune := range []bool{true, false} {
			r, err := New(net, WithHeuristic(h), WithPruning(prune)).Query(context.Background(), query, evidence)
			require.NoError(t, err)
			assert.True(t, floats.EqualApprox(base.Factor().Values(), r.Factor().Values(), 1e-9),
				"%s prune=%v: %v vs %v", h, prune, r.Factor().Values(), base.Factor().Values())
		}
	}
}

func TestQuery_Idempotent(t *testing.T) {
	e := New(asiaNetwork(t))
	evidence := map[string]string{"asia": "yes", "dysp": "yes"}

	first, err := e.Query(context.Background(), []string{"bronc", "tub"}, evidence)
	require.NoError(t, err)
	second, err := e.Query(context.Background(), []string{"tub", "bronc"}, evidence)
	require.NoError(t, err)

	assert.Equal(t, first.Factor().Values(), second.Factor().Values())
	assert.Equal(t, first.Rows(), second.Rows())
}

func TestQuery_EvidencedQueryVariable(t *testing.T) {
	e := New(chainNetwork(t))

	r, err := e.Query(context.Background(), []string{"C", "A", "C"}, map[string]string{"A": "true"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, r.Names())

	rows := r.Rows()
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"true", "true"}, rows[0].States)
	assert.InDelta(t, 0.58, rows[0].Probability, 1e-9)
	assert.Equal(t, []string{"true", "false"}, rows[1].States)
	assert.InDelta(t, 0.42, rows[1].Probability, 1e-9)
	assert.Equal(t, 0.0, rows[2].Probability)
	assert.Equal(t, 0.0, rows[3].Probability)

	dist, err := r.Distribution("A")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist["true"], 1e-12)
	assert.Equal(t, 0.0, dist["false"])

	_, err = r.Distribution("B")
	assert.ErrorIs(t, err, bnerr.ErrNotInScope)
}

func TestQuery_InputErrors(t *testing.T) {
	e := New(chainNetwork(t))
	ctx := context.Background()

	_, err := e.Query(ctx, nil, nil)
	assert.ErrorIs(t, err, bnerr.ErrEmptyQuery)

	_, err = e.Query(ctx, []string{"Z"}, nil)
	var ue *bnerr.UnknownVariableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "Z", ue.Name)

	_, err = e.Query(ctx, []string{"C"}, map[string]string{"Z": "true"})
	assert.ErrorIs(t, err, bnerr.ErrUnknownVariable)

	_, err = e.Query(ctx, []string{"C"}, map[string]string{"A": "maybe"})
	var de *bnerr.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "A", de.Variable)
	assert.Equal(t, "maybe", de.Value)

	for _, err := range []error{ue, de, bnerr.ErrEmptyQuery} {
		assert.True(t, bnerr.IsInputError(err))
	}
}

func TestQuery_Cancelled(t *testing.T) {
	e := New(chainNetwork(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Query(ctx, []string{"C"}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_ObserverAndStats(t *testing.T) {
	var steps []Step
	e := New(asiaNetwork(t), WithObserver(func(s Step) { steps = append(steps, s) }))

	r, err := e.Query(context.Background(), []string{"dysp"}, nil)
	require.NoError(t, err)

	stats := r.Stats()
	assert.Equal(t, len(steps), stats.Steps)
	// xray is not an ancestor of dysp and is pruned.
	assert.Len(t, stats.Order, 6)
	assert.Equal(t, 7, stats.Relevant)
	for i, s := range steps {
		assert.Equal(t, stats.Order[s.Index], s.Variable, "step %d", i)
		assert.NotContains(t, s.Scope, s.Variable)
		assert.LessOrEqual(t, s.Size, stats.MaxFactorSize)
	}
}

func TestQuery_PruningDropsBarrenVariables(t *testing.T) {
	e := New(asiaNetwork(t))
	r, err := e.Query(context.Background(), []string{"tub"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Stats().Relevant)

	r, err = New(asiaNetwork(t), WithPruning(false)).Query(context.Background(), []string{"tub"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 8, r.Stats().Relevant)
	assert.InDelta(t, 0.0104, prob(t, r, map[string]string{"tub": "yes"}), 1e-9)
}

func TestEliminationOrder(t *testing.T) {
	net := chainNetwork(t)

	order, err := New(net).EliminationOrder([]string{"C"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, order)

	order, err = New(net).EliminationOrder([]string{"A"}, map[string]string{"B": "true"})
	require.NoError(t, err)
	assert.Empty(t, order)

	// Without pruning, C is eliminated too. A and C tie on fill-in; A is declared first.
	order, err = New(net, WithPruning(false)).EliminationOrder([]string{"B"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, order)
}

func TestEngine_ConcurrentQueries(t *testing.T) {
	net := asiaNetwork(t)
	e := New(net)
	evidence := map[string]string{"xray": "yes"}

	want, err := e.Query(context.Background(), []string{"lung"}, evidence)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := e.Query(context.Background(), []string{"lung"}, evidence)
			if err != nil {
				errs <- err
				return
			}
			if !floats.Equal(r.Factor().Values(), want.Factor().Values()) {
				errs <- errors.New("concurrent result differs")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestParseHeuristic(t *testing.T) {
	for _, h := range []Heuristic{MinFill, MinDegree, MinWeight, Declaration} {
		got, err := ParseHeuristic(h.String())
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}

	got, err := ParseHeuristic("")
	require.NoError(t, err)
	assert.Equal(t, MinFill, got)

	_, err = ParseHeuristic("random")
	assert.ErrorIs(t, err, ErrUnknownHeuristic)
}

package inference

import (
	"maps"
	"slices"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/factor"
)

// Stats summarises the work one query did. Relevant counts the CPTs left
// after pruning.
type Stats struct {
	Order         []string
	Steps         int
	MaxFactorSize int
	Relevant      int
}

// Row is one assignment of the result variables and its probability. States
// line up with Result.Variables.
type Row struct {
	States      []string `json:"states"`
	Probability float64  `json:"probability"`
}

// Result is the normalized posterior over the query variables, scoped in
// lexicographic name order.
type Result struct {
	factor   *factor.Factor
	evidence map[string]string
	stats    Stats
}

func newResult(f *factor.Factor, evidence map[string]string, stats Stats) (*Result, error) {
	sorted, err := f.Reorder(slices.Sorted(slices.Values(f.Names())))
	if err != nil {
		return nil, err
	}
	return &Result{factor: sorted, evidence: maps.Clone(evidence), stats: stats}, nil
}

func (r *Result) Variables() []factor.Variable { return r.factor.Scope() }

func (r *Result) Names() []string { return r.factor.Names() }

func (r *Result) Factor() *factor.Factor { return r.factor }

func (r *Result) Evidence() map[string]string { return maps.Clone(r.evidence) }

func (r *Result) Stats() Stats {
	s := r.stats
	s.Order = slices.Clone(s.Order)
	return s
}

// Rows lists every assignment, names in lexicographic order and each domain
// in declared order.
func (r *Result) Rows() []Row {
	scope := r.factor.Scope()
	rows := make([]Row, 0, r.factor.Len())
	for states, p := range r.factor.All() {
		labels := make([]string, len(states))
		for d, k := range states {
			labels[d] = scope[d].States[k]
		}
		rows = append(rows, Row{States: labels, Probability: p})
	}
	return rows
}

// Probability looks up one full assignment of the result variables.
func (r *Result) Probability(assignment map[string]string) (float64, error) {
	return r.factor.Value(assignment)
}

// Distribution marginalises the result down to name.
func (r *Result) Distribution(name string) (map[string]float64, error) {
	v, ok := r.factor.Variable(name)
	if !ok {
		return nil, &bnerr.NotInScopeError{Variable: name}
	}
	f := r.factor
	for _, other := range f.Names() {
		if other == name {
			continue
		}
		var err error
		if f, err = f.SumOut(other); err != nil {
			return nil, err
		}
	}
	values := f.Values()
	out := make(map[string]float64, len(values))
	for i, s := range v.States {
		out[s] = values[i]
	}
	return out, nil
}

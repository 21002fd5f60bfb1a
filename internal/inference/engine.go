// Package inference answers marginal queries on a network by variable
// elimination.
//
// An Engine holds no state between calls, so one engine (or several) may
// query the same network from any number of goroutines.
package inference

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/factor"
	"github.com/Harshitk-cp/marginal/internal/network"
)

// Step describes one elimination: Factors tables mentioned Variable and were
// multiplied into a table of Size entries, which summed out to Scope.
type Step struct {
	Index    int
	Variable string
	Factors  int
	Size     int
	Scope    []string
}

type Engine struct {
	net       *network.Network
	heuristic Heuristic
	prune     bool
	observer  func(Step)
}

type Option func(*Engine)

func WithHeuristic(h Heuristic) Option {
	return func(e *Engine) { e.heuristic = h }
}

// WithPruning controls whether variables that are not ancestors of the query
// or the evidence are dropped before elimination. On by default.
func WithPruning(on bool) Option {
	return func(e *Engine) { e.prune = on }
}

// WithObserver registers fn to receive every elimination step. fn runs on the
// querying goroutine.
func WithObserver(fn func(Step)) Option {
	return func(e *Engine) { e.observer = fn }
}

func New(net *network.Network, opts ...Option) *Engine {
	e := &Engine{net: net, heuristic: MinFill, prune: true}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Network() *network.Network { return e.net }

func (e *Engine) Heuristic() Heuristic { return e.heuristic }

// problem is a validated query with evidence already applied to its factors.
type problem struct {
	free     []string
	observed []string
	evidence map[string]string
	factors  []*factor.Factor
	hidden   []string
	relevant int
}

func (e *Engine) prepare(query []string, evidence map[string]string) (*problem, error) {
	if len(query) == 0 {
		return nil, bnerr.ErrEmptyQuery
	}

	p := &problem{evidence: make(map[string]string, len(evidence))}
	seen := make(map[string]bool, len(query))
	for _, name := range query {
		if _, ok := e.net.Variable(name); !ok {
			return nil, &bnerr.UnknownVariableError{Name: name}
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := evidence[name]; ok {
			p.observed = append(p.observed, name)
		} else {
			p.free = append(p.free, name)
		}
	}

	observed := slices.Sorted(maps.Keys(evidence))
	for _, name := range observed {
		v, ok := e.net.Variable(name)
		if !ok {
			return nil, &bnerr.UnknownVariableError{Name: name}
		}
		if _, ok := v.StateIndex(evidence[name]); !ok {
			return nil, &bnerr.DomainError{Variable: name, Value: evidence[name]}
		}
		p.evidence[name] = evidence[name]
	}

	var relevant []string
	if e.prune {
		var err error
		relevant, err = e.net.Ancestors(append(slices.Clone(query), observed...)...)
		if err != nil {
			return nil, err
		}
	} else {
		for _, v := range e.net.Variables() {
			relevant = append(relevant, v.Name)
		}
	}
	p.relevant = len(relevant)

	for _, name := range relevant {
		cpt, err := e.net.CPT(name)
		if err != nil {
			return nil, err
		}
		p.factors = append(p.factors, cpt)
		if !seen[name] {
			if _, ok := p.evidence[name]; !ok {
				p.hidden = append(p.hidden, name)
			}
		}
	}

	for _, name := range observed {
		for i, f := range p.factors {
			if !f.Contains(name) {
				continue
			}
			r, err := f.Restrict(name, p.evidence[name])
			if err != nil {
				return nil, err
			}
			p.factors[i] = r
		}
	}
	return p, nil
}

// EliminationOrder reports the order Query would eliminate hidden variables in.
func (e *Engine) EliminationOrder(query []string, evidence map[string]string) ([]string, error) {
	p, err := e.prepare(query, evidence)
	if err != nil {
		return nil, err
	}
	return order(e.net, p.factors, p.hidden, e.heuristic), nil
}

// Query computes the posterior distribution of query given evidence. ctx is
// checked between elimination steps; a cancelled query returns ctx.Err().
func (e *Engine) Query(ctx context.Context, query []string, evidence map[string]string) (*Result, error) {
	p, err := e.prepare(query, evidence)
	if err != nil {
		return nil, err
	}

	elim := order(e.net, p.factors, p.hidden, e.heuristic)
	stats := Stats{Order: elim, Relevant: p.relevant}
	factors := p.factors
	for i, name := range elim {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var touching, rest []*factor.Factor
		for _, f := range factors {
			if f.Contains(name) {
				touching = append(touching, f)
			} else {
				rest = append(rest, f)
			}
		}
		if len(touching) == 0 {
			continue
		}

		prod, err := factor.Product(touching...)
		if err != nil {
			return nil, err
		}
		summed, err := prod.SumOut(name)
		if err != nil {
			return nil, err
		}
		factors = append(rest, summed)

		stats.Steps++
		stats.MaxFactorSize = max(stats.MaxFactorSize, prod.Len())
		if e.observer != nil {
			e.observer(Step{Index: i, Variable: name, Factors: len(touching), Size: prod.Len(), Scope: summed.Names()})
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	joint, err := factor.Product(factors...)
	if err != nil {
		return nil, err
	}
	if !sameNames(joint.Names(), p.free) {
		return nil, &bnerr.InvariantViolation{
			Detail: fmt.Sprintf("final scope %v, want %v", joint.Names(), p.free),
		}
	}
	for _, name := range p.observed {
		v, _ := e.net.Variable(name)
		ind, err := factor.Indicator(v, p.evidence[name])
		if err != nil {
			return nil, err
		}
		if joint, err = joint.Multiply(ind); err != nil {
			return nil, err
		}
	}
	stats.MaxFactorSize = max(stats.MaxFactorSize, joint.Len())

	norm, err := joint.Normalize()
	if err != nil {
		if !errors.Is(err, bnerr.ErrDegenerateFactor) {
			return nil, err
		}
		if len(p.evidence) > 0 {
			return nil, &bnerr.ContradictoryEvidenceError{Evidence: maps.Clone(p.evidence)}
		}
		return nil, &bnerr.InvariantViolation{Detail: err.Error()}
	}
	return newResult(norm, p.evidence, stats)
}

func sameNames(a, b []string) bool {
	return len(a) == len(b) && !slices.ContainsFunc(a, func(n string) bool { return !slices.Contains(b, n) })
}

// Package network holds the validated, immutable Bayesian network model: the
// variables, the parent to child edges and one conditional probability table
// per variable.
package network

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
	"github.com/Harshitk-cp/marginal/internal/factor"
)

// RowTolerance bounds how far a CPT row may sum away from 1.
const RowTolerance = 1e-6

// Network is safe for concurrent use; nothing mutates it after New returns.
type Network struct {
	name       string
	properties map[string]string
	vars       []factor.Variable
	varProps   []map[string]string
	index      map[string]int
	parents    [][]int
	children   [][]int
	cpts       []*factor.Factor
	order      []int
}

// Edge is a directed parent to child link.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// New validates def and builds the network. Checks run in a fixed order:
// declarations, parent references, acyclicity, CPT scope, then CPT rows.
func New(def Definition) (*Network, error) {
	n := &Network{
		name:       def.Name,
		properties: cloneMap(def.Properties),
		vars:       make([]factor.Variable, len(def.Variables)),
		varProps:   make([]map[string]string, len(def.Variables)),
		index:      make(map[string]int, len(def.Variables)),
		parents:    make([][]int, len(def.Variables)),
		children:   make([][]int, len(def.Variables)),
		cpts:       make([]*factor.Factor, len(def.Variables)),
	}

	for i, spec := range def.Variables {
		if err := checkDeclaration(spec); err != nil {
			return nil, err
		}
		if _, dup := n.index[spec.Name]; dup {
			return nil, &bnerr.DefinitionError{Variable: spec.Name, Detail: "declared more than once"}
		}
		n.index[spec.Name] = i
		n.vars[i] = factor.NewVariable(spec.Name, spec.States...)
		n.varProps[i] = cloneMap(spec.Properties)
	}

	for i, spec := range def.Variables {
		seen := make(map[string]bool, len(spec.Parents))
		for _, p := range spec.Parents {
			if p == spec.Name {
				return nil, &bnerr.CycleError{Cycle: []string{p, p}}
			}
			j, ok := n.index[p]
			if !ok {
				return nil, &bnerr.ScopeMismatchError{Variable: spec.Name, Detail: fmt.Sprintf("parent %q is not declared", p)}
			}
			if seen[p] {
				return nil, &bnerr.ScopeMismatchError{Variable: spec.Name, Detail: fmt.Sprintf("parent %q listed twice", p)}
			}
			seen[p] = true
			n.parents[i] = append(n.parents[i], j)
			n.children[j] = append(n.children[j], i)
		}
	}
	for i := range n.children {
		slices.Sort(n.children[i])
	}

	if err := n.sortTopologically(); err != nil {
		return nil, err
	}

	for i, spec := range def.Variables {
		cpt, err := n.buildCPT(i, spec)
		if err != nil {
			return nil, err
		}
		if err := checkRows(spec.Name, cpt); err != nil {
			return nil, err
		}
		n.cpts[i] = cpt
	}
	return n, nil
}

func checkDeclaration(spec VariableSpec) error {
	if spec.Name == "" {
		return &bnerr.DefinitionError{Variable: spec.Name, Detail: "empty name"}
	}
	if len(spec.States) == 0 {
		return &bnerr.DefinitionError{Variable: spec.Name, Detail: "no states"}
	}
	seen := make(map[string]bool, len(spec.States))
	for _, s := range spec.States {
		if s == "" {
			return &bnerr.DefinitionError{Variable: spec.Name, Detail: "empty state label"}
		}
		if seen[s] {
			return &bnerr.DefinitionError{Variable: spec.Name, Detail: fmt.Sprintf("state %q repeated", s)}
		}
		seen[s] = true
	}
	return nil
}

// sortTopologically fills n.order or reports the first cycle it finds.
func (n *Network) sortTopologically() error {
	g := simple.NewDirectedGraph()
	for i := range n.vars {
		g.AddNode(simple.Node(i))
	}
	for child, ps := range n.parents {
		for _, p := range ps {
			g.SetEdge(g.NewEdge(simple.Node(p), simple.Node(child)))
		}
	}

	sorted, err := topo.SortStabilized(g, nil)
	if err != nil {
		var uo topo.Unorderable
		if errors.As(err, &uo) && len(uo) > 0 {
			members := make(map[int]bool, len(uo[0]))
			for _, node := range uo[0] {
				members[int(node.ID())] = true
			}
			return &bnerr.CycleError{Cycle: n.names(n.cycleWithin(members))}
		}
		return fmt.Errorf("sort network: %w", err)
	}

	n.order = make([]int, len(sorted))
	for i, node := range sorted {
		n.order[i] = int(node.ID())
	}
	return nil
}

// cycleWithin walks a strongly connected component from its first declared
// member and returns a closed path, start repeated at the end.
func (n *Network) cycleWithin(members map[int]bool) []int {
	start := -1
	for id := range members {
		if start < 0 || id < start {
			start = id
		}
	}

	prev := map[int]int{start: -1}
	queue := []int{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range n.children[cur] {
			if !members[next] {
				continue
			}
			if next == start {
				var path []int
				for at := cur; at >= 0; at = prev[at] {
					path = append(path, at)
				}
				slices.Reverse(path)
				return append(path, start)
			}
			if _, ok := prev[next]; !ok {
				prev[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return []int{start}
}

func (n *Network) buildCPT(i int, spec VariableSpec) (*factor.Factor, error) {
	scope := make([]factor.Variable, 0, len(n.parents[i])+1)
	for _, p := range n.parents[i] {
		scope = append(scope, n.vars[p])
	}
	scope = append(scope, n.vars[i])

	if spec.CPT != nil {
		if spec.Table != nil {
			return nil, &bnerr.DefinitionError{Variable: spec.Name, Detail: "both a table and a cpt factor given"}
		}
		return n.adoptCPT(spec.Name, scope, spec.CPT)
	}

	rows := 1
	for _, v := range scope[:len(scope)-1] {
		rows *= v.Cardinality()
	}
	if len(spec.Table) != rows {
		return nil, &bnerr.ScopeMismatchError{
			Variable: spec.Name,
			Detail:   fmt.Sprintf("cpt has %d rows, parents need %d", len(spec.Table), rows),
		}
	}
	card := n.vars[i].Cardinality()
	values := make([]float64, 0, rows*card)
	for r, row := range spec.Table {
		if len(row) != card {
			return nil, &bnerr.ScopeMismatchError{
				Variable: spec.Name,
				Detail:   fmt.Sprintf("cpt row %d has %d entries, variable has %d states", r, len(row), card),
			}
		}
		if slices.ContainsFunc(row, func(x float64) bool { return x < 0 || math.IsNaN(x) || math.IsInf(x, 0) }) {
			return nil, &bnerr.NormalizationError{Variable: spec.Name, Row: r, Sum: floats.Sum(row)}
		}
		values = append(values, row...)
	}
	return factor.New(scope, values)
}

// adoptCPT accepts an explicit factor whose scope is the variable plus its
// parents in any order and lays it out parents first, child last.
func (n *Network) adoptCPT(name string, scope []factor.Variable, cpt *factor.Factor) (*factor.Factor, error) {
	if cpt.Width() != len(scope) {
		return nil, &bnerr.ScopeMismatchError{
			Variable: name,
			Detail:   fmt.Sprintf("cpt scope %v, want %v", cpt.Names(), namesOf(scope)),
		}
	}
	for _, v := range scope {
		got, ok := cpt.Variable(v.Name)
		if !ok || !got.SameDomain(v) {
			return nil, &bnerr.ScopeMismatchError{
				Variable: name,
				Detail:   fmt.Sprintf("cpt scope %v, want %v", cpt.Names(), namesOf(scope)),
			}
		}
	}
	return cpt.Reorder(namesOf(scope))
}

// checkRows expects the child as the last scope variable.
func checkRows(name string, cpt *factor.Factor) error {
	scope := cpt.Scope()
	card := scope[len(scope)-1].Cardinality()
	values := cpt.Values()
	for off, row := 0, 0; off < len(values); off, row = off+card, row+1 {
		sum := 0.0
		for _, x := range values[off : off+card] {
			sum += x
		}
		if math.Abs(sum-1) > RowTolerance {
			return &bnerr.NormalizationError{Variable: name, Row: row, Sum: sum}
		}
	}
	return nil
}

func namesOf(vars []factor.Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name
	}
	return out
}

func (n *Network) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = n.vars[id].Name
	}
	return out
}

func (n *Network) lookup(name string) (int, error) {
	i, ok := n.index[name]
	if !ok {
		return -1, &bnerr.UnknownVariableError{Name: name}
	}
	return i, nil
}

func (n *Network) Name() string { return n.name }

func (n *Network) Properties() map[string]string { return cloneMap(n.properties) }

// Len is the number of variables.
func (n *Network) Len() int { return len(n.vars) }

// Variables returns the variables in declaration order.
func (n *Network) Variables() []factor.Variable {
	out := make([]factor.Variable, len(n.vars))
	for i, v := range n.vars {
		out[i] = v.Clone()
	}
	return out
}

func (n *Network) Variable(name string) (factor.Variable, bool) {
	i, ok := n.index[name]
	if !ok {
		return factor.Variable{}, false
	}
	return n.vars[i].Clone(), true
}

// Index returns the declaration position of name.
func (n *Network) Index(name string) (int, bool) {
	i, ok := n.index[name]
	return i, ok
}

// CPT returns the table of name, scoped parents first and name last.
func (n *Network) CPT(name string) (*factor.Factor, error) {
	i, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	return n.cpts[i], nil
}

// Parents returns the parents of name in declared order.
func (n *Network) Parents(name string) ([]string, error) {
	i, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	return n.names(n.parents[i]), nil
}

// Children returns the children of name in declaration order.
func (n *Network) Children(name string) ([]string, error) {
	i, err := n.lookup(name)
	if err != nil {
		return nil, err
	}
	return n.names(n.children[i]), nil
}

func (n *Network) Edges() []Edge {
	var out []Edge
	for child, ps := range n.parents {
		for _, p := range ps {
			out = append(out, Edge{From: n.vars[p].Name, To: n.vars[child].Name})
		}
	}
	return out
}

// TopologicalOrder yields every variable after all of its parents.
func (n *Network) TopologicalOrder() iter.Seq[factor.Variable] {
	return func(yield func(factor.Variable) bool) {
		for _, i := range n.order {
			if !yield(n.vars[i].Clone()) {
				return
			}
		}
	}
}

// Ancestors returns names together with all of their ancestors, in
// declaration order.
func (n *Network) Ancestors(names ...string) ([]string, error) {
	keep := make([]bool, len(n.vars))
	stack := make([]int, 0, len(names))
	for _, name := range names {
		i, err := n.lookup(name)
		if err != nil {
			return nil, err
		}
		if !keep[i] {
			keep[i] = true
			stack = append(stack, i)
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range n.parents[i] {
			if !keep[p] {
				keep[p] = true
				stack = append(stack, p)
			}
		}
	}

	var out []string
	for i, k := range keep {
		if k {
			out = append(out, n.vars[i].Name)
		}
	}
	return out, nil
}

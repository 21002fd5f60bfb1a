package factor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
)

// walk visits every entry of a table over scope in row-major order. For each
// source table k, offs[k] is the offset of the matching entry, computed from
// bases[k] and the per-variable strides[k] (zero for variables the source does
// not contain).
func walk(scope []Variable, bases []int, strides [][]int, fn func(i int, offs []int)) {
	offs := append([]int(nil), bases...)
	states := make([]int, len(scope))
	size := tableSize(scope)
	for i := 0; i < size; i++ {
		fn(i, offs)
		for d := len(scope) - 1; d >= 0; d-- {
			states[d]++
			for k := range offs {
				offs[k] += strides[k][d]
			}
			if states[d] < scope[d].Cardinality() {
				break
			}
			for k := range offs {
				offs[k] -= strides[k][d] * states[d]
			}
			states[d] = 0
		}
	}
}

// stridesIn maps each variable of scope to its stride in f, or 0 when f does
// not mention it.
func (f *Factor) stridesIn(scope []Variable) []int {
	out := make([]int, len(scope))
	for i, v := range scope {
		if pos := f.position(v.Name); pos >= 0 {
			out[i] = f.strides[pos]
		}
	}
	return out
}

func without(scope []Variable, pos int) []Variable {
	out := make([]Variable, 0, len(scope)-1)
	out = append(out, scope[:pos]...)
	return append(out, scope[pos+1:]...)
}

// Restrict fixes name to state and drops it from the scope.
func (f *Factor) Restrict(name, state string) (*Factor, error) {
	pos := f.position(name)
	if pos < 0 {
		return nil, &bnerr.NotInScopeError{Variable: name}
	}
	k, ok := f.scope[pos].StateIndex(state)
	if !ok {
		return nil, &bnerr.DomainError{Variable: name, Value: state}
	}

	scope := without(f.scope, pos)
	out := make([]float64, tableSize(scope))
	walk(scope, []int{k * f.strides[pos]}, [][]int{f.stridesIn(scope)}, func(i int, offs []int) {
		out[i] = f.values[offs[0]]
	})
	return build(scope, out), nil
}

// Multiply returns the factor product. The result scope lists f's variables
// first, then the variables only g mentions, in g's order.
func (f *Factor) Multiply(g *Factor) (*Factor, error) {
	scope := make([]Variable, len(f.scope), len(f.scope)+len(g.scope))
	copy(scope, f.scope)
	for _, v := range g.scope {
		pos := f.position(v.Name)
		if pos < 0 {
			scope = append(scope, v)
			continue
		}
		if !f.scope[pos].SameDomain(v) {
			return nil, &bnerr.ScopeMismatchError{
				Variable: v.Name,
				Detail:   fmt.Sprintf("domains %v and %v differ", f.scope[pos].States, v.States),
			}
		}
	}

	out := make([]float64, tableSize(scope))
	strides := [][]int{f.stridesIn(scope), g.stridesIn(scope)}
	walk(scope, []int{0, 0}, strides, func(i int, offs []int) {
		out[i] = f.values[offs[0]] * g.values[offs[1]]
	})
	return build(scope, out), nil
}

// SumOut marginalizes name away.
func (f *Factor) SumOut(name string) (*Factor, error) {
	pos := f.position(name)
	if pos < 0 {
		return nil, &bnerr.NotInScopeError{Variable: name}
	}

	card := f.scope[pos].Cardinality()
	step := f.strides[pos]
	scope := without(f.scope, pos)
	out := make([]float64, tableSize(scope))
	walk(scope, []int{0}, [][]int{f.stridesIn(scope)}, func(i int, offs []int) {
		sum := 0.0
		for j := 0; j < card; j++ {
			sum += f.values[offs[0]+j*step]
		}
		out[i] = sum
	})
	return build(scope, out), nil
}

// Normalize scales the table so that it sums to 1.
func (f *Factor) Normalize() (*Factor, error) {
	total := f.Total()
	if !(total > MinTotal) || math.IsInf(total, 0) {
		return nil, &bnerr.DegenerateFactorError{Total: total}
	}
	out := f.Values()
	floats.Scale(1/total, out)
	return build(f.scope, out), nil
}

// Reorder returns the same factor with its scope permuted to order.
func (f *Factor) Reorder(order []string) (*Factor, error) {
	if len(order) != len(f.scope) {
		return nil, &bnerr.ScopeMismatchError{
			Variable: fmt.Sprint(order),
			Detail:   fmt.Sprintf("reorder needs %d variables, got %d", len(f.scope), len(order)),
		}
	}
	scope := make([]Variable, len(order))
	used := make(map[string]bool, len(order))
	for i, name := range order {
		pos := f.position(name)
		if pos < 0 || used[name] {
			return nil, &bnerr.ScopeMismatchError{Variable: name, Detail: "not a permutation of the scope"}
		}
		used[name] = true
		scope[i] = f.scope[pos]
	}

	out := make([]float64, len(f.values))
	walk(scope, []int{0}, [][]int{f.stridesIn(scope)}, func(i int, offs []int) {
		out[i] = f.values[offs[0]]
	})
	return build(scope, out), nil
}

// Product multiplies fs left to right. No factors yields the scalar 1.
func Product(fs ...*Factor) (*Factor, error) {
	if len(fs) == 0 {
		return Scalar(1), nil
	}
	acc := fs[0]
	for _, g := range fs[1:] {
		next, err := acc.Multiply(g)
		if err != nil {
			return nil, err
		}
		acc = next
	}
	return acc, nil
}

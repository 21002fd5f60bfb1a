// Package factor implements immutable discrete factors and the algebra used by
// variable elimination: restriction, product, marginalization and
// normalization.
//
// A factor stores its table densely in row-major order over its scope: the
// last scope variable varies fastest. Every operation returns a new factor and
// every sum runs in table order, so identical inputs give bit-identical
// outputs.
package factor

import (
	"fmt"
	"iter"
	"math"
	"strings"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
)

// MinTotal is the smallest table total Normalize accepts.
const MinTotal = 1e-300

type Factor struct {
	scope   []Variable
	strides []int
	values  []float64
}

// New builds a factor over scope from a row-major table.
func New(scope []Variable, values []float64) (*Factor, error) {
	seen := make(map[string]bool, len(scope))
	for _, v := range scope {
		if v.Cardinality() == 0 {
			return nil, &bnerr.ScopeMismatchError{Variable: v.Name, Detail: "empty domain"}
		}
		if seen[v.Name] {
			return nil, &bnerr.ScopeMismatchError{Variable: v.Name, Detail: "appears twice in scope"}
		}
		seen[v.Name] = true
	}

	size := tableSize(scope)
	if len(values) != size {
		return nil, &bnerr.ScopeMismatchError{
			Variable: strings.Join(names(scope), ","),
			Detail:   fmt.Sprintf("table has %d entries, scope needs %d", len(values), size),
		}
	}
	for i, x := range values {
		if x < 0 || math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, &bnerr.InvariantViolation{
				Detail: fmt.Sprintf("factor entry %d is %g, want finite and non-negative", i, x),
			}
		}
	}

	return build(cloneScope(scope), append([]float64(nil), values...)), nil
}

// Scalar returns a factor with empty scope holding v.
func Scalar(v float64) *Factor {
	return build(nil, []float64{v})
}

// Indicator returns the point mass on state of v.
func Indicator(v Variable, state string) (*Factor, error) {
	idx, ok := v.StateIndex(state)
	if !ok {
		return nil, &bnerr.DomainError{Variable: v.Name, Value: state}
	}
	values := make([]float64, v.Cardinality())
	values[idx] = 1
	return build([]Variable{v.Clone()}, values), nil
}

// build wraps already validated parts without copying them.
func build(scope []Variable, values []float64) *Factor {
	return &Factor{scope: scope, strides: layout(scope), values: values}
}

func layout(scope []Variable) []int {
	strides := make([]int, len(scope))
	stride := 1
	for i := len(scope) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= scope[i].Cardinality()
	}
	return strides
}

func tableSize(scope []Variable) int {
	size := 1
	for _, v := range scope {
		size *= v.Cardinality()
	}
	return size
}

func names(scope []Variable) []string {
	out := make([]string, len(scope))
	for i, v := range scope {
		out[i] = v.Name
	}
	return out
}

func cloneScope(scope []Variable) []Variable {
	out := make([]Variable, len(scope))
	for i, v := range scope {
		out[i] = v.Clone()
	}
	return out
}

// Scope returns a deep copy of the factor's variables.
func (f *Factor) Scope() []Variable {
	return cloneScope(f.scope)
}

func (f *Factor) Names() []string {
	return names(f.scope)
}

// Width is the number of variables in scope.
func (f *Factor) Width() int {
	return len(f.scope)
}

// Len is the number of table entries.
func (f *Factor) Len() int {
	return len(f.values)
}

func (f *Factor) Values() []float64 {
	return append([]float64(nil), f.values...)
}

func (f *Factor) Contains(name string) bool {
	return f.position(name) >= 0
}

func (f *Factor) Variable(name string) (Variable, bool) {
	if pos := f.position(name); pos >= 0 {
		return f.scope[pos].Clone(), true
	}
	return Variable{}, false
}

func (f *Factor) position(name string) int {
	for i, v := range f.scope {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// Total sums every entry in table order.
func (f *Factor) Total() float64 {
	total := 0.0
	for _, x := range f.values {
		total += x
	}
	return total
}

// Value looks up the entry for assignment. Keys outside the scope are ignored;
// every scope variable must be assigned.
func (f *Factor) Value(assignment map[string]string) (float64, error) {
	idx := 0
	for i, v := range f.scope {
		state, ok := assignment[v.Name]
		if !ok {
			return 0, &bnerr.UnassignedError{Variable: v.Name}
		}
		k, ok := v.StateIndex(state)
		if !ok {
			return 0, &bnerr.DomainError{Variable: v.Name, Value: state}
		}
		idx += k * f.strides[i]
	}
	return f.values[idx], nil
}

// All yields every assignment (as state indices aligned with Scope) and its
// entry, in table order.
func (f *Factor) All() iter.Seq2[[]int, float64] {
	return func(yield func([]int, float64) bool) {
		states := make([]int, len(f.scope))
		for i, x := range f.values {
			rem := i
			for d := range f.scope {
				states[d] = rem / f.strides[d]
				rem %= f.strides[d]
			}
			if !yield(append([]int(nil), states...), x) {
				return
			}
		}
	}
}

func (f *Factor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "factor(%s)\n", strings.Join(f.Names(), ", "))
	for states, x := range f.All() {
		b.WriteString("  ")
		for d, k := range states {
			fmt.Fprintf(&b, "%s=%s ", f.scope[d].Name, f.scope[d].States[k])
		}
		fmt.Fprintf(&b, "-> %g\n", x)
	}
	return b.String()
}

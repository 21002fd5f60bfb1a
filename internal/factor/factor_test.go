package factor

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/Harshitk-cp/marginal/internal/bnerr"
)

var (
	varA = NewVariable("A", "t", "f")
	varB = NewVariable("B", "t", "f")
	varC = NewVariable("C", "lo", "mid", "hi")
)

func mustNew(t *testing.T, scope []Variable, values ...float64) *Factor {
	t.Helper()
	f, err := New(scope, values)
	require.NoError(t, err)
	return f
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		scope   []Variable
		values  []float64
		wantErr error
	}{
		{"ok", []Variable{varA, varC}, make([]float64, 6), nil},
		{"wrong size", []Variable{varA, varC}, make([]float64, 5), bnerr.ErrStructural},
		{"duplicate", []Variable{varA, varA}, make([]float64, 4), bnerr.ErrStructural},
		{"empty domain", []Variable{NewVariable("X")}, nil, bnerr.ErrStructural},
		{"negative", []Variable{varA}, []float64{-0.1, 1.1}, bnerr.ErrInvariant},
		{"nan", []Variable{varA}, []float64{math.NaN(), 1}, bnerr.ErrInvariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.scope, tt.values)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_CopiesInput(t *testing.T) {
	values := []float64{0.3, 0.7}
	f := mustNew(t, []Variable{varA}, values...)
	values[0] = 9
	assert.Equal(t, []float64{0.3, 0.7}, f.Values())

	got := f.Values()
	got[1] = 9
	assert.Equal(t, 0.7, f.Values()[1])
}

func TestScope_ReturnsCopies(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC}, 1, 2, 3, 4, 5, 6)

	scope := f.Scope()
	scope[0].States[0] = "mutated"
	v, ok := f.Variable("C")
	require.True(t, ok)
	v.States[2] = "mutated"

	assert.Equal(t, []string{"t", "f"}, f.Scope()[0].States)
	got, _ := f.Variable("C")
	assert.Equal(t, []string{"lo", "mid", "hi"}, got.States)
	x, err := f.Value(map[string]string{"A": "t", "C": "hi"})
	require.NoError(t, err)
	assert.Equal(t, 3.0, x)
}

func TestValue(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC}, 1, 2, 3, 4, 5, 6)

	v, err := f.Value(map[string]string{"A": "f", "C": "mid", "Z": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, 5.0, v)

	_, err = f.Value(map[string]string{"A": "t"})
	assert.ErrorIs(t, err, bnerr.ErrDomain)
	var ue *bnerr.UnassignedError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "C", ue.Variable)
	assert.EqualError(t, err, `assignment is missing variable "C"`)

	_, err = f.Value(map[string]string{"A": "t", "C": "max"})
	var de *bnerr.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "C", de.Variable)
	assert.Equal(t, "max", de.Value)
}

func TestAll_TableOrder(t *testing.T) {
	f := mustNew(t, []Variable{varA, varB}, 1, 2, 3, 4)
	var states [][]int
	var values []float64
	for s, x := range f.All() {
		states = append(states, s)
		values = append(values, x)
	}
	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {1, 0}, {1, 1}}, states)
	assert.Equal(t, []float64{1, 2, 3, 4}, values)
}

func TestRestrict(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC}, 1, 2, 3, 4, 5, 6)

	g, err := f.Restrict("C", "hi")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, g.Names())
	assert.Equal(t, []float64{3, 6}, g.Values())

	g, err = f.Restrict("A", "f")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, g.Names())
	assert.Equal(t, []float64{4, 5, 6}, g.Values())

	s, err := g.Restrict("C", "lo")
	require.NoError(t, err)
	assert.Equal(t, 0, s.Width())
	assert.Equal(t, []float64{4}, s.Values())
}

func TestRestrict_Errors(t *testing.T) {
	f := mustNew(t, []Variable{varA}, 0.5, 0.5)

	_, err := f.Restrict("B", "t")
	assert.ErrorIs(t, err, bnerr.ErrNotInScope)

	_, err = f.Restrict("A", "maybe")
	assert.ErrorIs(t, err, bnerr.ErrDomain)
}

func TestMultiply(t *testing.T) {
	fa := mustNew(t, []Variable{varA}, 0.6, 0.4)
	fab := mustNew(t, []Variable{varB, varA}, 0.9, 0.2, 0.1, 0.8)

	g, err := fa.Multiply(fab)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, g.Names())
	// (A=t,B=t) (A=t,B=f) (A=f,B=t) (A=f,B=f)
	want := []float64{0.6 * 0.9, 0.6 * 0.1, 0.4 * 0.2, 0.4 * 0.8}
	assert.True(t, floats.EqualApprox(want, g.Values(), 1e-12), "got %v", g.Values())
}

func TestMultiply_Disjoint(t *testing.T) {
	fa := mustNew(t, []Variable{varA}, 1, 2)
	fc := mustNew(t, []Variable{varC}, 1, 10, 100)

	g, err := fa.Multiply(fc)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, g.Names())
	assert.Equal(t, []float64{1, 10, 100, 2, 20, 200}, g.Values())
}

func TestMultiply_Scalar(t *testing.T) {
	fa := mustNew(t, []Variable{varA}, 1, 2)
	g, err := Scalar(3).Multiply(fa)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, g.Names())
	assert.Equal(t, []float64{3, 6}, g.Values())
}

func TestMultiply_DomainClash(t *testing.T) {
	fa := mustNew(t, []Variable{varA}, 1, 2)
	other := mustNew(t, []Variable{NewVariable("A", "yes", "no")}, 1, 2)

	_, err := fa.Multiply(other)
	var sm *bnerr.ScopeMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "A", sm.Variable)
}

func TestSumOut(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC}, 1, 2, 3, 4, 5, 6)

	g, err := f.SumOut("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, g.Names())
	assert.Equal(t, []float64{5, 7, 9}, g.Values())

	g, err = f.SumOut("C")
	require.NoError(t, err)
	assert.Equal(t, []float64{6, 15}, g.Values())

	_, err = f.SumOut("B")
	assert.ErrorIs(t, err, bnerr.ErrNotInScope)
}

func TestSumOut_MiddleVariable(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC, varB},
		1, 2, 3, 4, 5, 6,
		7, 8, 9, 10, 11, 12)

	g, err := f.SumOut("C")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, g.Names())
	assert.Equal(t, []float64{1 + 3 + 5, 2 + 4 + 6, 7 + 9 + 11, 8 + 10 + 12}, g.Values())
}

func TestNormalize(t *testing.T) {
	f := mustNew(t, []Variable{varC}, 1, 1, 2)
	g, err := f.Normalize()
	require.NoError(t, err)
	assert.True(t, floats.EqualApprox([]float64{0.25, 0.25, 0.5}, g.Values(), 1e-15))
	assert.InDelta(t, 1.0, g.Total(), 1e-15)

	_, err = mustNew(t, []Variable{varA}, 0, 0).Normalize()
	var de *bnerr.DegenerateFactorError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 0.0, de.Total)
}

func TestReorder(t *testing.T) {
	f := mustNew(t, []Variable{varA, varC}, 1, 2, 3, 4, 5, 6)

	g, err := f.Reorder([]string{"C", "A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, g.Names())
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, g.Values())

	for states, x := range f.All() {
		v, err := g.Value(map[string]string{
			"A": varA.States[states[0]],
			"C": varC.States[states[1]],
		})
		require.NoError(t, err)
		assert.Equal(t, x, v)
	}

	_, err = f.Reorder([]string{"A"})
	assert.ErrorIs(t, err, bnerr.ErrStructural)
	_, err = f.Reorder([]string{"A", "A"})
	assert.ErrorIs(t, err, bnerr.ErrStructural)
	_, err = f.Reorder([]string{"A", "B"})
	assert.ErrorIs(t, err, bnerr.ErrStructural)
}

func TestProduct(t *testing.T) {
	p, err := Product()
	require.NoError(t, err)
	assert.Equal(t, 0, p.Width())
	assert.Equal(t, []float64{1}, p.Values())

	fa := mustNew(t, []Variable{varA}, 0.5, 0.5)
	fb := mustNew(t, []Variable{varB}, 0.1, 0.9)
	fc := mustNew(t, []Variable{varC}, 0.2, 0.3, 0.5)
	p, err = Product(fa, fb, fc)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, p.Names())
	assert.Equal(t, 12, p.Len())
	assert.InDelta(t, 1.0, p.Total(), 1e-12)
}

func TestIndicator(t *testing.T) {
	f, err := Indicator(varC, "mid")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 0}, f.Values())

	_, err = Indicator(varC, "max")
	assert.ErrorIs(t, err, bnerr.ErrDomain)
}

// Marginalizing a product in either order must give the same table.
func TestSumOut_Commutes(t *testing.T) {
	f := mustNew(t, []Variable{varA, varB, varC},
		0.1, 0.2, 0.3, 0.4, 0.5, 0.6,
		0.7, 0.8, 0.9, 1.0, 1.1, 1.2)

	ab, err := f.SumOut("A")
	require.NoError(t, err)
	ab, err = ab.SumOut("B")
	require.NoError(t, err)

	ba, err := f.SumOut("B")
	require.NoError(t, err)
	ba, err = ba.SumOut("A")
	require.NoError(t, err)

	assert.True(t, floats.EqualApprox(ab.Values(), ba.Values(), 1e-12))
}

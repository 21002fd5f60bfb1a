package factor

import "slices"

// Variable is a discrete random variable with an ordered, finite domain.
type Variable struct {
	Name   string   `json:"name" yaml:"name"`
	States []string `json:"states" yaml:"states"`
}

func NewVariable(name string, states ...string) Variable {
	return Variable{Name: name, States: slices.Clone(states)}
}

// Clone returns a copy that shares no memory with v.
func (v Variable) Clone() Variable {
	return NewVariable(v.Name, v.States...)
}

func (v Variable) Cardinality() int {
	return len(v.States)
}

func (v Variable) StateIndex(state string) (int, bool) {
	for i, s := range v.States {
		if s == state {
			return i, true
		}
	}
	return -1, false
}

// SameDomain reports whether both variables carry the same name and the same
// states in the same order.
func (v Variable) SameDomain(o Variable) bool {
	return v.Name == o.Name && slices.Equal(v.States, o.States)
}

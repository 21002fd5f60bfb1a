package network

import "github.com/Harshitk-cp/marginal/internal/factor"

// Definition is the unvalidated description of a network as produced by a
// loader or decoded from a request body.
type Definition struct {
	Name       string            `json:"name" yaml:"name"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	Variables  []VariableSpec    `json:"variables" yaml:"variables"`
}

// VariableSpec declares one variable and its conditional distribution.
//
// Table holds one row per parent assignment, parents enumerated in declared
// order with the last parent varying fastest; each row lists the child's
// states in order. A root variable has a single row. CPT may be set instead of
// Table when the caller already has a factor; its scope must be the variable
// plus its parents, in any order.
type VariableSpec struct {
	Name       string            `json:"name" yaml:"name"`
	States     []string          `json:"states" yaml:"states"`
	Parents    []string          `json:"parents,omitempty" yaml:"parents,omitempty"`
	Table      [][]float64       `json:"cpt,omitempty" yaml:"cpt,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	CPT        *factor.Factor    `json:"-" yaml:"-"`
}

// Definition rebuilds a definition from a validated network. Tables are
// emitted in the parents-then-child layout New expects.
func (n *Network) Definition() Definition {
	def := Definition{
		Name:       n.name,
		Properties: cloneMap(n.properties),
		Variables:  make([]VariableSpec, len(n.vars)),
	}
	for i, v := range n.vars {
		card := v.Cardinality()
		values := n.cpts[i].Values()
		rows := make([][]float64, 0, len(values)/card)
		for off := 0; off < len(values); off += card {
			rows = append(rows, values[off:off+card])
		}
		def.Variables[i] = VariableSpec{
			Name:       v.Name,
			States:     append([]string(nil), v.States...),
			Parents:    n.names(n.parents[i]),
			Table:      rows,
			Properties: cloneMap(n.varProps[i]),
		}
	}
	return def
}

func cloneMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

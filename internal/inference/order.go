package inference

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/Harshitk-cp/marginal/internal/factor"
	"github.com/Harshitk-cp/marginal/internal/network"
)

// Heuristic selects the next variable to eliminate.
type Heuristic int

const (
	// MinFill picks the variable whose elimination adds the fewest new edges
	// to the interaction graph.
	MinFill Heuristic = iota
	// MinDegree picks the variable with the fewest neighbours.
	MinDegree
	// MinWeight picks the variable whose neighbours span the smallest table.
	MinWeight
	// Declaration eliminates in declaration order.
	Declaration
)

var ErrUnknownHeuristic = errors.New("unknown elimination heuristic")

var heuristicNames = map[Heuristic]string{
	MinFill:     "min-fill",
	MinDegree:   "min-degree",
	MinWeight:   "min-weight",
	Declaration: "declaration",
}

func (h Heuristic) String() string {
	if s, ok := heuristicNames[h]; ok {
		return s
	}
	return fmt.Sprintf("heuristic(%d)", int(h))
}

// ParseHeuristic accepts the names printed by String. An empty string selects
// MinFill.
func ParseHeuristic(s string) (Heuristic, error) {
	if s == "" {
		return MinFill, nil
	}
	for h, name := range heuristicNames {
		if name == s {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownHeuristic, s)
}

// interaction is the undirected graph linking variables that share a factor.
type interaction struct {
	net  *network.Network
	adj  map[string]map[string]bool
	card map[string]int
}

func newInteraction(net *network.Network, factors []*factor.Factor) *interaction {
	g := &interaction{
		net:  net,
		adj:  make(map[string]map[string]bool),
		card: make(map[string]int),
	}
	for _, f := range factors {
		scope := f.Scope()
		for _, v := range scope {
			if g.adj[v.Name] == nil {
				g.adj[v.Name] = make(map[string]bool)
			}
			g.card[v.Name] = v.Cardinality()
		}
		for i, u := range scope {
			for _, v := range scope[i+1:] {
				g.link(u.Name, v.Name)
			}
		}
	}
	return g
}

func (g *interaction) link(u, v string) {
	g.adj[u][v] = true
	g.adj[v][u] = true
}

func (g *interaction) cost(h Heuristic, name string) float64 {
	nbrs := g.adj[name]
	switch h {
	case MinDegree:
		return float64(len(nbrs))
	case MinWeight:
		w := 1.0
		for v := range nbrs {
			w *= float64(g.card[v])
		}
		return w
	case MinFill:
		fill := 0
		for u := range nbrs {
			for v := range nbrs {
				if u < v && !g.adj[u][v] {
					fill++
				}
			}
		}
		return float64(fill)
	default:
		return 0
	}
}

// eliminate connects the neighbours of name and drops it.
func (g *interaction) eliminate(name string) {
	nbrs := g.adj[name]
	for u := range nbrs {
		delete(g.adj[u], name)
		for v := range nbrs {
			if u != v {
				g.adj[u][v] = true
			}
		}
	}
	delete(g.adj, name)
}

func (g *interaction) declared(name string) int {
	i, _ := g.net.Index(name)
	return i
}

// order greedily sequences hidden under h. Ties go to the earlier declared
// variable.
func order(net *network.Network, factors []*factor.Factor, hidden []string, h Heuristic) []string {
	remaining := slices.Clone(hidden)
	g := newInteraction(net, factors)
	slices.SortFunc(remaining, func(a, b string) int { return g.declared(a) - g.declared(b) })
	if h == Declaration {
		return remaining
	}

	out := make([]string, 0, len(remaining))
	for len(remaining) > 0 {
		best, bestCost := 0, math.Inf(1)
		for i, name := range remaining {
			if c := g.cost(h, name); c < bestCost {
				best, bestCost = i, c
			}
		}
		name := remaining[best]
		out = append(out, name)
		g.eliminate(name)
		remaining = slices.Delete(remaining, best, best+1)
	}
	return out
}

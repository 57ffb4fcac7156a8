package graph

import (
	"slices"
	"strings"

	"github.com/agentic-research/medgraph/api"
)

// Edge is one resolved cross-reference.
type Edge struct {
	From         string           `json:"from"`
	To           string           `json:"to"`
	Relationship api.Relationship `json:"relationship"`
	Label        string           `json:"label,omitempty"`
}

// Adjacency holds resolved cross-references in both directions. Edges keep
// the order they were declared in; sources are visited in id order.
type Adjacency struct {
	out map[string][]Edge
	in  map[string][]Edge
}

// Out returns the resolved links declared by id.
func (a *Adjacency) Out(id string) []Edge {
	return a.out[id]
}

// In returns the resolved links pointing at id.
func (a *Adjacency) In(id string) []Edge {
	return a.in[id]
}

// EdgeCount is the number of resolved links.
func (a *Adjacency) EdgeCount() int {
	n := 0
	for _, edges := range a.out {
		n += len(edges)
	}
	return n
}

type DanglingReference struct {
	SourceID     string           `json:"sourceId"`
	TargetID     string           `json:"targetId"`
	Relationship api.Relationship `json:"relationship"`
	Label        string           `json:"label,omitempty"`
}

// Cycle is a loop in the parent/child hierarchy. Path starts at the smallest
// id and lists each member once, parent before child.
type Cycle struct {
	Path []string `json:"path"`
}

func (c Cycle) String() string {
	if len(c.Path) == 0 {
		return ""
	}
	return strings.Join(c.Path, " -> ") + " -> " + c.Path[0]
}

// Asymmetry is a sibling/related link with no matching link back.
type Asymmetry struct {
	SourceID     string           `json:"sourceId"`
	TargetID     string           `json:"targetId"`
	Relationship api.Relationship `json:"relationship"`
}

// Report is the outcome of resolving every cross-reference in a store.
// Nothing in it is fatal.
type Report struct {
	DanglingCount  int `json:"danglingCount"`
	CycleCount     int `json:"cycleCount"`
	AsymmetryCount int `json:"asymmetryCount"`

	Dangling    []DanglingReference `json:"dangling"`
	Cycles      []Cycle             `json:"cycles"`
	Asymmetries []Asymmetry         `json:"asymmetries"`
	Orphans     []string            `json:"orphans"`

	danglingBySource map[string]int
}

// DanglingFor returns how many of id's links point at missing records.
func (r *Report) DanglingFor(id string) int {
	return r.danglingBySource[id]
}

// Resolve checks every cross-reference in store against the store itself.
// Dangling links are reported and dropped from the adjacency; the records
// that declare them stay.
func Resolve(store *Store) (*Adjacency, *Report) {
	adj := &Adjacency{
		out: make(map[string][]Edge),
		in:  make(map[string][]Edge),
	}
	rep := &Report{
		Dangling:         []DanglingReference{},
		Cycles:           []Cycle{},
		Asymmetries:      []Asymmetry{},
		Orphans:          []string{},
		danglingBySource: make(map[string]int),
	}

	// Pass 1: collect declared links.
	declared := make(map[string][]api.CrossReferenceLink)
	for rec := range store.All() {
		for _, x := range rec.CrossReferences {
			if x.TargetID == "" {
				continue
			}
			declared[rec.ID] = append(declared[rec.ID], x)
		}
	}

	// Pass 2: look up each target.
	for _, id := range store.IDs() {
		for _, x := range declared[id] {
			if !store.Has(x.TargetID) {
				rep.Dangling = append(rep.Dangling, DanglingReference{
					SourceID:     id,
					TargetID:     x.TargetID,
					Relationship: x.Relationship,
					Label:        x.Label,
				})
				rep.danglingBySource[id]++
				continue
			}
			e := Edge{From: id, To: x.TargetID, Relationship: x.Relationship, Label: x.Label}
			adj.out[id] = append(adj.out[id], e)
			adj.in[x.TargetID] = append(adj.in[x.TargetID], e)
		}
	}

	rep.Asymmetries = asymmetries(store, adj)
	rep.Cycles = hierarchyCycles(store, adj)

	for _, id := range store.IDs() {
		if len(adj.out[id]) == 0 && len(adj.in[id]) == 0 {
			rep.Orphans = append(rep.Orphans, id)
		}
	}

	rep.DanglingCount = len(rep.Dangling)
	rep.CycleCount = len(rep.Cycles)
	rep.AsymmetryCount = len(rep.Asymmetries)
	return adj, rep
}

type edgeKey struct {
	from, to string
	rel      api.Relationship
}

func asymmetries(store *Store, adj *Adjacency) []Asymmetry {
	present := make(map[edgeKey]bool)
	for _, edges := range adj.out {
		for _, e := range edges {
			present[edgeKey{e.From, e.To, e.Relationship}] = true
		}
	}

	out := []Asymmetry{}
	reported := make(map[edgeKey]bool)
	for _, id := range store.IDs() {
		for _, e := range adj.out[id] {
			if !e.Relationship.Symmetric() || e.From == e.To {
				continue
			}
			k := edgeKey{e.From, e.To, e.Relationship}
			if reported[k] || present[edgeKey{e.To, e.From, e.Relationship}] {
				continue
			}
			reported[k] = true
			out = append(out, Asymmetry{SourceID: e.From, TargetID: e.To, Relationship: e.Relationship})
		}
	}
	return out
}

// hierarchy builds parent -> children from both link directions.
func hierarchy(store *Store, adj *Adjacency) map[string][]string {
	h := make(map[string][]string)
	seen := make(map[[2]string]bool)
	add := func(parent, child string) {
		k := [2]string{parent, child}
		if seen[k] {
			return
		}
		seen[k] = true
		h[parent] = append(h[parent], child)
	}
	for _, id := range store.IDs() {
		for _, e := range adj.out[id] {
			switch e.Relationship {
			case api.RelChild:
				add(e.From, e.To)
			case api.RelParent:
				add(e.To, e.From)
			}
		}
	}
	return h
}

const (
	unvisited = iota
	visiting
	done
)

// hierarchyCycles runs a DFS with a visiting set. Every back edge yields one
// cycle; rotations of the same cycle are reported once.
func hierarchyCycles(store *Store, adj *Adjacency) []Cycle {
	h := hierarchy(store, adj)
	state := make(map[string]int)
	var path []string
	seen := make(map[string]bool)
	cycles := []Cycle{}

	var visit func(id string)
	visit = func(id string) {
		state[id] = visiting
		path = append(path, id)
		for _, next := range h[id] {
			switch state[next] {
			case unvisited:
				visit(next)
			case visiting:
				start := slices.Index(path, next)
				c := canonicalCycle(path[start:])
				key := strings.Join(c, "\x00")
				if !seen[key] {
					seen[key] = true
					cycles = append(cycles, Cycle{Path: c})
				}
			}
		}
		path = path[:len(path)-1]
		state[id] = done
	}

	for _, id := range store.IDs() {
		if state[id] == unvisited {
			visit(id)
		}
	}
	return cycles
}

func canonicalCycle(members []string) []string {
	minAt := 0
	for i, id := range members {
		if id < members[minAt] {
			minAt = i
		}
	}
	out := make([]string, 0, len(members))
	out = append(out, members[minAt:]...)
	return append(out, members[:minAt]...)
}

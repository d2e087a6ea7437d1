package domain

import (
	"reflect"
)

// GraphDiff represents the changes between two graph snapshots.
// It is designed to be serialized to JSON for partial updates on observers.
type GraphDiff struct {
	// AddedNodes and UpdatedNodes carry the full node in its new form.
	AddedNodes   []Node   `json:"added_nodes,omitempty"`
	UpdatedNodes []Node   `json:"updated_nodes,omitempty"`
	RemovedNodes []string `json:"removed_nodes,omitempty"`

	// UpdatedEdges keep their id but were rewired (endpoints or ports changed).
	AddedEdges   []Edge   `json:"added_edges,omitempty"`
	UpdatedEdges []Edge   `json:"updated_edges,omitempty"`
	RemovedEdges []string `json:"removed_edges,omitempty"`

	// Reordered is set when nodes or edges kept their content but changed order.
	Reordered bool `json:"reordered,omitempty"`

	// Selection is set when the selected node changed. An empty string means cleared.
	Selection *string `json:"selection,omitempty"`
}

// Diff calculates the difference between oldGraph and newGraph.
// If oldGraph is nil, it returns a diff representing the entire newGraph (initial load).
// It returns nil when nothing changed.
func Diff(oldGraph, newGraph *Graph) *GraphDiff {
	if newGraph == nil {
		return nil
	}
	if oldGraph == nil {
		oldGraph = &Graph{}
	}

	diff := &GraphDiff{}

	oldNodes := make(map[string]Node, len(oldGraph.Nodes))
	for _, n := range oldGraph.Nodes {
		oldNodes[n.ID] = n
	}
	newNodes := make(map[string]struct{}, len(newGraph.Nodes))
	for _, n := range newGraph.Nodes {
		newNodes[n.ID] = struct{}{}
		prev, exists := oldNodes[n.ID]
		switch {
		case !exists:
			diff.AddedNodes = append(diff.AddedNodes, n)
		case !reflect.DeepEqual(prev, n):
			diff.UpdatedNodes = append(diff.UpdatedNodes, n)
		}
	}
	for _, n := range oldGraph.Nodes {
		if _, exists := newNodes[n.ID]; !exists {
			diff.RemovedNodes = append(diff.RemovedNodes, n.ID)
		}
	}

	oldEdges := make(map[string]Edge, len(oldGraph.Edges))
	for _, e := range oldGraph.Edges {
		oldEdges[e.ID] = e
	}
	newEdges := make(map[string]struct{}, len(newGraph.Edges))
	for _, e := range newGraph.Edges {
		newEdges[e.ID] = struct{}{}
		prev, exists := oldEdges[e.ID]
		switch {
		case !exists:
			diff.AddedEdges = append(diff.AddedEdges, e)
		case prev != e:
			diff.UpdatedEdges = append(diff.UpdatedEdges, e)
		}
	}
	for _, e := range oldGraph.Edges {
		if _, exists := newEdges[e.ID]; !exists {
			diff.RemovedEdges = append(diff.RemovedEdges, e.ID)
		}
	}

	diff.Reordered = !sameOrder(oldGraph.Nodes, newGraph.Nodes, func(n Node) string { return n.ID }) ||
		!sameOrder(oldGraph.Edges, newGraph.Edges, func(e Edge) string { return e.ID })

	if oldGraph.SelectedNodeID != newGraph.SelectedNodeID {
		sel := newGraph.SelectedNodeID
		diff.Selection = &sel
	}

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *GraphDiff) IsEmpty() bool {
	return len(d.AddedNodes) == 0 &&
		len(d.UpdatedNodes) == 0 &&
		len(d.RemovedNodes) == 0 &&
		len(d.AddedEdges) == 0 &&
		len(d.UpdatedEdges) == 0 &&
		len(d.RemovedEdges) == 0 &&
		!d.Reordered &&
		d.Selection == nil
}

// sameOrder reports whether the ids common to a and b appear in the same order.
// Additions and removals are reported elsewhere.
func sameOrder[T any](a, b []T, id func(T) string) bool {
	inB := make(map[string]struct{}, len(b))
	for _, x := range b {
		inB[id(x)] = struct{}{}
	}
	inA := make(map[string]struct{}, len(a))
	var common []string
	for _, x := range a {
		inA[id(x)] = struct{}{}
		if _, ok := inB[id(x)]; ok {
			common = append(common, id(x))
		}
	}
	i := 0
	for _, x := range b {
		if _, ok := inA[id(x)]; !ok {
			continue
		}
		if common[i] != id(x) {
			return false
		}
		i++
	}
	return true
}

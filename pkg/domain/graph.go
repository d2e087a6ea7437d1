package domain

import "fmt"

// Canonical terminal node ids used by a freshly cleared graph.
const (
	StartNodeID = "start"
	EndNodeID   = "end"
)

// Graph is a snapshot of the workflow under edit.
// SelectedNodeID is empty when nothing is selected.
type Graph struct {
	Nodes          []Node `json:"nodes"`
	Edges          []Edge `json:"edges"`
	SelectedNodeID string `json:"selectedNodeId,omitempty"`
}

// NewGraph returns the canonical two-node graph: one start, one end, no edges, no selection.
func NewGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: StartNodeID, Type: NodeTypeStart, Position: Position{X: 100, Y: 200}, Data: map[string]any{"label": "Start"}},
			{ID: EndNodeID, Type: NodeTypeEnd, Position: Position{X: 600, Y: 200}, Data: map[string]any{"label": "End"}},
		},
		Edges: []Edge{},
	}
}

// Clone returns a copy that shares nothing mutable with g.
func (g Graph) Clone() Graph {
	c := Graph{
		Nodes:          make([]Node, len(g.Nodes)),
		Edges:          make([]Edge, len(g.Edges)),
		SelectedNodeID: g.SelectedNodeID,
	}
	for i, n := range g.Nodes {
		c.Nodes[i] = n.Clone()
	}
	copy(c.Edges, g.Edges)
	return c
}

// Node returns the node with the given id.
func (g Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Validate checks the structural invariants of a graph at rest:
// exactly one start and one end node, unique ids, known node types,
// edges between existing nodes and a selection that points to an existing node.
// All violations are reported together.
func (g Graph) Validate() error {
	var errs []error
	ids := make(map[string]bool, len(g.Nodes))
	starts, ends := 0, 0

	for _, n := range g.Nodes {
		if n.ID == "" {
			errs = append(errs, &ValidationError{Field: "nodes", Reason: "node id is empty"})
			continue
		}
		if ids[n.ID] {
			errs = append(errs, &ValidationError{Field: "nodes", ID: n.ID, Reason: "duplicate node id"})
		}
		ids[n.ID] = true
		if !n.Type.Valid() {
			errs = append(errs, &ValidationError{Field: "nodes", ID: n.ID, Reason: fmt.Sprintf("unknown node type %q", n.Type)})
		}
		switch n.Type {
		case NodeTypeStart:
			starts++
		case NodeTypeEnd:
			ends++
		}
	}
	if starts != 1 {
		errs = append(errs, &ValidationError{Field: "nodes", Reason: fmt.Sprintf("expected exactly one start node, found %d", starts)})
	}
	if ends != 1 {
		errs = append(errs, &ValidationError{Field: "nodes", Reason: fmt.Sprintf("expected exactly one end node, found %d", ends)})
	}

	edgeIDs := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if e.ID == "" {
			errs = append(errs, &ValidationError{Field: "edges", Reason: "edge id is empty"})
		} else if edgeIDs[e.ID] {
			errs = append(errs, &ValidationError{Field: "edges", ID: e.ID, Reason: "duplicate edge id"})
		}
		edgeIDs[e.ID] = true
		if !ids[e.Source] {
			errs = append(errs, &ValidationError{Field: "edges", ID: e.ID, Reason: fmt.Sprintf("source %q does not exist", e.Source)})
		}
		if !ids[e.Target] {
			errs = append(errs, &ValidationError{Field: "edges", ID: e.ID, Reason: fmt.Sprintf("target %q does not exist", e.Target)})
		}
	}

	if g.SelectedNodeID != "" && !ids[g.SelectedNodeID] {
		errs = append(errs, &ValidationError{Field: "selectedNodeId", ID: g.SelectedNodeID, Reason: "selected node does not exist"})
	}

	return Join(errs)
}

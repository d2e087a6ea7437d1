package graph

import "github.com/aretw0/arbor/pkg/domain"

// ChangeType identifies an incremental change produced by an interactive editor gesture.
type ChangeType string

const (
	ChangePosition ChangeType = "position"
	ChangeSelect   ChangeType = "select"
	ChangeRemove   ChangeType = "remove"
)

// NodeChange is a position, selection or removal delta for one node.
type NodeChange struct {
	Type ChangeType `json:"type"`
	ID   string     `json:"id"`
	// Position is required for ChangePosition.
	Position *domain.Position `json:"position,omitempty"`
	// Selected is used by ChangeSelect.
	Selected bool `json:"selected,omitempty"`
}

// EdgeChange is a selection or removal delta for one edge.
// Edge selection is view state and leaves the graph untouched.
type EdgeChange struct {
	Type     ChangeType `json:"type"`
	ID       string     `json:"id"`
	Selected bool       `json:"selected,omitempty"`
}

// Warning is the non-fatal signal raised when a change is rejected to protect the graph.
type Warning struct {
	NodeID string
	Reason string
}

// applyNodeChange mutates g in place. Unknown ids are skipped.
// It returns a warning when the change targets a terminal node.
func applyNodeChange(g *domain.Graph, c NodeChange) *Warning {
	idx := indexOfNode(*g, c.ID)
	if idx < 0 {
		return nil
	}
	switch c.Type {
	case ChangePosition:
		if c.Position != nil {
			g.Nodes[idx].Position = *c.Position
		}
	case ChangeSelect:
		if c.Selected {
			g.SelectedNodeID = c.ID
		} else if g.SelectedNodeID == c.ID {
			g.SelectedNodeID = ""
		}
	case ChangeRemove:
		if g.Nodes[idx].Type.IsTerminal() {
			return &Warning{NodeID: c.ID, Reason: "start and end nodes cannot be removed"}
		}
		removeNodeAt(g, idx)
	}
	return nil
}

func applyEdgeChange(g *domain.Graph, c EdgeChange) {
	if c.Type != ChangeRemove {
		return
	}
	for i, e := range g.Edges {
		if e.ID == c.ID {
			g.Edges = append(g.Edges[:i], g.Edges[i+1:]...)
			return
		}
	}
}

// removeNodeAt removes the node, every edge touching it and its selection.
func removeNodeAt(g *domain.Graph, idx int) {
	id := g.Nodes[idx].ID
	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	kept := g.Edges[:0]
	for _, e := range g.Edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	g.Edges = kept

	if g.SelectedNodeID == id {
		g.SelectedNodeID = ""
	}
}

func indexOfNode(g domain.Graph, id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

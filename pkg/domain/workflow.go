package domain

import "time"

// Workflow is the canonical external representation of a workflow.
// It is what the host generates or refines, and what a persistence or export
// collaborator serializes.
type Workflow struct {
	ID                  string               `json:"id" yaml:"id"`
	Name                string               `json:"name" yaml:"name"`
	Description         string               `json:"description,omitempty" yaml:"description,omitempty"`
	Version             string               `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes               []WorkflowNode       `json:"nodes" yaml:"nodes"`
	Connections         []WorkflowConnection `json:"connections" yaml:"connections"`
	CreatedAt           *time.Time           `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt           *time.Time           `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
	ConversationHistory *ConversationHistory `json:"conversationHistory,omitempty" yaml:"conversationHistory,omitempty"`
}

// WorkflowNode is a node in the interchange document.
type WorkflowNode struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Position Position       `json:"position" yaml:"position"`
	Data     map[string]any `json:"data" yaml:"data"`
}

// WorkflowConnection is an edge in the interchange document.
type WorkflowConnection struct {
	ID       string `json:"id" yaml:"id"`
	From     string `json:"from" yaml:"from"`
	To       string `json:"to" yaml:"to"`
	FromPort string `json:"fromPort,omitempty" yaml:"fromPort,omitempty"`
	ToPort   string `json:"toPort,omitempty" yaml:"toPort,omitempty"`
}

// ToGraph converts the workflow into a graph 1:1 by id.
// Selection goes to the first node that is neither start nor end, or stays empty.
// The result is not validated; see Graph.Validate.
func (w Workflow) ToGraph() Graph {
	g := Graph{
		Nodes: make([]Node, 0, len(w.Nodes)),
		Edges: make([]Edge, 0, len(w.Connections)),
	}
	for _, n := range w.Nodes {
		node := Node{
			ID:       n.ID,
			Type:     n.Type,
			Name:     n.Name,
			Position: n.Position,
			Data:     n.Data,
		}
		g.Nodes = append(g.Nodes, node.Clone())
		if g.SelectedNodeID == "" && !n.Type.IsTerminal() {
			g.SelectedNodeID = n.ID
		}
	}
	for _, c := range w.Connections {
		g.Edges = append(g.Edges, Edge{
			ID:         c.ID,
			Source:     c.From,
			Target:     c.To,
			SourcePort: c.FromPort,
			TargetPort: c.ToPort,
		})
	}
	return g
}

// FromGraph builds the interchange representation of g, keeping the identity
// fields (id, name, description, version, timestamps) of the meta workflow.
func FromGraph(meta Workflow, g Graph) Workflow {
	w := Workflow{
		ID:                  meta.ID,
		Name:                meta.Name,
		Description:         meta.Description,
		Version:             meta.Version,
		CreatedAt:           meta.CreatedAt,
		UpdatedAt:           meta.UpdatedAt,
		ConversationHistory: meta.ConversationHistory,
		Nodes:               make([]WorkflowNode, 0, len(g.Nodes)),
		Connections:         make([]WorkflowConnection, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		c := n.Clone()
		w.Nodes = append(w.Nodes, WorkflowNode{
			ID:       c.ID,
			Type:     c.Type,
			Name:     c.Name,
			Position: c.Position,
			Data:     c.Data,
		})
	}
	for _, e := range g.Edges {
		w.Connections = append(w.Connections, WorkflowConnection{
			ID:       e.ID,
			From:     e.Source,
			To:       e.Target,
			FromPort: e.SourcePort,
			ToPort:   e.TargetPort,
		})
	}
	return w
}

// Validate checks that the workflow converts into a structurally valid graph.
func (w Workflow) Validate() error {
	return w.ToGraph().Validate()
}

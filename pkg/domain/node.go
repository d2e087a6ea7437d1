package domain

// NodeType defines the behavior of a workflow step.
type NodeType string

// NodeType constants.
const (
	// NodeTypeStart is the single entry terminal of a workflow.
	NodeTypeStart NodeType = "start"
	// NodeTypeEnd is the single exit terminal of a workflow.
	NodeTypeEnd NodeType = "end"

	NodeTypePrompt          NodeType = "prompt"
	NodeTypeBranch          NodeType = "branch"
	NodeTypeIfElse          NodeType = "ifElse"
	NodeTypeSwitch          NodeType = "switch"
	NodeTypeSubAgent        NodeType = "subAgent"
	NodeTypeSubAgentFlow    NodeType = "subAgentFlow"
	NodeTypeAskUserQuestion NodeType = "askUserQuestion"
	NodeTypeSkill           NodeType = "skill"
	NodeTypeMCP             NodeType = "mcp"
)

// NodeTypes lists every known node type, terminals first.
var NodeTypes = []NodeType{
	NodeTypeStart,
	NodeTypeEnd,
	NodeTypePrompt,
	NodeTypeBranch,
	NodeTypeIfElse,
	NodeTypeSwitch,
	NodeTypeSubAgent,
	NodeTypeSubAgentFlow,
	NodeTypeAskUserQuestion,
	NodeTypeSkill,
	NodeTypeMCP,
}

// Valid reports whether t is a known node type.
func (t NodeType) Valid() bool {
	for _, known := range NodeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether t is a start or end node type.
// Terminal nodes are structurally mandatory and can never be removed.
func (t NodeType) IsTerminal() bool {
	return t == NodeTypeStart || t == NodeTypeEnd
}

// Position is the canvas coordinate of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Node represents a step in the workflow graph.
type Node struct {
	ID       string         `json:"id" yaml:"id"`
	Type     NodeType       `json:"type" yaml:"type"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
	Position Position       `json:"position" yaml:"position"`
	Data     map[string]any `json:"data" yaml:"data"`
}

// Clone returns a copy of the node with its own (shallow) data map.
func (n Node) Clone() Node {
	c := n
	c.Data = make(map[string]any, len(n.Data))
	for k, v := range n.Data {
		c.Data[k] = v
	}
	return c
}

// Edge is a directed connection between two nodes.
// The optional ports identify which handle of the node the edge is attached to.
type Edge struct {
	ID         string `json:"id" yaml:"id"`
	Source     string `json:"source" yaml:"source"`
	Target     string `json:"target" yaml:"target"`
	SourcePort string `json:"sourcePort,omitempty" yaml:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty" yaml:"targetPort,omitempty"`
}

// Connection is a candidate edge, as produced by an interactive connect gesture.
type Connection struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	SourcePort string `json:"sourcePort,omitempty"`
	TargetPort string `json:"targetPort,omitempty"`
}

// Matches reports whether the edge joins the same (source, sourcePort) -> (target, targetPort) tuple.
func (e Edge) Matches(c Connection) bool {
	return e.Source == c.Source &&
		e.Target == c.Target &&
		e.SourcePort == c.SourcePort &&
		e.TargetPort == c.TargetPort
}

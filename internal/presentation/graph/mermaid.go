package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Overlay highlights parts of the graph.
type Overlay struct {
	// Selected is styled as the current node; defaults to the graph selection.
	Selected string
	// Changed nodes are styled as touched, e.g. by the last refinement.
	Changed []string
}

// GenerateMermaid produces a Mermaid flowchart for a workflow graph.
// Shapes follow the node type:
//   - start, end: ((Circle))
//   - branch, ifElse, switch: {Rhombus}
//   - subAgent, subAgentFlow, skill, mcp: [[Subroutine]]
//   - askUserQuestion, prompt: [/Parallelogram/]
//   - anything else: [Rectangle]
func GenerateMermaid(g domain.Graph, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph LR\n")

	for _, node := range g.Nodes {
		opener, closer := shape(node.Type)
		sb.WriteString(fmt.Sprintf("    %s%s\"%s\"%s\n", sanitizeMermaidID(node.ID), opener, label(node), closer))
	}

	for _, e := range g.Edges {
		arrow := "-->"
		if e.SourcePort != "" {
			arrow = fmt.Sprintf("-- \"%s\" -->", escape(e.SourcePort))
		}
		sb.WriteString(fmt.Sprintf("    %s %s %s\n", sanitizeMermaidID(e.Source), arrow, sanitizeMermaidID(e.Target)))
	}

	selected := g.SelectedNodeID
	var changed []string
	if overlay != nil {
		if overlay.Selected != "" {
			selected = overlay.Selected
		}
		changed = overlay.Changed
	}
	if selected == "" && len(changed) == 0 {
		return sb.String()
	}

	sb.WriteString("\n    %% Overlay Styles\n")
	// Force black text for contrast on both light and dark themes.
	sb.WriteString("    classDef changed fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

	seen := make(map[string]bool)
	for _, id := range changed {
		safeID := sanitizeMermaidID(id)
		if safeID == "" || seen[safeID] {
			continue
		}
		seen[safeID] = true
		sb.WriteString(fmt.Sprintf("    class %s changed;\n", safeID))
	}
	if selected != "" {
		sb.WriteString(fmt.Sprintf("    class %s current;\n", sanitizeMermaidID(selected)))
	}
	return sb.String()
}

func shape(t domain.NodeType) (string, string) {
	switch t {
	case domain.NodeTypeStart, domain.NodeTypeEnd:
		return "((", "))"
	case domain.NodeTypeBranch, domain.NodeTypeIfElse, domain.NodeTypeSwitch:
		return "{", "}"
	case domain.NodeTypeSubAgent, domain.NodeTypeSubAgentFlow, domain.NodeTypeSkill, domain.NodeTypeMCP:
		return "[[", "]]"
	case domain.NodeTypeAskUserQuestion, domain.NodeTypePrompt:
		return "[/", "/]"
	}
	return "[", "]"
}

func label(n domain.Node) string {
	text := n.ID
	if n.Name != "" {
		text = n.Name
	} else if l, ok := n.Data["label"].(string); ok && l != "" {
		text = l
	}
	return escape(text)
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

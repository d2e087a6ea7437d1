package graph_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
)

func TestGenerateMermaid(t *testing.T) {
	tests := []struct {
		name     string
		graph    domain.Graph
		contains []string
	}{
		{
			name:  "Terminal Shapes Use Labels",
			graph: domain.NewGraph(),
			contains: []string{
				"start((\"Start\"))",
				"end((\"End\"))",
			},
		},
		{
			name: "Shapes By Type",
			graph: domain.Graph{Nodes: []domain.Node{
				{ID: "b", Type: domain.NodeTypeIfElse},
				{ID: "s", Type: domain.NodeTypeSubAgent},
				{ID: "q", Type: domain.NodeTypeAskUserQuestion},
				{ID: "x", Type: domain.NodeTypeMCP, Name: "Search"},
			}},
			contains: []string{
				"b{\"b\"}",
				"s[[\"s\"]]",
				"q[/\"q\"/]",
				"x[[\"Search\"]]",
			},
		},
		{
			name: "ID Sanitization",
			graph: domain.Graph{Nodes: []domain.Node{
				{ID: "path/to.node", Type: domain.NodeTypePrompt},
				{ID: "hyphen-ated", Type: domain.NodeTypeSkill},
			}},
			contains: []string{
				"path_to_node[/\"path/to.node\"/]",
				"hyphen_ated[[\"hyphen-ated\"]]",
			},
		},
		{
			name: "Edges And Ports",
			graph: domain.Graph{
				Nodes: []domain.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
				Edges: []domain.Edge{
					{ID: "1", Source: "a", Target: "b"},
					{ID: "2", Source: "b", Target: "c", SourcePort: "say \"yes\""},
				},
			},
			contains: []string{
				"a --> b",
				"b -- \"say 'yes'\" --> c",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := graph.GenerateMermaid(tt.graph, nil)
			assert.True(t, strings.HasPrefix(out, "graph LR\n"))
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			assert.NotContains(t, out, "Overlay Styles")
		})
	}
}

func TestGenerateMermaid_Overlay(t *testing.T) {
	g := domain.NewGraph()
	g.Nodes = append(g.Nodes, domain.Node{ID: "p-1", Type: domain.NodeTypePrompt})
	g.SelectedNodeID = "p-1"

	out := graph.GenerateMermaid(g, nil)
	assert.Contains(t, out, "class p_1 current;")

	out = graph.GenerateMermaid(g, &graph.Overlay{Selected: "end", Changed: []string{"p-1", "p-1", ""}})
	assert.Contains(t, out, "class end current;")
	assert.Equal(t, 1, strings.Count(out, "class p_1 changed;"))
}

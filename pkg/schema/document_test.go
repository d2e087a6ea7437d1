package schema_test

import (
	"testing"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefault_Compiles(t *testing.T) {
	doc, err := schema.LoadDefault()
	require.NoError(t, err)

	again, err := schema.LoadDefault()
	require.NoError(t, err)
	assert.Same(t, doc, again, "the embedded document is compiled once")

	for _, nt := range []domain.NodeType{domain.NodeTypeBranch, domain.NodeTypeSwitch, domain.NodeTypeAskUserQuestion} {
		assert.NotNil(t, doc.NodeTypes[nt].Data, nt)
	}
}

func TestParse_ArrayWithoutItems(t *testing.T) {
	_, err := schema.Parse("custom.yaml", []byte(`
nodeTypes:
  branch:
    data:
      type: object
      properties:
        branches:
          type: array
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items")
}

func TestDefault_DeclaresEveryNodeType(t *testing.T) {
	doc := schema.Default()
	assert.ElementsMatch(t, domain.NodeTypes, doc.Types())
}

func TestValidateNode(t *testing.T) {
	doc := schema.Default()

	tests := []struct {
		name    string
		node    domain.Node
		wantErr int
	}{
		{
			name: "Valid Prompt",
			node: domain.Node{ID: "p", Type: domain.NodeTypePrompt, Data: map[string]any{"prompt": "hello"}},
		},
		{
			name:    "Missing Field",
			node:    domain.Node{ID: "p", Type: domain.NodeTypePrompt, Data: map[string]any{}},
			wantErr: 1,
		},
		{
			name:    "Wrong Type",
			node:    domain.Node{ID: "s", Type: domain.NodeTypeSkill, Data: map[string]any{"name": 3}},
			wantErr: 1,
		},
		{
			name: "Valid Question",
			node: domain.Node{ID: "q", Type: domain.NodeTypeAskUserQuestion, Data: map[string]any{
				"question": "Which?",
				"options":  []map[string]string{{"label": "a"}, {"label": "b"}},
			}},
		},
		{
			name: "Too Few Options",
			node: domain.Node{ID: "q", Type: domain.NodeTypeAskUserQuestion, Data: map[string]any{
				"question": "Which?",
				"options":  []string{"only"},
			}},
			wantErr: 1,
		},
		{
			name:    "MCP Missing Both",
			node:    domain.Node{ID: "m", Type: domain.NodeTypeMCP},
			wantErr: 2,
		},
		{
			name: "Start Has No Constraints",
			node: domain.Node{ID: "start", Type: domain.NodeTypeStart},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := doc.ValidateNode(tt.node)
			if tt.wantErr == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			errs := schema.ValidationErrors(err)
			assert.Len(t, errs, tt.wantErr)
			var ve *schema.ValidationError
			require.ErrorAs(t, errs[0], &ve)
			assert.Equal(t, tt.node.ID, ve.NodeID)
		})
	}
}

func TestValidateWorkflow(t *testing.T) {
	doc := schema.Default()
	wf := domain.Workflow{
		ID: "wf",
		Nodes: []domain.WorkflowNode{
			{ID: "start", Type: domain.NodeTypeStart},
			{ID: "p", Type: domain.NodeTypePrompt, Data: map[string]any{"prompt": "x"}},
			{ID: "end", Type: domain.NodeTypeEnd},
		},
		Connections: []domain.WorkflowConnection{{ID: "c1", From: "start", To: "p"}, {ID: "c2", From: "p", To: "end"}},
	}
	require.NoError(t, doc.ValidateWorkflow(wf))

	wf.Connections = append(wf.Connections, domain.WorkflowConnection{ID: "c3", From: "p", To: "ghost"})
	wf.Nodes[1].Data = map[string]any{}
	err := doc.ValidateWorkflow(wf)
	require.Error(t, err)
	errs := schema.ValidationErrors(err)
	assert.Len(t, errs, 2)
	assert.ErrorIs(t, err, domain.ErrInvalidGraph)
}

func TestParse_JSON(t *testing.T) {
	doc, err := schema.Parse("s.json", []byte(`{"version":"1","nodeTypes":{"skill":{"fields":{"name":"string","tags":"[string]"}}}}`))
	require.NoError(t, err)

	err = doc.ValidateNode(domain.Node{ID: "s", Type: domain.NodeTypeSkill, Data: map[string]any{"name": "x", "tags": []any{"a", 1}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		valid   any
		invalid any
	}{
		{"string", "string", "a", 1},
		{"int", "int", 3.0, 3.5},
		{"float", "float", 1, "1"},
		{"bool", "bool", true, "true"},
		{"[int]", "[int]", []any{1, 2.0}, []any{"x"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, err := schema.ParseType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.name, typ.Name())
			assert.NoError(t, typ.Validate(tt.valid))
			assert.Error(t, typ.Validate(tt.invalid))
		})
	}

	_, err := schema.ParseType("[uuid]")
	assert.Error(t, err)
}

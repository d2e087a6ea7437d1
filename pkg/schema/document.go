package schema

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

//go:embed workflow-schema.yaml
var defaultDocument []byte

// NodeTypeSpec is the compiled description of one node type.
type NodeTypeSpec struct {
	Description string
	Fields      Fields
	// Data is an optional OpenAPI schema applied to the whole node data object.
	Data *openapi3.Schema
}

// Document is a compiled schema document.
type Document struct {
	Version   string
	NodeTypes map[domain.NodeType]NodeTypeSpec
}

type rawNodeType struct {
	Description string         `json:"description" yaml:"description"`
	Fields      Fields         `json:"fields" yaml:"fields"`
	Data        map[string]any `json:"data" yaml:"data"`
}

type rawDocument struct {
	Version   string                 `json:"version" yaml:"version"`
	NodeTypes map[string]rawNodeType `json:"nodeTypes" yaml:"nodeTypes"`
}

var compileDefault = sync.OnceValues(func() (*Document, error) {
	doc, err := Parse("workflow-schema.yaml", defaultDocument)
	if err != nil {
		return nil, fmt.Errorf("embedded schema is invalid: %w", err)
	}
	return doc, nil
})

// LoadDefault returns the document embedded in the binary. It is compiled once;
// later calls return the same document or the same error.
func LoadDefault() (*Document, error) {
	return compileDefault()
}

// Default is LoadDefault for constructors that cannot return an error.
// It panics if the embedded document does not compile.
func Default() *Document {
	doc, err := LoadDefault()
	if err != nil {
		panic(err)
	}
	return doc
}

// Parse decodes and compiles a document. The format follows the extension of
// name: ".json" is decoded as JSON, anything else as YAML.
func Parse(name string, data []byte) (*Document, error) {
	var raw rawDocument
	if strings.EqualFold(filepath.Ext(name), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}
	return compile(raw)
}

func compile(raw rawDocument) (*Document, error) {
	if len(raw.NodeTypes) == 0 {
		return nil, fmt.Errorf("document declares no node types")
	}

	doc := &Document{Version: raw.Version, NodeTypes: make(map[domain.NodeType]NodeTypeSpec, len(raw.NodeTypes))}
	for name, nt := range raw.NodeTypes {
		t := domain.NodeType(name)
		if !t.Valid() {
			return nil, fmt.Errorf("unknown node type %q", name)
		}
		spec := NodeTypeSpec{Description: nt.Description, Fields: nt.Fields}
		if len(nt.Data) > 0 {
			sch, err := compileOpenAPI(nt.Data)
			if err != nil {
				return nil, fmt.Errorf("node type %q: %w", name, err)
			}
			spec.Data = sch
		}
		doc.NodeTypes[t] = spec
	}
	return doc, nil
}

func compileOpenAPI(def map[string]any) (*openapi3.Schema, error) {
	b, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	sch := openapi3.NewSchema()
	if err := sch.UnmarshalJSON(b); err != nil {
		return nil, fmt.Errorf("invalid data schema: %w", err)
	}
	if err := sch.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid data schema: %w", err)
	}
	return sch, nil
}

// Types returns the node types declared by the document, sorted.
func (d *Document) Types() []domain.NodeType {
	types := make([]domain.NodeType, 0, len(d.NodeTypes))
	for t := range d.NodeTypes {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// ValidateNode checks a node's data against its node type.
// Types the document does not declare carry no constraints.
func (d *Document) ValidateNode(n domain.Node) error {
	spec, ok := d.NodeTypes[n.Type]
	if !ok {
		return nil
	}

	var errs []error
	if err := spec.Fields.Validate(n.Data); err != nil {
		for _, e := range ValidationErrors(err) {
			if ve, ok := e.(*ValidationError); ok {
				ve.NodeID = n.ID
			}
			errs = append(errs, e)
		}
	}
	if spec.Data != nil {
		// Round-trip through JSON so Go-typed values look like decoded JSON.
		var normalized any = map[string]any{}
		if len(n.Data) > 0 {
			b, err := json.Marshal(n.Data)
			if err != nil {
				return fmt.Errorf("node %q: %w", n.ID, err)
			}
			if err := json.Unmarshal(b, &normalized); err != nil {
				return fmt.Errorf("node %q: %w", n.ID, err)
			}
		}
		if err := spec.Data.VisitJSON(normalized); err != nil {
			errs = append(errs, &ValidationError{NodeID: n.ID, Key: "data", Reason: err.Error()})
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// ValidateWorkflow checks the workflow's structure and every node's data.
// Structural failures are domain validation errors; data failures are schema ones.
func (d *Document) ValidateWorkflow(wf domain.Workflow) error {
	g := wf.ToGraph()
	var errs []error
	if err := g.Validate(); err != nil {
		if all := domain.ValidationErrors(err); all != nil {
			errs = append(errs, all...)
		} else {
			errs = append(errs, err)
		}
	}
	for _, n := range g.Nodes {
		if err := d.ValidateNode(n); err != nil {
			errs = append(errs, ValidationErrors(err)...)
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

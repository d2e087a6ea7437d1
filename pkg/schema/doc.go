// Package schema loads the workflow schema document and validates workflows against it.
//
// The document describes, per node type, which data fields a node must carry.
// Fields use a small type language ("string", "int", "float", "bool", "[string]"),
// and a node type may add an OpenAPI 3 schema for richer constraints on its data:
//
//	version: "1.0"
//	nodeTypes:
//	  prompt:
//	    fields:
//	      prompt: string
//	  askUserQuestion:
//	    fields:
//	      question: string
//	    data:
//	      type: object
//	      properties:
//	        options:
//	          type: array
//	          minItems: 2
//	          items:
//	            type: object
//
// Documents are loaded through a Cache, which reads and compiles a document once
// and serves it from memory until Reset:
//
//	cache := schema.NewCache()
//	doc, err := cache.Load("workflow-schema.yaml")
//	if errors.Is(err, schema.ErrNotFound) {
//	    // ...
//	}
//	err = doc.ValidateWorkflow(wf)
package schema

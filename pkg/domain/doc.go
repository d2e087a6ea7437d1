/*
Package domain contains the core domain models of the Arbor workflow designer.

It defines the workflow graph edited by the client (Nodes, Edges, the Graph
itself), the interchange document exchanged with the host (Workflow), the
message envelope carried by the client/host channel and its payloads, and
the conversation history of AI refinements. This package is kept pure and
free of I/O, following Hexagonal Architecture principles.

# Key Entities

  - Node: A step of the workflow (start, end, prompt, branch, ...).
  - Edge: A directed connection between two node ports.
  - Graph: The editable snapshot owned by the graph store.
  - Workflow: The canonical external representation (nodes + connections).
  - Message: The envelope of every client/host exchange, keyed by request id.
*/
package domain

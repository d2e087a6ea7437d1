// Package graph holds the workflow graph under edit.
//
// Store is the only writer of the graph. Every mutation works on a private
// copy, is checked against the structural invariants and then replaces the
// current snapshot in one swap, so readers never observe a partial graph.
package graph

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/google/uuid"
)

// Listener receives every committed snapshot together with what changed.
// Listeners run while the store is locked: they must not call mutating methods.
type Listener func(g domain.Graph, diff *domain.GraphDiff)

// Store is an observable, invariant-preserving workflow graph.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[domain.Graph]

	listeners map[uint64]Listener
	nextID    uint64

	logger    *slog.Logger
	onWarning func(Warning)
	newID     func() string
	initial   *domain.Graph
}

// New creates a store holding the canonical start/end graph.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		listeners: make(map[uint64]Listener),
		logger:    logging.NewNop(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	g := domain.NewGraph()
	if s.initial != nil {
		g = s.initial.Clone()
		s.initial = nil
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid initial graph: %w", err)
	}
	s.current.Store(&g)
	return s, nil
}

// Snapshot returns a copy of the current graph.
func (s *Store) Snapshot() domain.Graph {
	return s.current.Load().Clone()
}

// Subscribe registers a listener and returns the function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// mutate runs fn on a private copy and commits it. Must not be called with mu held.
func (s *Store) mutate(op string, fn func(g *domain.Graph) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next := prev.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		s.logger.Error("mutation rejected", "op", op, "err", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	// Diff covers node and edge values, their order and the selection, so a
	// nil diff means the mutation was a no-op.
	diff := domain.Diff(prev, &next)
	if diff == nil {
		return nil
	}
	s.current.Store(&next)
	s.logger.Debug("graph committed", "op", op, "nodes", len(next.Nodes), "edges", len(next.Edges))

	for _, l := range s.listeners {
		l(next.Clone(), diff)
	}
	return nil
}

func (s *Store) warn(w Warning) {
	s.logger.Warn("graph change rejected", "node_id", w.NodeID, "reason", w.Reason)
	if s.onWarning != nil {
		s.onWarning(w)
	}
}

// ApplyNodeChanges applies editor deltas in order. Changes addressing unknown
// nodes are skipped; removals of terminal nodes are skipped with a warning.
func (s *Store) ApplyNodeChanges(changes []NodeChange) error {
	var warnings []Warning
	err := s.mutate("apply node changes", func(g *domain.Graph) error {
		for _, c := range changes {
			if w := applyNodeChange(g, c); w != nil {
				warnings = append(warnings, *w)
			}
		}
		return nil
	})
	for _, w := range warnings {
		s.warn(w)
	}
	return err
}

// ApplyEdgeChanges applies editor deltas in order. Unknown ids are skipped.
func (s *Store) ApplyEdgeChanges(changes []EdgeChange) error {
	return s.mutate("apply edge changes", func(g *domain.Graph) error {
		for _, c := range changes {
			applyEdgeChange(g, c)
		}
		return nil
	})
}

// Connect adds an edge for c unless one already joins the same
// (source, sourcePort) -> (target, targetPort) tuple.
// It returns the edge and whether it was created.
func (s *Store) Connect(c domain.Connection) (domain.Edge, bool, error) {
	var edge domain.Edge
	created := false
	err := s.mutate("connect", func(g *domain.Graph) error {
		if indexOfNode(*g, c.Source) < 0 {
			return fmt.Errorf("connect source %q: %w", c.Source, domain.ErrNodeNotFound)
		}
		if indexOfNode(*g, c.Target) < 0 {
			return fmt.Errorf("connect target %q: %w", c.Target, domain.ErrNodeNotFound)
		}
		for _, e := range g.Edges {
			if e.Matches(c) {
				edge = e
				return nil
			}
		}
		edge = domain.Edge{
			ID:         s.newID(),
			Source:     c.Source,
			Target:     c.Target,
			SourcePort: c.SourcePort,
			TargetPort: c.TargetPort,
		}
		g.Edges = append(g.Edges, edge)
		created = true
		return nil
	})
	if err != nil {
		return domain.Edge{}, false, err
	}
	return edge, created, nil
}

// AddNode inserts a non-terminal node. An empty id is generated.
func (s *Store) AddNode(n domain.Node) (domain.Node, error) {
	if n.Type.IsTerminal() {
		return domain.Node{}, fmt.Errorf("add %s node: %w", n.Type, domain.ErrTerminalNode)
	}
	n = n.Clone()
	if n.ID == "" {
		n.ID = s.newID()
	}
	err := s.mutate("add node", func(g *domain.Graph) error {
		if indexOfNode(*g, n.ID) >= 0 {
			return fmt.Errorf("add node %q: %w", n.ID, domain.ErrDuplicateNode)
		}
		g.Nodes = append(g.Nodes, n)
		return nil
	})
	if err != nil {
		return domain.Node{}, err
	}
	return n, nil
}

// UpdateNodeData shallow-merges partial into the node's data.
// An unknown id leaves the graph unchanged and returns domain.ErrNodeNotFound;
// it never creates a node.
func (s *Store) UpdateNodeData(id string, partial map[string]any) error {
	return s.mutate("update node data", func(g *domain.Graph) error {
		idx := indexOfNode(*g, id)
		if idx < 0 {
			return fmt.Errorf("update node %q: %w", id, domain.ErrNodeNotFound)
		}
		if g.Nodes[idx].Data == nil {
			g.Nodes[idx].Data = make(map[string]any, len(partial))
		}
		maps.Copy(g.Nodes[idx].Data, partial)
		return nil
	})
}

// RemoveNode removes a node and every edge attached to it.
// Removing a start or end node is a no-op that fires the warning handler and
// returns domain.ErrTerminalNode, which callers may treat as non-fatal.
func (s *Store) RemoveNode(id string) error {
	var warning *Warning
	err := s.mutate("remove node", func(g *domain.Graph) error {
		idx := indexOfNode(*g, id)
		if idx < 0 {
			return fmt.Errorf("remove node %q: %w", id, domain.ErrNodeNotFound)
		}
		if g.Nodes[idx].Type.IsTerminal() {
			warning = &Warning{NodeID: id, Reason: "start and end nodes cannot be removed"}
			return fmt.Errorf("remove node %q: %w", id, domain.ErrTerminalNode)
		}
		removeNodeAt(g, idx)
		return nil
	})
	if warning != nil {
		s.warn(*warning)
	}
	return err
}

// Clear resets the graph to one start node, one end node, no edges and no selection.
func (s *Store) Clear() {
	// The canonical graph is always valid.
	_ = s.mutate("clear", func(g *domain.Graph) error {
		*g = domain.NewGraph()
		return nil
	})
}

// ReplaceWithGenerated swaps the whole graph for the one described by wf.
// Nodes and connections map 1:1 by id; the first non-terminal node is selected.
// A workflow that would break the graph invariants is rejected whole.
func (s *Store) ReplaceWithGenerated(wf domain.Workflow) error {
	return s.mutate("replace with generated", func(g *domain.Graph) error {
		next := wf.ToGraph()
		if err := next.Validate(); err != nil {
			return fmt.Errorf("generated workflow %q: %w", wf.ID, err)
		}
		*g = next
		return nil
	})
}

// Export returns the current graph as an interchange workflow, keeping meta's identity fields.
func (s *Store) Export(meta domain.Workflow) domain.Workflow {
	return domain.FromGraph(meta, s.Snapshot())
}

package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Library implements ports.WorkflowLibrary and ports.Watchable using an in-memory map.
type Library struct {
	mu        sync.RWMutex
	workflows map[string]domain.Workflow
	watchers  []chan string
}

// NewLibrary creates a library seeded with the given workflows.
func NewLibrary(workflows ...domain.Workflow) *Library {
	l := &Library{workflows: make(map[string]domain.Workflow)}
	for _, wf := range workflows {
		l.workflows[wf.ID] = wf
	}
	return l
}

// Get retrieves a workflow by ID.
func (l *Library) Get(ctx context.Context, id string) (domain.Workflow, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	wf, ok := l.workflows[id]
	if !ok {
		return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
	}
	return wf, nil
}

// Save stores the workflow and notifies watchers.
func (l *Library) Save(ctx context.Context, wf domain.Workflow) error {
	if wf.ID == "" {
		return fmt.Errorf("workflow missing ID")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workflows[wf.ID] = wf

	// Watchers are closed under the same lock, so sends here never race a close.
	for _, w := range l.watchers {
		select {
		case w <- wf.ID:
		default:
		}
	}
	return nil
}

// List returns all workflow IDs, sorted.
func (l *Library) List(ctx context.Context) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.workflows))
	for id := range l.workflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Path returns an empty string: in-memory workflows have no location.
func (l *Library) Path(id string) string {
	return ""
}

// Watch returns a channel signaled with the ID of every saved workflow.
// The channel is closed when ctx is done.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	l.mu.Lock()
	l.watchers = append(l.watchers, ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.watchers {
			if w == ch {
				l.watchers = append(l.watchers[:i], l.watchers[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

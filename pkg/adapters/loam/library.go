// Package loam keeps workflow documents in a directory managed by Loam.
package loam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/loam"

	"github.com/aretw0/arbor/pkg/domain"
)

// Extensions a workflow document may use, in lookup order.
var Extensions = []string{".json", ".yaml", ".yml", ".md"}

const watchPattern = "**/*.{json,yaml,yml,md}"

// Library implements ports.WorkflowLibrary and ports.Watchable on a Loam repository.
type Library struct {
	Repo *loam.TypedRepository[WorkflowMetadata]
	root string
}

// New wraps an existing typed repository rooted at dir.
func New(repo *loam.TypedRepository[WorkflowMetadata], dir string) *Library {
	return &Library{Repo: repo, root: dir}
}

// Open initializes a Loam repository in dir.
// A read-only library never writes, which is what preview mode wants.
func Open(dir string, readOnly bool) (*Library, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	opts := []loam.Option{
		loam.WithVersioning(false),
		loam.WithForceTemp(false),
		loam.WithStrict(true),
	}
	if readOnly {
		opts = append(opts, loam.WithReadOnly(true))
	}
	repo, err := loam.Init(absPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(loam.NewTypedRepository[WorkflowMetadata](repo), absPath), nil
}

// Get loads and converts a workflow document.
func (l *Library) Get(ctx context.Context, id string) (domain.Workflow, error) {
	doc, err := l.Repo.Get(ctx, id)
	if err != nil {
		// Documents saved by this library carry their extension in the loam id.
		var retryErr error
		doc, retryErr = l.Repo.Get(ctx, id+".json")
		if retryErr != nil {
			if !l.exists(id) || errors.Is(err, fs.ErrNotExist) {
				return domain.Workflow{}, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, id)
			}
			return domain.Workflow{}, fmt.Errorf("loam get failed for %s: %w", id, err)
		}
	}

	wf, err := toWorkflow(doc.Data)
	if err != nil {
		return domain.Workflow{}, fmt.Errorf("%w: %s: %v", domain.ErrUnparseableWorkflow, id, err)
	}
	if wf.ID == "" {
		wf.ID = trimExtension(doc.ID)
	}
	if wf.Description == "" {
		wf.Description = strings.TrimSpace(doc.Content)
	}
	return wf, nil
}

// Save writes the workflow as <id>.json.
func (l *Library) Save(ctx context.Context, wf domain.Workflow) error {
	if wf.ID == "" {
		return errors.New("workflow id is required")
	}
	meta, err := toMetadata(wf)
	if err != nil {
		return err
	}
	return l.Repo.Save(ctx, &loam.DocumentModel[WorkflowMetadata]{
		ID:      wf.ID + ".json",
		Content: wf.Description,
		Data:    meta,
	})
}

// List returns workflow ids with extensions stripped.
// Two documents resolving to the same id are reported as a collision.
func (l *Library) List(ctx context.Context) ([]string, error) {
	docs, err := l.Repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]string)
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		rawID := doc.Data.ID
		if rawID == "" {
			rawID = doc.ID
		}
		id := trimExtension(rawID)
		if existing, ok := seen[id]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", id, existing, doc.ID)
		}
		seen[id] = doc.ID
		ids = append(ids, id)
	}
	return ids, nil
}

// Path returns the file backing id, or where Save would put it.
func (l *Library) Path(id string) string {
	if p, ok := l.find(id); ok {
		return p
	}
	if l.root == "" {
		return ""
	}
	return filepath.Join(l.root, filepath.FromSlash(id)+".json")
}

func (l *Library) exists(id string) bool {
	_, ok := l.find(id)
	return ok
}

func (l *Library) find(id string) (string, bool) {
	if l.root == "" {
		return "", false
	}
	for _, ext := range Extensions {
		p := filepath.Join(l.root, filepath.FromSlash(id)+ext)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}

// Watch implements ports.Watchable. Loam debounces file events.
func (l *Library) Watch(ctx context.Context) (<-chan string, error) {
	events, err := l.Repo.Watch(ctx, watchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				select {
				case ch <- trimExtension(evt.ID):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func trimExtension(id string) string {
	return filepath.ToSlash(strings.TrimSuffix(id, filepath.Ext(id)))
}

func toWorkflow(meta WorkflowMetadata) (domain.Workflow, error) {
	var wf domain.Workflow
	b, err := json.Marshal(meta)
	if err != nil {
		return wf, err
	}
	err = json.Unmarshal(b, &wf)
	return wf, err
}

func toMetadata(wf domain.Workflow) (WorkflowMetadata, error) {
	var meta WorkflowMetadata
	b, err := json.Marshal(wf)
	if err != nil {
		return meta, fmt.Errorf("failed to encode workflow: %w", err)
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("failed to encode workflow: %w", err)
	}
	return meta, nil
}

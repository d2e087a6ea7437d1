package host

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// Publisher is the sending half of a transport.
type Publisher interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Previewer pushes workflow documents to a read-only client.
// The first published workflow is sent as PREVIEW_MODE_INIT, later ones as PREVIEW_UPDATE.
type Previewer struct {
	out    Publisher
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewPreviewer creates a Previewer that publishes to out.
func NewPreviewer(out Publisher, logger *slog.Logger) *Previewer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Previewer{out: out, logger: logger}
}

// ParseWorkflow decodes a workflow document, as YAML when path says so and JSON otherwise.
// Any failure wraps domain.ErrUnparseableWorkflow.
func ParseWorkflow(path string, data []byte) (domain.Workflow, error) {
	var wf domain.Workflow
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return wf, fmt.Errorf("%w: %v", domain.ErrUnparseableWorkflow, err)
		}
		b, err := json.Marshal(raw)
		if err != nil {
			return wf, fmt.Errorf("%w: %v", domain.ErrUnparseableWorkflow, err)
		}
		data = b
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return wf, fmt.Errorf("%w: empty document", domain.ErrUnparseableWorkflow)
	}
	if err := json.Unmarshal(data, &wf); err != nil {
		return wf, fmt.Errorf("%w: %v", domain.ErrUnparseableWorkflow, err)
	}
	return wf, nil
}

// Publish parses a raw document and pushes it, or pushes PREVIEW_PARSE_ERROR.
// The returned error only reports transport failures.
func (p *Previewer) Publish(ctx context.Context, path string, data []byte) error {
	wf, err := ParseWorkflow(path, data)
	if err != nil {
		return p.PublishError(ctx, path, err)
	}
	return p.PublishWorkflow(ctx, wf)
}

// PublishWorkflow pushes an already decoded workflow.
func (p *Previewer) PublishWorkflow(ctx context.Context, wf domain.Workflow) error {
	p.mu.Lock()
	t := domain.MsgPreviewUpdate
	if !p.initialized {
		t = domain.MsgPreviewModeInit
	}
	p.mu.Unlock()

	msg, err := domain.NewMessage(t, "", domain.PreviewPayload{Workflow: wf})
	if err != nil {
		return err
	}
	if err := p.out.Send(ctx, msg); err != nil {
		return err
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()
	return nil
}

// PublishError pushes PREVIEW_PARSE_ERROR.
func (p *Previewer) PublishError(ctx context.Context, path string, cause error) error {
	p.logger.Warn("Preview document could not be parsed", "path", path, "err", cause)
	msg, err := domain.NewMessage(domain.MsgPreviewParseError, "", domain.PreviewParseErrorPayload{
		Message: cause.Error(),
		Path:    path,
	})
	if err != nil {
		return err
	}
	return p.out.Send(ctx, msg)
}

// WatchableLibrary is a library that reports changes.
type WatchableLibrary interface {
	ports.WorkflowLibrary
	ports.Watchable
}

// Follow publishes workflow id from lib, then republishes it on every change
// until ctx is done or the watch ends.
func (p *Previewer) Follow(ctx context.Context, lib WatchableLibrary, id string) error {
	changes, err := lib.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch library: %w", err)
	}
	if err := p.publishFrom(ctx, lib, id); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed, ok := <-changes:
			if !ok {
				return nil
			}
			if changed != id {
				continue
			}
			if err := p.publishFrom(ctx, lib, id); err != nil {
				return err
			}
		}
	}
}

func (p *Previewer) publishFrom(ctx context.Context, lib ports.WorkflowLibrary, id string) error {
	wf, err := lib.Get(ctx, id)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return p.PublishError(ctx, lib.Path(id), err)
	}
	return p.PublishWorkflow(ctx, wf)
}

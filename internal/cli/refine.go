package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	arbor "github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/ports"
)

// Dialer connects a designer to a host.
type Dialer func(ctx context.Context) (ports.Transport, error)

// InProcess dials the runtime's host over an in-memory pipe.
func InProcess(rt *Runtime) Dialer {
	return func(ctx context.Context) (ports.Transport, error) {
		client, server := memory.Pipe()
		go func() {
			if err := rt.Server.Serve(ctx, server); err != nil && !errors.Is(err, context.Canceled) {
				rt.Logger.Error("In-process host stopped", "err", err)
			}
		}()
		return client, nil
	}
}

// SpawnHost dials a host started as a child process speaking JSON lines on stdio.
func SpawnHost(command []string, logger *slog.Logger) Dialer {
	return func(ctx context.Context) (ports.Transport, error) {
		if len(command) == 0 {
			return nil, errors.New("host command is empty")
		}
		conn, err := process.Spawn(ctx, process.HostConfig{
			Command: command[0],
			Args:    command[1:],
			Stderr:  os.Stderr,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// RefineParams describes one `arbor refine` invocation.
type RefineParams struct {
	Path    string
	Message string
	// Out defaults to Path.
	Out     string
	Timeout time.Duration
	Dial    Dialer
	Stdout  io.Writer
	Logger  *slog.Logger
}

// RunRefine loads a workflow document, refines it once and writes the result back.
func RunRefine(ctx context.Context, p RefineParams) error {
	if strings.TrimSpace(p.Message) == "" {
		return errors.New("a refinement message is required")
	}
	if p.Stdout == nil {
		p.Stdout = os.Stdout
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Out == "" {
		p.Out = p.Path
	}

	data, err := os.ReadFile(p.Path)
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	meta, err := host.ParseWorkflow(p.Path, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t, err := p.Dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to host: %w", err)
	}

	designer, err := arbor.New(t, meta,
		arbor.WithLogger(p.Logger),
		arbor.WithWarningHandler(func(w graph.Warning) {
			p.Logger.Warn("Workflow edit rejected", "node_id", w.NodeID, "reason", w.Reason)
		}),
	)
	if err != nil {
		t.Close()
		return err
	}
	defer designer.Close()

	go func() {
		if err := designer.Run(ctx); err != nil {
			p.Logger.Debug("Designer channel stopped", "err", err)
		}
	}()

	result, err := designer.Refine(ctx, p.Message, p.Timeout)
	if err != nil {
		return err
	}

	if err := writeWorkflow(p.Out, designer.Export()); err != nil {
		return err
	}

	if result.AIMessage != nil {
		render, err := tui.NewRenderer(p.Stdout)
		if err != nil {
			return err
		}
		out, err := render(result.AIMessage.Content)
		if err != nil {
			return err
		}
		fmt.Fprintln(p.Stdout, strings.TrimRight(out, "\n"))
	}
	p.Logger.Info("Workflow refined",
		"workflow_id", meta.ID,
		"nodes", len(result.Workflow.Nodes),
		"elapsed", result.ExecutionTime,
		"out", p.Out,
	)
	return nil
}

// writeWorkflow keeps the document format implied by the extension.
func writeWorkflow(path string, wf domain.Workflow) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	default:
		data = append(data, '\n')
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write workflow: %w", err)
	}
	return nil
}

package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// PathPlaceholder is replaced by the document path in editor arguments.
const PathPlaceholder = "{path}"

// ErrPathRequired is returned when there is nothing to open.
var ErrPathRequired = errors.New("workflow path is required")

// Opener implements ports.Opener by running an allow-listed editor command.
// Only registered commands can run; the document path is the only caller input.
type Opener struct {
	registry map[string]EditorConfig
	editor   string
	baseDir  string
	wait     bool
	logger   *slog.Logger
}

var _ ports.Opener = (*Opener)(nil)

// OpenerOption configures the opener.
type OpenerOption func(*Opener)

// WithRegistry populates the allow-list from a loaded config.
func WithRegistry(editors map[string]EditorConfig) OpenerOption {
	return func(o *Opener) {
		for name, e := range editors {
			e.Name = name
			o.registry[name] = e
		}
	}
}

// WithEditor selects the registered editor to run.
func WithEditor(name string) OpenerOption {
	return func(o *Opener) {
		o.editor = name
	}
}

// WithBaseDir resolves relative paths and sets the working directory.
func WithBaseDir(dir string) OpenerOption {
	return func(o *Opener) {
		o.baseDir = dir
	}
}

// WithWait makes Open block until the editor exits.
func WithWait(wait bool) OpenerOption {
	return func(o *Opener) {
		o.wait = wait
	}
}

func WithLogger(logger *slog.Logger) OpenerOption {
	return func(o *Opener) {
		o.logger = logger
	}
}

// NewOpener creates an opener with an empty allow-list.
func NewOpener(opts ...OpenerOption) *Opener {
	o := &Opener{
		registry: make(map[string]EditorConfig),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a trusted editor command to the allow-list.
func (o *Opener) Register(name, command string, args ...string) {
	o.registry[name] = EditorConfig{Name: name, Command: command, Args: args}
}

// Open runs the selected editor on path.
// An unregistered editor or a missing binary yields domain.ErrCommandNotFound.
func (o *Opener) Open(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return ErrPathRequired
	}
	editor, ok := o.registry[o.editor]
	if !ok {
		return fmt.Errorf("%w: editor %q is not registered", domain.ErrCommandNotFound, o.editor)
	}
	bin, err := exec.LookPath(editor.Command)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrCommandNotFound, editor.Command, err)
	}

	target := o.resolve(path)
	cmd := exec.CommandContext(ctx, bin, expandArgs(editor.Args, target)...)
	cmd.Dir = o.baseDir
	cmd.Env = cmd.Environ()
	for k, v := range editor.Environment {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env, "ARBOR_WORKFLOW_PATH="+target)

	o.logger.Debug("Opening workflow in editor", "editor", editor.Name, "path", target)
	if o.wait {
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("editor %s failed: %w: %s", editor.Name, err, strings.TrimSpace(string(out)))
		}
		return nil
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start editor %s: %w", editor.Name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			o.logger.Warn("Editor exited with error", "editor", editor.Name, "err", err)
		}
	}()
	return nil
}

// resolve makes path absolute so it can never be read as a flag.
func (o *Opener) resolve(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(o.baseDir, path)
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return filepath.Clean(path)
}

func expandArgs(args []string, path string) []string {
	out := make([]string, 0, len(args)+1)
	replaced := false
	for _, a := range args {
		if strings.Contains(a, PathPlaceholder) {
			a = strings.ReplaceAll(a, PathPlaceholder, path)
			replaced = true
		}
		out = append(out, a)
	}
	if !replaced {
		out = append(out, path)
	}
	return out
}

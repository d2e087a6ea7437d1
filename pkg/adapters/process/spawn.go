package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/adapters/jsonl"
)

// HostConfig describes how to start a host process.
type HostConfig struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	// Stderr receives the host's diagnostics. Defaults to os.Stderr.
	Stderr io.Writer
	Logger *slog.Logger
}

// Spawn starts the host and returns a JSON-lines transport over its stdio.
// Closing the transport closes the host's stdin and waits for it to exit.
func Spawn(ctx context.Context, cfg HostConfig) (*jsonl.Conn, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cmd.Environ()
	for k, v := range cfg.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Stderr = cfg.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("host stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start host %s: %w", cfg.Command, err)
	}
	logger.Debug("Host started", "command", cfg.Command, "pid", cmd.Process.Pid)

	return jsonl.New(stdout, stdin,
		jsonl.WithLogger(logger),
		jsonl.WithClosers(stdin, &waiter{cmd: cmd, logger: logger}),
	), nil
}

// waiter reaps the host process on Close.
type waiter struct {
	cmd    *exec.Cmd
	logger *slog.Logger
	once   sync.Once
	err    error
}

func (w *waiter) Close() error {
	w.once.Do(func() {
		w.err = w.cmd.Wait()
		w.logger.Debug("Host exited", "err", w.err)
	})
	return w.err
}

// Package cli wires configuration into running hosts and clients for cmd/arbor.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/adapters/llm"
	loamadapter "github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
	"github.com/aretw0/arbor/pkg/session"
)

// Runtime is a fully wired host with the resources it owns.
type Runtime struct {
	Config   config.Config
	Logger   *slog.Logger
	Server   *host.Server
	Library  *loamadapter.Library
	Schema   *schema.Document
	Stores   *config.Stores
	Registry *prometheus.Registry
}

// RuntimeOption adjusts NewRuntime.
type RuntimeOption func(*runtimeSettings)

type runtimeSettings struct {
	refiner ports.Refiner
	getenv  func(string) string
}

// WithRefiner replaces the configured language model.
func WithRefiner(r ports.Refiner) RuntimeOption {
	return func(s *runtimeSettings) { s.refiner = r }
}

// WithEnv replaces os.Getenv for editor discovery.
func WithEnv(getenv func(string) string) RuntimeOption {
	return func(s *runtimeSettings) { s.getenv = getenv }
}

// NewRuntime builds the host described by cfg.
func NewRuntime(cfg config.Config, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	settings := runtimeSettings{getenv: os.Getenv}
	for _, opt := range opts {
		opt(&settings)
	}

	rt := &Runtime{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}
	rt.Registry.MustRegister(collectors.NewGoCollector())

	cache := schema.NewCache(schema.WithCacheLogger(logger))
	load := schema.LoadDefault
	if cfg.Schema != "" {
		load = func() (*schema.Document, error) { return cache.Load(cfg.Schema) }
	}
	doc, err := load()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	rt.Schema = doc

	stores, err := cfg.OpenStores()
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}
	rt.Stores = stores

	sessionOpts := []session.Option{session.WithLogger(logger)}
	if stores.Locker != nil {
		sessionOpts = append(sessionOpts, session.WithLocker(stores.Locker))
	}

	hostOpts := []host.Option{
		host.WithLogger(logger),
		host.WithSessions(session.NewManager(stores.Conversations, sessionOpts...)),
		host.WithMetrics(observability.NewMetrics(rt.Registry)),
		host.WithSpanManager(observability.NewSpanManager()),
		host.WithMaxIterations(cfg.Host.MaxIterations),
		host.WithDefaultTimeout(cfg.Host.Timeout),
	}
	if cfg.Schema != "" {
		hostOpts = append(hostOpts, host.WithSchema(cache, cfg.Schema))
	}

	if cfg.Library.Dir != "" {
		lib, err := loamadapter.Open(cfg.Library.Dir, cfg.Library.ReadOnly)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open workflow library: %w", err)
		}
		rt.Library = lib
		hostOpts = append(hostOpts, host.WithLibrary(lib))
	}

	opener, err := newOpener(cfg, logger, settings.getenv)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if opener != nil {
		hostOpts = append(hostOpts, host.WithOpener(opener))
	}

	refiner := settings.refiner
	if refiner == nil {
		refiner, err = NewRefiner(cfg, rt.Schema, logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
	}

	rt.Server = host.NewServer(refiner, hostOpts...)
	return rt, nil
}

// Close releases the stores.
func (rt *Runtime) Close() error {
	if rt.Stores == nil {
		return nil
	}
	return rt.Stores.Close()
}

// NewRefiner returns the configured language model, or a refiner that fails
// every request with COMMAND_NOT_FOUND when none is configured.
func NewRefiner(cfg config.Config, doc *schema.Document, logger *slog.Logger) (ports.Refiner, error) {
	if cfg.Refiner.Model == "" {
		return ports.RefinerFunc(func(context.Context, ports.RefineRequest) (*ports.RefineResult, error) {
			return nil, fmt.Errorf("%w: %w", domain.ErrCommandNotFound, llm.ErrNoModel)
		}), nil
	}
	r, err := llm.NewOpenAI(cfg.Refiner.Model, cfg.Refiner.Token, cfg.Refiner.BaseURL,
		llm.WithSchema(doc),
		llm.WithTemperature(cfg.Refiner.Temperature),
		llm.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("configure refiner: %w", err)
	}
	return r, nil
}

// envEditor is the registry name of the editor taken from $VISUAL or $EDITOR.
const envEditor = "env"

func newOpener(cfg config.Config, logger *slog.Logger, getenv func(string) string) (ports.Opener, error) {
	editors, err := process.LoadEditors(cfg.Editor.Config)
	if err != nil {
		return nil, err
	}

	name := cfg.Editor.Name
	if name == "" {
		cmd := getenv("VISUAL")
		if cmd == "" {
			cmd = getenv("EDITOR")
		}
		fields := strings.Fields(cmd)
		if len(fields) == 0 {
			return nil, nil
		}
		editors[envEditor] = process.EditorConfig{Command: fields[0], Args: fields[1:]}
		name = envEditor
	}
	if _, ok := editors[name]; !ok {
		return nil, errors.New("editor " + name + " is not defined in " + cfg.Editor.Config)
	}

	var opener ports.Opener = process.NewOpener(
		process.WithRegistry(editors),
		process.WithEditor(name),
		process.WithBaseDir(cfg.Library.Dir),
		process.WithLogger(logger),
	)
	return opener, nil
}

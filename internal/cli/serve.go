package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	arbor "github.com/aretw0/arbor"
	arborhttp "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/jsonl"
	"github.com/aretw0/arbor/pkg/adapters/mcp"
	"github.com/aretw0/arbor/pkg/host"
)

// ShutdownTimeout bounds graceful HTTP shutdown.
const ShutdownTimeout = 5 * time.Second

// RunHost serves the JSON-lines protocol over in/out until the peer hangs up.
// When watchID is set the workflow is pushed as preview events on every save.
func RunHost(ctx context.Context, rt *Runtime, in io.Reader, out io.Writer, watchID string) error {
	conn := jsonl.New(in, out, jsonl.WithLogger(rt.Logger))
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watchID != "" {
		if err := follow(ctx, rt, conn, watchID); err != nil {
			return err
		}
	}

	rt.Logger.Info("Host ready", "transport", "stdio", "version", arbor.Version)
	err := rt.Server.Serve(ctx, conn)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunHTTP serves the protocol over HTTP at addr until ctx is done.
func RunHTTP(ctx context.Context, rt *Runtime, addr, watchID string) error {
	streams := arborhttp.NewStreamManager(rt.Logger)
	api := arborhttp.NewServer(rt.Server,
		arborhttp.WithLogger(rt.Logger),
		arborhttp.WithStreams(streams),
		arborhttp.WithGatherer(rt.Registry),
		arborhttp.WithVersion(arbor.Version),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if watchID != "" {
		if err := follow(ctx, rt, streams, watchID); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	rt.Logger.Info("Shutting down HTTP server")
	shutdownCtx, done := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
)

// RunMCP exposes the host as MCP tools.
func RunMCP(ctx context.Context, rt *Runtime, transport string, port int) error {
	opts := []mcp.Option{
		mcp.WithLogger(rt.Logger),
		mcp.WithSchema(rt.Schema),
		mcp.WithVersion(arbor.Version),
	}
	if rt.Library != nil {
		opts = append(opts, mcp.WithLibrary(rt.Library))
	}
	srv := mcp.NewServer(rt.Server, opts...)

	switch transport {
	case TransportStdio, "":
		return srv.ServeStdio()
	case TransportSSE:
		return srv.ServeSSE(ctx, port)
	default:
		return fmt.Errorf("unknown MCP transport %q (want %s or %s)", transport, TransportStdio, TransportSSE)
	}
}

func follow(ctx context.Context, rt *Runtime, out host.Publisher, id string) error {
	if rt.Library == nil {
		return errors.New("watching requires a workflow library")
	}
	previewer := host.NewPreviewer(out, rt.Logger)
	go func() {
		if err := previewer.Follow(ctx, rt.Library, id); err != nil {
			rt.Logger.Error("Preview watch stopped", "workflow_id", id, "err", err)
		}
	}()
	return nil
}

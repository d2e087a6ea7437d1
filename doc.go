/*
Package arbor is the core of a visual agent-workflow designer split into an
unprivileged client and a privileged host.

The client edits a workflow graph; the host performs file I/O, schema loading
and AI-assisted refinement. The two only talk through an asynchronous message
channel carrying JSON envelopes correlated by request id.

# Concept

A Designer is the client side. It owns:

  - a graph.Store, the only writer of the workflow graph. Every mutation is
    validated before it is committed, so a graph always has exactly one start
    and one end node and no dangling edge.
  - a channel.Channel, which races each request against its timer and settles
    it exactly once with a response, a typed failure, a generic error or a
    timeout.
  - a refinement.Service running the refine and clear-conversation flows.
  - a preview.Observer following documents edited outside the designer.

The host side is host.Server. It answers the protocol over any
ports.Transport: stdio JSON lines (adapters/jsonl), an in-process pipe
(adapters/memory), HTTP (adapters/http) or MCP (adapters/mcp).

# Usage

Run both ends in one process, for tests or embedded use:

	srv := host.NewServer(myRefiner)
	d, err := arbor.NewEmbedded(ctx, srv, domain.Workflow{ID: "wf", Name: "Demo"})
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	res, err := d.Refine(ctx, "add a summary step", 0)
	var uiErr *refinement.UIError
	if errors.As(err, &uiErr) {
		fmt.Println(uiErr.Code, uiErr.Message)
	}

Against a separate host process, spawn it with adapters/process.Spawn and
pass the returned transport to New, then call Run.
*/
package arbor

// Package llm implements ports.Refiner on top of a langchaingo chat model.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
)

const systemPrompt = `You edit workflow graphs for an agent designer.
A workflow has exactly one "start" node and one "end" node. Both must be kept.
Connections reference node ids with "from" and "to".
Answer with a single JSON object and nothing else:
{"message": "<short explanation for the user>", "workflow": <the complete refined workflow>}
Keep node ids stable when a node is unchanged.`

// reply is the JSON object the model is asked for.
type reply struct {
	Message  string          `json:"message"`
	Workflow domain.Workflow `json:"workflow"`
}

// Refiner asks a chat model to rewrite the workflow.
type Refiner struct {
	model       llms.Model
	schema      *schema.Document
	temperature float64
	jsonMode    bool
	logger      *slog.Logger
}

var _ ports.Refiner = (*Refiner)(nil)

// Option configures the Refiner.
type Option func(*Refiner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Refiner) { r.logger = logger }
}

// WithSchema describes the available node types to the model.
func WithSchema(doc *schema.Document) Option {
	return func(r *Refiner) { r.schema = doc }
}

func WithTemperature(t float64) Option {
	return func(r *Refiner) { r.temperature = t }
}

// WithJSONMode asks providers that support it for a JSON-only answer.
func WithJSONMode(enabled bool) Option {
	return func(r *Refiner) { r.jsonMode = enabled }
}

// New creates a Refiner backed by model.
func New(model llms.Model, opts ...Option) *Refiner {
	r := &Refiner{
		model:       model,
		temperature: 0.2,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.schema == nil {
		r.schema = schema.Default()
	}
	return r
}

// NewOpenAI builds a Refiner for an OpenAI-compatible endpoint.
// An empty baseURL uses the provider default.
func NewOpenAI(model, token, baseURL string, opts ...Option) (*Refiner, error) {
	clientOpts := []openai.Option{openai.WithModel(model)}
	if token != "" {
		clientOpts = append(clientOpts, openai.WithToken(token))
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return New(client, append([]Option{WithJSONMode(true)}, opts...)...), nil
}

// Refine sends the workflow, the history and the instruction to the model.
func (r *Refiner) Refine(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
	messages, err := r.messages(req)
	if err != nil {
		return nil, err
	}

	callOpts := []llms.CallOption{llms.WithTemperature(r.temperature)}
	if r.jsonMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := r.model.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", domain.ErrUnparseableWorkflow)
	}

	content := resp.Choices[0].Content
	out, err := parseReply(content)
	if err != nil {
		r.logger.Warn("LLM reply rejected", "err", err, "size", len(content))
		return nil, err
	}
	return &ports.RefineResult{Workflow: out.Workflow, Message: out.Message}, nil
}

func (r *Refiner) messages(req ports.RefineRequest) ([]llms.MessageContent, error) {
	catalog, err := r.catalog()
	if err != nil {
		return nil, err
	}
	current, err := json.Marshal(req.Workflow)
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt+"\n\nNode types:\n"+catalog),
	}
	if req.History != nil {
		for _, m := range req.History.Messages {
			role := llms.ChatMessageTypeHuman
			if m.Sender == domain.SenderAI {
				role = llms.ChatMessageTypeAI
			}
			messages = append(messages, llms.TextParts(role, m.Content))
		}
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman,
		fmt.Sprintf("Current workflow:\n%s\n\nInstruction:\n%s", current, req.Message)))
	return messages, nil
}

func (r *Refiner) catalog() (string, error) {
	var sb strings.Builder
	for _, t := range r.schema.Types() {
		spec := r.schema.NodeTypes[t]
		fields, err := json.Marshal(spec.Fields)
		if err != nil {
			return "", fmt.Errorf("encode fields of %s: %w", t, err)
		}
		fmt.Fprintf(&sb, "- %s: %s data=%s\n", t, spec.Description, fields)
	}
	return sb.String(), nil
}

// parseReply extracts the JSON object from a model answer, tolerating code fences
// and surrounding prose.
func parseReply(content string) (reply, error) {
	var out reply
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < start {
		return out, fmt.Errorf("%w: no JSON object in reply", domain.ErrUnparseableWorkflow)
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &out); err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrUnparseableWorkflow, err)
	}
	if len(out.Workflow.Nodes) == 0 {
		return out, fmt.Errorf("%w: reply has no workflow nodes", domain.ErrUnparseableWorkflow)
	}
	return out, nil
}

// ErrNoModel is returned by the CLI factory when no provider is configured.
var ErrNoModel = errors.New("no language model configured")

package http_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	arborhttp "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
)

var _ host.Publisher = (*arborhttp.StreamManager)(nil)

var echoRefiner = ports.RefinerFunc(func(ctx context.Context, req ports.RefineRequest) (*ports.RefineResult, error) {
	return &ports.RefineResult{Workflow: req.Workflow, Message: "unchanged"}, nil
})

func validWorkflow() domain.Workflow {
	return domain.Workflow{
		ID:          "wf",
		Name:        "Demo",
		Nodes:       []domain.WorkflowNode{{ID: "start", Type: domain.NodeTypeStart}, {ID: "end", Type: domain.NodeTypeEnd}},
		Connections: []domain.WorkflowConnection{{ID: "c", From: "start", To: "end"}},
	}
}

func post(t *testing.T, h http.Handler, msg domain.Message) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", bytes.NewReader(b)))
	return w
}

func TestPostMessage_Refine(t *testing.T) {
	h := arborhttp.NewServer(host.NewServer(echoRefiner)).Router()

	msg, err := domain.NewMessage(domain.MsgRefineWorkflow, "r1", domain.RefineWorkflowPayload{
		WorkflowID:      "wf",
		UserMessage:     "keep it",
		CurrentWorkflow: validWorkflow(),
	})
	require.NoError(t, err)

	w := post(t, h, msg)
	require.Equal(t, http.StatusOK, w.Code)

	var reply domain.Message
	require.NoError(t, json.NewDecoder(w.Body).Decode(&reply))
	assert.Equal(t, domain.MsgRefinementSuccess, reply.Type)
	assert.Equal(t, "r1", reply.RequestID)
}

func TestPostMessage_FireAndForget(t *testing.T) {
	h := arborhttp.NewServer(host.NewServer(echoRefiner)).Router()
	msg, _ := domain.NewMessage(domain.MsgOpenWorkflowInEditor, "", domain.OpenInEditorPayload{WorkflowID: "wf"})
	assert.Equal(t, http.StatusAccepted, post(t, h, msg).Code)
}

func TestPostMessage_BadBody(t *testing.T) {
	h := arborhttp.NewServer(host.NewServer(echoRefiner)).Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/messages", strings.NewReader(`{"requestId":"x"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthInfoMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	srv := arborhttp.NewServer(host.NewServer(echoRefiner, host.WithMetrics(metrics)),
		arborhttp.WithGatherer(reg),
		arborhttp.WithVersion("1.2.3"),
	)
	h := srv.Router()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/info", nil))
	assert.Contains(t, w.Body.String(), `"version":"1.2.3"`)

	post(t, h, domain.Message{Type: "NOPE", RequestID: "x"})
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arbor_host_requests_total")
}

func TestSubscribeEvents_StreamsPreview(t *testing.T) {
	srv := arborhttp.NewServer(host.NewServer(echoRefiner), arborhttp.WithKeepAlive(time.Hour))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?workflowId=wf", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool { return srv.Streams.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	preview := host.NewPreviewer(srv.Streams, nil)
	other := validWorkflow()
	other.ID = "other"
	require.NoError(t, preview.PublishWorkflow(ctx, other))
	require.NoError(t, preview.PublishWorkflow(ctx, validWorkflow()))

	scanner := bufio.NewScanner(resp.Body)
	var events []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
		if len(events) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"ping", string(domain.MsgPreviewUpdate)}, events, "the other workflow is filtered out")
}

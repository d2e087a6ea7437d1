package jsonl_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/jsonl"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ ports.Transport = (*jsonl.Conn)(nil)

func TestConn_ReceiveSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"REFINEMENT_SUCCESS","requestId":"r1","payload":{"executionTimeMs":3}}`,
		``,
		`not json`,
		`{"requestId":"no-type"}`,
		`{"type":"PREVIEW_UPDATE","payload":{"workflow":{"id":"wf"}}}`,
	}, "\n")
	conn := jsonl.New(strings.NewReader(input), io.Discard)
	ctx := context.Background()

	msg, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgRefinementSuccess, msg.Type)
	assert.Equal(t, "r1", msg.RequestID)

	msg, err = conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgPreviewUpdate, msg.Type)

	_, err = conn.Receive(ctx)
	assert.ErrorIs(t, err, domain.ErrTransportClosed, "EOF closes the transport")
}

func TestConn_ReceiveHonoursContext(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	conn := jsonl.New(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := conn.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConn_SendWritesOneLinePerMessage(t *testing.T) {
	var buf bytes.Buffer
	conn := jsonl.New(strings.NewReader(""), &buf)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, _ := domain.NewMessage(domain.MsgClearConversation, "id", domain.ConversationPayload{WorkflowID: "wf"})
			assert.NoError(t, conn.Send(ctx, msg))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var msg domain.Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		assert.Equal(t, domain.MsgClearConversation, msg.Type)
	}
}

type closeRecorder struct{ closed int }

func (c *closeRecorder) Close() error {
	c.closed++
	return nil
}

func TestConn_Close(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	rec := &closeRecorder{}
	conn := jsonl.New(r, io.Discard, jsonl.WithClosers(rec))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Equal(t, 1, rec.closed)

	_, err := conn.Receive(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransportClosed)

	err = conn.Send(context.Background(), domain.Message{Type: domain.MsgError})
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
}

// Two conns wired back to back behave like a duplex link.
func TestConn_Duplex(t *testing.T) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := jsonl.New(ar, aw, jsonl.WithClosers(ar, aw))
	b := jsonl.New(br, bw, jsonl.WithClosers(br, bw))
	defer a.Close()
	defer b.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		msg, err := b.Receive(ctx)
		if err == nil {
			msg.Type = domain.MsgConversationCleared
			_ = b.Send(ctx, msg)
		}
	}()

	out, _ := domain.NewMessage(domain.MsgClearConversation, "req-1", domain.ConversationPayload{WorkflowID: "wf"})
	require.NoError(t, a.Send(ctx, out))
	in, err := a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MsgConversationCleared, in.Type)
	assert.Equal(t, "req-1", in.RequestID)
}

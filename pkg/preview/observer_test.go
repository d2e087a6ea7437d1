package preview_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/channel"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/host"
	"github.com/aretw0/arbor/pkg/preview"
)

var _ preview.EventSource = (*channel.Channel)(nil)

func event(t *testing.T, typ domain.MessageType, payload any) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(typ, "", payload)
	require.NoError(t, err)
	return msg
}

func TestObserver_FoldsEvents(t *testing.T) {
	o := preview.NewObserver(nil)
	var seen []preview.State
	unsubscribe := o.Subscribe(func(s preview.State) { seen = append(seen, s) })

	assert.False(t, o.State().Active)

	o.Handle(event(t, domain.MsgPreviewModeInit, domain.PreviewPayload{Workflow: domain.Workflow{ID: "wf", Name: "v1"}}))
	st := o.State()
	assert.True(t, st.Active)
	assert.Equal(t, "v1", st.Workflow.Name)

	o.Handle(event(t, domain.MsgPreviewParseError, domain.PreviewParseErrorPayload{Message: "bad", Path: "wf.json"}))
	st = o.State()
	require.NotNil(t, st.ParseError)
	assert.Equal(t, "wf.json", st.ParseError.Path)
	assert.Equal(t, "v1", st.Workflow.Name, "last good workflow is kept")

	o.Handle(event(t, domain.MsgPreviewUpdate, domain.PreviewPayload{Workflow: domain.Workflow{ID: "wf", Name: "v2"}}))
	st = o.State()
	assert.Nil(t, st.ParseError)
	assert.Equal(t, "v2", st.Workflow.Name)

	o.Handle(domain.Message{Type: domain.MsgRefinementSuccess})
	assert.Len(t, seen, 3)

	unsubscribe()
	o.Handle(event(t, domain.MsgPreviewUpdate, domain.PreviewPayload{Workflow: domain.Workflow{ID: "wf"}}))
	assert.Len(t, seen, 3)
}

func TestObserver_MalformedEventIsDropped(t *testing.T) {
	o := preview.NewObserver(nil)
	o.Handle(domain.Message{Type: domain.MsgPreviewUpdate})
	assert.False(t, o.State().Active)
}

// End to end: a host Previewer pushes over a pipe and the client Observer follows.
func TestObserver_AttachedToChannel(t *testing.T) {
	client, hostSide := memory.Pipe()
	ch := channel.New(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = ch.Run(ctx) }()

	o := preview.NewObserver(nil)
	detach := o.Attach(ch)
	defer detach()

	pub := host.NewPreviewer(hostSide, nil)
	require.NoError(t, pub.Publish(ctx, "flow.json", []byte(`{"id":"flow","name":"Draft"}`)))

	require.Eventually(t, func() bool {
		st := o.State()
		return st.Active && st.Workflow != nil && st.Workflow.Name == "Draft"
	}, time.Second, 5*time.Millisecond)
}

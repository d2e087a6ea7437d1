package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunConversationStoreContract runs a suite of tests to verify that a ConversationStore
// implementation adheres to the defined interface contract.
func RunConversationStoreContract(t *testing.T, store ConversationStore) {
	ctx := context.Background()
	workflowID := "contract-test-workflow-" + time.Now().Format("20060102150405")
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Save and Load", func(t *testing.T) {
		history := domain.NewConversationHistory(now)
		history.Append(
			domain.ConversationMessage{ID: "u1", Sender: domain.SenderUser, Content: "add a prompt", Timestamp: now},
			domain.ConversationMessage{ID: "a1", Sender: domain.SenderAI, Content: "done", Timestamp: now.Add(time.Second)},
		)

		err := store.Save(ctx, workflowID, history)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, workflowID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, 1, loaded.CurrentIteration)
		assert.Equal(t, domain.DefaultMaxIterations, loaded.MaxIterations)
		require.Len(t, loaded.Messages, 2)
		assert.Equal(t, domain.SenderAI, loaded.Messages[1].Sender)
		assert.Equal(t, "done", loaded.Messages[1].Content)
		assert.True(t, loaded.UpdatedAt.Equal(now.Add(time.Second)))
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+workflowID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, workflowID, domain.NewConversationHistory(now))
		require.NoError(t, err)

		err = store.Delete(ctx, workflowID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, workflowID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound, "Load after Delete should return ErrConversationNotFound")

		assert.NoError(t, store.Delete(ctx, workflowID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := workflowID + "-1"
		id2 := workflowID + "-2"
		_ = store.Save(ctx, id1, domain.NewConversationHistory(now))
		_ = store.Save(ctx, id2, domain.NewConversationHistory(now))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}

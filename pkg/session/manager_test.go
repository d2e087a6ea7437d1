package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s SlowStore) Save(ctx context.Context, id string, h *domain.ConversationHistory) error {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Save(ctx, id, h)
}

func (s SlowStore) Load(ctx context.Context, id string) (*domain.ConversationHistory, error) {
	time.Sleep(5 * time.Millisecond)
	return s.Store.Load(ctx, id)
}

func turn(text string) (domain.ConversationMessage, domain.ConversationMessage) {
	return domain.ConversationMessage{Sender: domain.SenderUser, Content: text, Timestamp: now},
		domain.ConversationMessage{Sender: domain.SenderAI, Content: "ok", Timestamp: now}
}

// Without per-workflow locking, concurrent read-modify-write cycles would lose turns.
func TestManager_UpdateIsSerialized(t *testing.T) {
	manager := session.NewManager(SlowStore{memory.NewStore()}, session.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := manager.Update(ctx, "wf", nil, func(_ context.Context, h *domain.ConversationHistory) error {
				h.Append(turn("more"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h, err := manager.Load(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, 10, h.CurrentIteration)
	assert.Len(t, h.Messages, 20)
}

func TestManager_UpdateSeedsFromClient(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	seed := domain.NewConversationHistory(now)
	seed.Append(turn("from client"))

	h, err := manager.Update(ctx, "wf", seed, func(_ context.Context, h *domain.ConversationHistory) error {
		h.Append(turn("next"))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, h.CurrentIteration)
	assert.Equal(t, 1, seed.CurrentIteration, "the seed is copied, not mutated")

	// Once stored, the stored history wins over the seed.
	h, err = manager.Update(ctx, "wf", domain.NewConversationHistory(now), func(context.Context, *domain.ConversationHistory) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, h.CurrentIteration)
}

func TestManager_UpdateFailureDoesNotSave(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := manager.Update(ctx, "wf", nil, func(_ context.Context, h *domain.ConversationHistory) error {
		h.Append(turn("lost"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = manager.Load(ctx, "wf")
	assert.ErrorIs(t, err, domain.ErrConversationNotFound)
}

func TestManager_DeleteAndList(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, "a", domain.NewConversationHistory(now)))
	require.NoError(t, manager.Save(ctx, "b", domain.NewConversationHistory(now)))
	require.NoError(t, manager.Delete(ctx, "a"))

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	args := m.Called(ctx, key, ttl)
	if fn := args.Get(0); fn != nil {
		return fn.(ports.UnlockFunc), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestManager_DistributedLock(t *testing.T) {
	locker := new(MockLocker)
	released := false
	unlock := ports.UnlockFunc(func(ctx context.Context) error {
		released = true
		return nil
	})
	locker.On("Lock", mock.Anything, "conversation:wf", 10*time.Second).Return(unlock, nil).Once()

	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker), session.WithLockTTL(10*time.Second))
	require.NoError(t, manager.Save(context.Background(), "wf", domain.NewConversationHistory(now)))

	locker.AssertExpectations(t)
	assert.True(t, released)
}

func TestManager_DistributedLockFailure(t *testing.T) {
	locker := new(MockLocker)
	locker.On("Lock", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("redis down"))

	manager := session.NewManager(memory.NewStore(), session.WithLocker(locker))
	err := manager.Save(context.Background(), "wf", domain.NewConversationHistory(now))
	assert.ErrorContains(t, err, "failed to acquire distributed lock")
}

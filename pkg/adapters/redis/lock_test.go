package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/session"
)

func TestRedisLocker_LockUnlock(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "resource1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:lock:resource1"))

	require.NoError(t, unlock(ctx))
	assert.False(t, mr.Exists("test:lock:resource1"))
}

func TestRedisLocker_Contention(t *testing.T) {
	_, client := setup(t)
	locker1 := redis.NewLocker(client, "test:")
	locker2 := redis.NewLocker(client, "test:")
	ctx := context.Background()

	unlock1, err := locker1.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
	defer cancel()
	_, err = locker2.Lock(short, "shared", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, unlock1(ctx))

	unlock2, err := locker2.Lock(ctx, "shared", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, unlock2(ctx))
}

// An expired holder must not release a lock that someone else now owns.
func TestRedisLocker_StaleUnlockKeepsNewOwner(t *testing.T) {
	mr, client := setup(t)
	locker := redis.NewLocker(client, "test:")
	ctx := context.Background()

	stale, err := locker.Lock(ctx, "k", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Lock(ctx, "k", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("test:lock:k"))
	require.NoError(t, fresh(ctx))
}

// Two managers sharing Redis serialize on the same workflow like two host replicas would.
func TestRedisLocker_WithSessionManager(t *testing.T) {
	_, client := setup(t)
	store := memory.NewStore()
	a := session.NewManager(store, session.WithLocker(redis.NewLocker(client, "arbor:")))
	b := session.NewManager(store, session.WithLocker(redis.NewLocker(client, "arbor:")))
	ctx := context.Background()

	done := make(chan struct{})
	for _, m := range []*session.Manager{a, b} {
		go func(m *session.Manager) {
			for i := 0; i < 5; i++ {
				_, err := m.Update(ctx, "wf", nil, func(_ context.Context, h *domain.ConversationHistory) error {
					now := time.Now()
					h.Append(
						domain.ConversationMessage{Sender: domain.SenderUser, Content: "u", Timestamp: now},
						domain.ConversationMessage{Sender: domain.SenderAI, Content: "a", Timestamp: now},
					)
					return nil
				})
				assert.NoError(t, err)
			}
			done <- struct{}{}
		}(m)
	}
	<-done
	<-done

	h, err := store.Load(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, 10, h.CurrentIteration)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 2 * time.Minute

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates conversation access, ensuring safe concurrent operations.
// It uses Reference Counting to garbage collect unused locks.
type Manager struct {
	store ports.ConversationStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL overrides DefaultLockTTL.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithClock overrides the time source used for new histories.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new conversation Manager with the given persistence store.
func NewManager(store ports.ConversationStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		now:     time.Now,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(key) after unlocking.
func (m *Manager) acquire(key string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		entry = &lockEntry{}
		m.locks[key] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[key]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, key)
	}
}

// Load retrieves a stored conversation.
// Returns domain.ErrConversationNotFound if there is none.
func (m *Manager) Load(ctx context.Context, workflowID string) (*domain.ConversationHistory, error) {
	var h *domain.ConversationHistory
	err := m.WithLock(ctx, workflowID, func(ctx context.Context) error {
		var err error
		h, err = m.store.Load(ctx, workflowID)
		return err
	})
	return h, err
}

// Update runs fn on the conversation of a workflow and saves it when fn succeeds.
// The conversation is the stored one, else a copy of seed (the history the client
// round-tripped), else a new one. The whole read-modify-write holds the workflow lock.
func (m *Manager) Update(ctx context.Context, workflowID string, seed *domain.ConversationHistory, fn func(ctx context.Context, h *domain.ConversationHistory) error) (*domain.ConversationHistory, error) {
	var h *domain.ConversationHistory
	err := m.WithLock(ctx, workflowID, func(ctx context.Context) error {
		var err error
		h, err = m.loadOrStart(ctx, workflowID, seed)
		if err != nil {
			return err
		}
		if err := fn(ctx, h); err != nil {
			return err
		}
		if err := m.store.Save(ctx, workflowID, h); err != nil {
			return fmt.Errorf("failed to save conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) loadOrStart(ctx context.Context, workflowID string, seed *domain.ConversationHistory) (*domain.ConversationHistory, error) {
	h, err := m.store.Load(ctx, workflowID)
	if err == nil {
		return h, nil
	}
	if !errors.Is(err, domain.ErrConversationNotFound) {
		return nil, fmt.Errorf("failed to check conversation existence: %w", err)
	}
	if seed != nil {
		return seed.Clone(), nil
	}
	return domain.NewConversationHistory(m.now()), nil
}

// Save persists a conversation.
func (m *Manager) Save(ctx context.Context, workflowID string, h *domain.ConversationHistory) error {
	return m.WithLock(ctx, workflowID, func(ctx context.Context) error {
		return m.store.Save(ctx, workflowID, h)
	})
}

// Delete removes a conversation from the store.
func (m *Manager) Delete(ctx context.Context, workflowID string) error {
	return m.WithLock(ctx, workflowID, func(ctx context.Context) error {
		return m.store.Delete(ctx, workflowID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying conversation store.
func (m *Manager) Store() ports.ConversationStore {
	return m.store
}

// WithLock executes a function while holding the lock for the workflow.
func (m *Manager) WithLock(ctx context.Context, workflowID string, fn func(context.Context) error) error {
	entry := m.acquire(workflowID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(workflowID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, "conversation:"+workflowID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The caller's ctx may already be done; release with a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := unlock(releaseCtx); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"workflow_id", workflowID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aretw0/arbor/pkg/adapters/memory"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/adapters/sqlite"
	"github.com/aretw0/arbor/pkg/persistence/middleware"
	"github.com/aretw0/arbor/pkg/ports"
)

// Stores bundles the conversation store with its optional lock and cleanup.
type Stores struct {
	Conversations ports.ConversationStore
	Locker        ports.DistributedLocker
	closers       []io.Closer
}

// Close releases the backing connections.
func (s *Stores) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// OpenStores builds the configured conversation store, wrapped with the
// PII and encryption middlewares when enabled.
func (c Config) OpenStores() (*Stores, error) {
	out := &Stores{}

	switch c.Store.Driver {
	case StoreSQLite:
		if dir := filepath.Dir(c.Store.Path); dir != "." && c.Store.Path != ":memory:" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		st, err := sqlite.New(c.Store.Path)
		if err != nil {
			return nil, err
		}
		out.Conversations = st
		out.closers = append(out.closers, st)
	case StoreRedis:
		var opts []redis.Option
		if c.Store.TTL > 0 {
			opts = append(opts, redis.WithTTL(c.Store.TTL))
		}
		if c.Store.Prefix != "" {
			opts = append(opts, redis.WithPrefix(c.Store.Prefix))
		}
		st := redis.New(c.Store.Addr, c.Store.Password, c.Store.DB, opts...)
		prefix := c.Store.Prefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		out.Conversations = st
		out.Locker = redis.NewLocker(st.Client(), prefix)
		out.closers = append(out.closers, st)
	default:
		out.Conversations = memory.NewStore()
	}

	mws, err := c.middlewares()
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Conversations = middleware.Chain(out.Conversations, mws...)
	return out, nil
}

func (c Config) middlewares() ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if c.Encryption.MaskPII {
		pii, err := middleware.NewPIIMiddleware(middleware.DefaultPIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, pii)
	}
	if c.Encryption.Key == "" {
		return mws, nil
	}

	active, err := decodeKey(c.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	var fallbacks [][]byte
	for i, k := range c.Encryption.FallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, fmt.Errorf("fallback key %d: %w", i, err)
		}
		fallbacks = append(fallbacks, key)
	}
	enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: active, FallbackKeys: fallbacks})
	if err != nil {
		return nil, err
	}
	return append(mws, enc), nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("not base64: %w", err)
	}
	return key, nil
}

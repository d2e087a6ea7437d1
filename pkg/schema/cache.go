package schema

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
)

// Cache holds at most one compiled document.
// The first successful Load fills it; later loads return the cached document
// without touching storage, whatever path they name, until Reset.
type Cache struct {
	mu       sync.Mutex
	doc      *Document
	readFile func(path string) ([]byte, error)
	logger   *slog.Logger
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithReader overrides how documents are read (os.ReadFile by default).
func WithReader(read func(path string) ([]byte, error)) CacheOption {
	return func(c *Cache) {
		c.readFile = read
	}
}

// WithCacheLogger configures the structured logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		readFile: os.ReadFile,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load returns the cached document, or reads, parses and caches the one at path.
// Failures are *LoadError and leave the cache empty.
func (c *Cache) Load(path string) (*Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.doc != nil {
		return c.doc, nil
	}

	data, err := c.readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Kind: KindNotFound, Path: path, Err: err}
		}
		return nil, &LoadError{Kind: KindUnknown, Path: path, Message: err.Error(), Err: err}
	}

	doc, err := Parse(path, data)
	if err != nil {
		return nil, &LoadError{Kind: KindParseError, Path: path, Message: err.Error(), Err: err}
	}

	c.doc = doc
	c.logger.Info("schema loaded", "path", path, "version", doc.Version, "node_types", len(doc.NodeTypes))
	return doc, nil
}

// Reset empties the cache; the next Load reads storage again.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc = nil
}

// Loaded reports whether a document is cached.
func (c *Cache) Loaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc != nil
}

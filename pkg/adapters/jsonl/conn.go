// Package jsonl implements ports.Transport as newline-delimited JSON envelopes
// over a reader/writer pair, typically stdio or the pipes of a child process.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultMaxLineSize bounds a single envelope. Workflows with histories can be large.
const DefaultMaxLineSize = 4 * 1024 * 1024

// Conn is a JSON-lines transport.
// A background goroutine owns the reader so Receive can honour its context.
type Conn struct {
	w       io.Writer
	writeMu sync.Mutex

	msgs    chan domain.Message
	readErr error // set before msgs is closed

	done      chan struct{}
	closeOnce sync.Once
	closers   []io.Closer

	maxLine int
	logger  *slog.Logger
}

// Option configures a Conn.
type Option func(*Conn)

// WithLogger configures the logger used for malformed lines.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

// WithMaxLineSize overrides DefaultMaxLineSize.
func WithMaxLineSize(n int) Option {
	return func(c *Conn) {
		c.maxLine = n
	}
}

// WithClosers registers resources released by Close, such as process pipes.
func WithClosers(closers ...io.Closer) Option {
	return func(c *Conn) {
		c.closers = append(c.closers, closers...)
	}
}

// New starts reading r and returns the transport.
func New(r io.Reader, w io.Writer, opts ...Option) *Conn {
	c := &Conn{
		w:       w,
		msgs:    make(chan domain.Message),
		done:    make(chan struct{}),
		maxLine: DefaultMaxLineSize,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.readLoop(r)
	return c
}

func (c *Conn) readLoop(r io.Reader) {
	defer close(c.msgs)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), c.maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg domain.Message
		if err := json.Unmarshal(line, &msg); err != nil || msg.Type == "" {
			c.logger.Warn("Dropping malformed line", "err", err, "bytes", len(line))
			continue
		}
		select {
		case c.msgs <- msg:
		case <-c.done:
			return
		}
	}
	c.readErr = scanner.Err()
}

// Send writes msg as one line. Concurrent calls are serialized.
func (c *Conn) Send(ctx context.Context, msg domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return domain.ErrTransportClosed
	default:
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", msg.Type, err)
	}
	b = append(b, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.w.Write(b); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
		}
		return err
	}
	return nil
}

// Receive returns the next envelope.
// End of input and Close both yield domain.ErrTransportClosed.
func (c *Conn) Receive(ctx context.Context) (domain.Message, error) {
	select {
	case msg, ok := <-c.msgs:
		if !ok {
			if c.readErr != nil {
				return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrTransportClosed, c.readErr)
			}
			return domain.Message{}, domain.ErrTransportClosed
		}
		return msg, nil
	case <-c.done:
		return domain.Message{}, domain.ErrTransportClosed
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

// Close stops delivery and releases the registered closers.
// The reader goroutine exits once its underlying Read returns.
func (c *Conn) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.done)
		for _, cl := range c.closers {
			if err := cl.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

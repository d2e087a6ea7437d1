package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultPipeBuffer is the number of messages each direction of a Pipe can hold.
const DefaultPipeBuffer = 64

// Conn is one end of an in-process transport created by Pipe.
// It implements ports.Transport.
type Conn struct {
	in     chan domain.Message
	out    chan domain.Message
	closed chan struct{}
	once   *sync.Once
}

// Pipe returns two connected transports: what one end sends, the other receives.
// Closing either end closes both.
func Pipe() (*Conn, *Conn) {
	a2b := make(chan domain.Message, DefaultPipeBuffer)
	b2a := make(chan domain.Message, DefaultPipeBuffer)
	closed := make(chan struct{})
	once := &sync.Once{}
	return &Conn{in: b2a, out: a2b, closed: closed, once: once},
		&Conn{in: a2b, out: b2a, closed: closed, once: once}
}

func (c *Conn) Send(ctx context.Context, msg domain.Message) error {
	select {
	case <-c.closed:
		return domain.ErrTransportClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.closed:
		return domain.ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Conn) Receive(ctx context.Context) (domain.Message, error) {
	// Drain what is already buffered before reporting closure.
	select {
	case msg := <-c.in:
		return msg, nil
	default:
	}
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.closed:
		return domain.Message{}, domain.ErrTransportClosed
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

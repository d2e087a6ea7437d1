package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// Transport is a duplex message substrate between client and host.
// Messages are delivered in order, at least once. Implementations must allow
// Send and Receive to be called concurrently from different goroutines.
type Transport interface {
	// Send writes a message to the peer.
	Send(ctx context.Context, msg domain.Message) error

	// Receive blocks until the next message arrives or ctx is done.
	// It returns domain.ErrTransportClosed once the peer is gone.
	Receive(ctx context.Context) (domain.Message, error)

	// Close releases the transport. Pending Receive calls return domain.ErrTransportClosed.
	Close() error
}

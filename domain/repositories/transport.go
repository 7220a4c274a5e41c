package repositories

import (
	"context"

	"github.com/satriahrh/swara/domain/entities"
)

// Transport abstracts the voice-agent connection. The transport owns
// negotiation and delivery; this package only consumes its message surface.
type Transport interface {
	// Connect establishes the connection. It returns once the connection is
	// usable or fails with the context's deadline; it never hangs beyond a
	// bounded wait.
	Connect(ctx context.Context) error

	// Messages returns the stream of inbound messages. The channel is closed
	// when the connection ends.
	Messages() <-chan entities.InboundMessage

	// Close tears the connection down.
	Close() error
}

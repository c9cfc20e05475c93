// Package bus defines the port interface for the invalidation event bus that
// keeps in-process caches coherent across service instances.
package bus

import "context"

// Handler processes one message. Returning an error requeues the message.
type Handler func(subject string, data []byte) error

// Bus is the port interface for publish/subscribe messaging.
type Bus interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe registers a handler and returns a stop function.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
}

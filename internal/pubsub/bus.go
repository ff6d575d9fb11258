// Package pubsub is the in-process event bus behind GraphQL subscriptions.
package pubsub

import (
	"context"
	"errors"
)

// Topic names an event stream.
type Topic string

// TopicBookAdded carries every *domain.Book persisted by addBook.
const TopicBookAdded Topic = "BOOK_ADDED"

// ErrClosed is returned by Subscribe after the bus has shut down.
var ErrClosed = errors.New("pubsub: bus closed")

// Publisher is the producer side of the bus.
type Publisher interface {
	Publish(topic Topic, payload any)
}

// Subscriber is the consumer side of the bus.
type Subscriber interface {
	// Subscribe returns a channel of payloads published to topic after the call returns.
	// The channel is closed when ctx is done or the bus shuts down.
	Subscribe(ctx context.Context, topic Topic) (<-chan any, error)
}

// Bus is a publish/subscribe event bus.
type Bus interface {
	Publisher
	Subscriber
}

// Noop drops every event. Useful where a component needs a Publisher but nothing listens.
type Noop struct{}

// Publish implements Publisher as a no-op.
func (Noop) Publish(Topic, any) {}

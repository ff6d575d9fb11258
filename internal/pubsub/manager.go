package pubsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/librarycatalog/library-server/internal/id"
)

const defaultBufferSize = 64

// subscription is one registered consumer.
type subscription struct {
	ID          string
	Topic       Topic
	ConnectedAt time.Time
	Events      chan any
	done        chan struct{}
}

func (s *subscription) close() {
	close(s.done)
	close(s.Events)
}

// Manager implements Bus with synchronous, non-blocking fan-out.
//
// Publish delivers to the subscribers registered when it is called and never
// blocks: a subscriber whose buffer is full misses the event. There is no
// history, so a subscriber only ever sees events published after it registered.
type Manager struct {
	logger     *slog.Logger
	bufferSize int

	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithBufferSize sets the per-subscriber buffer.
func WithBufferSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.bufferSize = n
		}
	}
}

// NewManager creates an empty bus. A nil logger discards output.
func NewManager(logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		logger:     logger,
		bufferSize: defaultBufferSize,
		subs:       make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Subscribe registers a subscriber for topic. See Subscriber.
func (m *Manager) Subscribe(ctx context.Context, topic Topic) (<-chan any, error) {
	subID, err := id.Generate("sub")
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		ID:          subID,
		Topic:       topic,
		ConnectedAt: time.Now(),
		Events:      make(chan any, m.bufferSize),
		done:        make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.subs[sub.ID] = sub
	total := len(m.subs)
	m.mu.Unlock()

	m.logger.Debug("subscriber registered",
		slog.String("subscription_id", sub.ID),
		slog.String("topic", string(topic)),
		slog.Int("total_subscribers", total))

	go func() {
		select {
		case <-ctx.Done():
			m.unsubscribe(sub.ID)
		case <-sub.done:
		}
	}()

	return sub.Events, nil
}

// unsubscribe removes a subscriber and closes its channel. Safe to call twice.
func (m *Manager) unsubscribe(subID string) {
	m.mu.Lock()
	sub, ok := m.subs[subID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subs, subID)
	total := len(m.subs)
	// Publish holds the read lock while sending, so closing under the write lock is safe.
	sub.close()
	m.mu.Unlock()

	m.logger.Debug("subscriber removed",
		slog.String("subscription_id", subID),
		slog.Duration("duration", time.Since(sub.ConnectedAt)),
		slog.Int("total_subscribers", total))
}

// Publish delivers payload to every current subscriber of topic.
func (m *Manager) Publish(topic Topic, payload any) {
	var delivered, dropped int

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return
	}

	for _, sub := range m.subs {
		if sub.Topic != topic {
			continue
		}

		select {
		case sub.Events <- payload:
			delivered++
		default:
			dropped++
			m.logger.Warn("dropped event for slow subscriber",
				slog.String("subscription_id", sub.ID),
				slog.String("topic", string(topic)))
		}
	}

	m.logger.Debug("event published",
		slog.String("topic", string(topic)),
		slog.Group("stats",
			slog.Int("delivered", delivered),
			slog.Int("dropped", dropped)))
}

// SubscriberCount returns the number of registered subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Shutdown closes every subscriber channel and rejects further subscriptions.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	for subID, sub := range m.subs {
		sub.close()
		delete(m.subs, subID)
	}

	m.logger.Info("event bus closed")
	return nil
}

package pubsub_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/librarycatalog/library-server/internal/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(opts ...pubsub.Option) *pubsub.Manager {
	return pubsub.NewManager(slog.New(slog.DiscardHandler), opts...)
}

// drain returns everything currently buffered on ch without blocking.
func drain(ch <-chan any) []any {
	var out []any
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		default:
			return out
		}
	}
}

func TestManager_DeliversExactlyOnceToEarlierSubscribers(t *testing.T) {
	m := newManager()
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	early, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	m.Publish(pubsub.TopicBookAdded, "book-1")

	late, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	assert.Equal(t, []any{"book-1"}, drain(early))
	assert.Empty(t, drain(late), "no replay for subscribers registered after publish")

	m.Publish(pubsub.TopicBookAdded, "book-2")
	assert.Equal(t, []any{"book-2"}, drain(early))
	assert.Equal(t, []any{"book-2"}, drain(late))
}

func TestManager_TopicsAreIsolated(t *testing.T) {
	m := newManager()
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	books, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	m.Publish("OTHER", "x")
	assert.Empty(t, drain(books))
}

func TestManager_CancelUnsubscribes(t *testing.T) {
	m := newManager()
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)
	assert.Equal(t, 1, m.SubscriberCount())

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("subscription channel was not closed after cancel")
	}
	assert.Eventually(t, func() bool { return m.SubscriberCount() == 0 }, time.Second, 5*time.Millisecond)

	// Publishing after unsubscribe must not panic on the closed channel.
	m.Publish(pubsub.TopicBookAdded, "late")
}

func TestManager_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	m := newManager(pubsub.WithBufferSize(2))
	defer m.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := range 5 {
			m.Publish(pubsub.TopicBookAdded, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	assert.Equal(t, []any{0, 1}, drain(ch))
}

func TestManager_Shutdown(t *testing.T) {
	m := newManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.NoError(t, err)

	require.NoError(t, m.Shutdown())
	require.NoError(t, m.Shutdown(), "shutdown is idempotent")

	_, ok := <-ch
	assert.False(t, ok)
	assert.Zero(t, m.SubscriberCount())

	_, err = m.Subscribe(ctx, pubsub.TopicBookAdded)
	require.ErrorIs(t, err, pubsub.ErrClosed)

	m.Publish(pubsub.TopicBookAdded, "ignored")
}

func TestManager_ConcurrentPublishAndCancel(t *testing.T) {
	m := newManager()
	defer m.Shutdown()

	var wg sync.WaitGroup
	for range 20 {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := m.Subscribe(ctx, pubsub.TopicBookAdded)
		require.NoError(t, err)

		wg.Add(2)
		go func() {
			defer wg.Done()
			for range ch {
			}
		}()
		go func() {
			defer wg.Done()
			m.Publish(pubsub.TopicBookAdded, "x")
			cancel()
		}()
	}
	wg.Wait()
}

func TestNoop(t *testing.T) {
	var p pubsub.Publisher = pubsub.Noop{}
	p.Publish(pubsub.TopicBookAdded, "x")
}

func TestNewManager_NilLogger(t *testing.T) {
	m := pubsub.NewManager(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ch <-chan any
	require.NotPanics(t, func() {
		var err error
		ch, err = m.Subscribe(ctx, pubsub.TopicBookAdded)
		require.NoError(t, err)
		m.Publish(pubsub.TopicBookAdded, "book-1")
	})
	assert.Equal(t, []any{"book-1"}, drain(ch))

	require.NotPanics(t, func() { require.NoError(t, m.Shutdown()) })
	_, ok := <-ch
	assert.False(t, ok)
}

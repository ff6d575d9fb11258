package graph

import (
	"context"

	"github.com/librarycatalog/library-server/internal/domain"
	"github.com/librarycatalog/library-server/internal/pubsub"
)

// BookAdded streams every book stored after the subscription starts.
func (r *Resolver) BookAdded(ctx context.Context) (<-chan *bookResolver, error) {
	events, err := r.events.Subscribe(ctx, pubsub.TopicBookAdded)
	if err != nil {
		return nil, err
	}

	out := make(chan *bookResolver)
	go func() {
		defer close(out)
		// events closes once ctx is done.
		for event := range events {
			book, ok := event.(*domain.Book)
			if !ok {
				r.logger.Warn("unexpected bookAdded payload", "type", typeName(event))
				continue
			}
			select {
			case out <- &bookResolver{root: r, book: book}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

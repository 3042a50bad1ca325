// Package redis carries the question collection's change stream over
// pub/sub so every client instance sees remote commits.
package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ChangeStream is the pub/sub channel for one tenant's question
// collection. Events carry no payload; subscribers rebuild from a full
// snapshot.
type ChangeStream struct {
	client  *redis.Client
	channel string
}

// NewChangeStream scopes the stream to the collection path, which
// doubles as the channel name.
func NewChangeStream(client *redis.Client, collectionPath string) *ChangeStream {
	return &ChangeStream{client: client, channel: "changes:" + collectionPath}
}

// Publish announces a collection change to all subscribers.
func (s *ChangeStream) Publish(ctx context.Context) error {
	return s.client.Publish(ctx, s.channel, "1").Err()
}

// Changes implements app.ChangeNotifier. The returned cancel func
// closes the underlying pub/sub listener; failing to call it leaks the
// subscription for the process lifetime.
func (s *ChangeStream) Changes(ctx context.Context) (<-chan struct{}, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	events := make(chan struct{}, 1)
	go func() {
		defer close(events)
		for range pubsub.Channel() {
			select {
			case events <- struct{}{}:
			default:
				// an event is already pending; one rebuild covers both
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = pubsub.Close()
		})
	}
	return events, cancel, nil
}

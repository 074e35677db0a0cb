// Package bus carries updateProps actions from the scheduler to the
// rendering collaborator over an in-process watermill pub/sub.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/roach88/reflow/internal/scheduler"
)

// Topic carries one JSON-encoded scheduler.UpdateProps per message.
const Topic = "update-props"

// DefaultBuffer is the per-subscriber buffer of decoded actions.
const DefaultBuffer = 256

// Bus publishes scheduler.UpdateProps actions and fans them out to
// subscribers in publish order. It implements scheduler.Renderer.
type Bus struct {
	pubSub *gochannel.GoChannel
	buffer int
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets how many decoded actions a slow subscriber may lag
// behind before publishing blocks.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		b.buffer = n
	}
}

// New creates a Bus. Actions published while nobody subscribes are dropped.
func New(opts ...Option) *Bus {
	b := &Bus{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(b)
	}
	// Publish waits for each subscriber's ack, which keeps actions ordered.
	// A subscriber acks once the action is in its buffer, so a publish only
	// blocks while that buffer is full.
	b.pubSub = gochannel.NewGoChannel(
		gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)
	return b
}

// UpdateProps publishes u on Topic.
func (b *Bus) UpdateProps(ctx context.Context, u scheduler.UpdateProps) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode update for %s: %w", u.ID, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish update for %s: %w", u.ID, err)
	}
	return nil
}

// Subscribe returns the actions published from now on. The channel is
// closed when ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan scheduler.UpdateProps, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", Topic, err)
	}

	out := make(chan scheduler.UpdateProps, b.buffer)
	go func() {
		defer close(out)
		for msg := range messages {
			var u scheduler.UpdateProps
			if err := json.Unmarshal(msg.Payload, &u); err != nil {
				slog.Warn("dropping undecodable update", "message_uuid", msg.UUID, "error", err)
				msg.Ack()
				continue
			}
			select {
			case out <- u:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()
	return out, nil
}

// Close stops the bus and closes every subscription.
func (b *Bus) Close() error {
	return b.pubSub.Close()
}

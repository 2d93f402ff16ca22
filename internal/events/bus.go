package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher is what the stores need to announce committed changes.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// HandlerFunc processes one message payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Bus carries marketplace events over watermill.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	shared     bool
	logger     *zap.Logger
}

var _ Publisher = (*Bus)(nil)

// NewGoChannelBus keeps events inside the process.
func NewGoChannelBus(logger *zap.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, NewLoggerAdapter(logger))

	return &Bus{
		publisher:  pubSub,
		subscriber: pubSub,
		shared:     true,
		logger:     logger.Named("events"),
	}
}

// NewRedisStreamBus publishes to Redis streams and consumes them with the
// given consumer group.
func NewRedisStreamBus(client redis.UniversalClient, consumerGroup string, logger *zap.Logger) (*Bus, error) {
	wmLogger := NewLoggerAdapter(logger)

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{
		Client: client,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("create redisstream publisher: %w", err)
	}

	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        client,
		ConsumerGroup: consumerGroup,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("create redisstream subscriber: %w", err)
	}

	return &Bus{
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger.Named("events"),
	}, nil
}

func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.SetContext(ctx)

	if err := b.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	b.logger.Debug("event published", zap.String("topic", topic), zap.String("message_id", msg.UUID))
	return nil
}

// Subscribe starts consuming topic in the background until ctx is done.
// Delivery is best effort: a failed message is logged and acknowledged.
func (b *Bus) Subscribe(ctx context.Context, topic string, handler HandlerFunc) error {
	messages, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		for msg := range messages {
			if err := handler(msg.Context(), msg.Payload); err != nil {
				b.logger.Error("event handler failed",
					zap.String("topic", topic),
					zap.String("message_id", msg.UUID),
					zap.Error(err))
			}
			msg.Ack()
		}
	}()

	return nil
}

func (b *Bus) Close() error {
	if err := b.publisher.Close(); err != nil {
		return err
	}
	if !b.shared {
		return b.subscriber.Close()
	}
	return nil
}

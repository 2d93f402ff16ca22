package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"ticket-marketplace/internal/events"
	"ticket-marketplace/utils"
)

// MarketplaceChannel receives catalog-wide updates.
const MarketplaceChannel = "marketplace"

func UserChannel(userID string) string {
	return fmt.Sprintf("user-%s", userID)
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string, handler events.HandlerFunc) error
}

type Metrics interface {
	TrackNotification(topic string, err error)
}

// Relay forwards committed marketplace events to realtime subscribers.
type Relay struct {
	publisher Publisher
	breaker   *utils.CircuitBreaker
	metrics   Metrics
	logger    *zap.Logger
}

func NewRelay(publisher Publisher, breaker *utils.CircuitBreaker, metrics Metrics, logger *zap.Logger) *Relay {
	return &Relay{
		publisher: publisher,
		breaker:   breaker,
		metrics:   metrics,
		logger:    logger.Named("notify"),
	}
}

// Register subscribes the relay to the marketplace topics.
func (r *Relay) Register(ctx context.Context, sub Subscriber) error {
	if err := sub.Subscribe(ctx, events.TopicTicketListed, r.HandleTicketListed); err != nil {
		return err
	}
	return sub.Subscribe(ctx, events.TopicTicketPurchased, r.HandleTicketPurchased)
}

func (r *Relay) HandleTicketListed(ctx context.Context, payload []byte) error {
	var e events.TicketListed
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("decode ticket listed: %w", err)
	}

	return r.send(ctx, events.TopicTicketListed, MarketplaceChannel, map[string]any{
		"type":             "ticket_listed",
		"ticketId":         e.TicketID,
		"title":            e.Title,
		"price":            e.Price,
		"isResale":         e.IsResale,
		"originalTicketId": e.OriginalTicketID,
	})
}

func (r *Relay) HandleTicketPurchased(ctx context.Context, payload []byte) error {
	var e events.TicketPurchased
	if err := json.Unmarshal(payload, &e); err != nil {
		return fmt.Errorf("decode ticket purchased: %w", err)
	}

	if err := r.send(ctx, events.TopicTicketPurchased, UserChannel(e.SellerID), map[string]any{
		"type":          "ticket_sold",
		"ticketId":      e.TicketID,
		"title":         e.Title,
		"price":         e.Price,
		"transactionId": e.TransactionID,
	}); err != nil {
		return err
	}

	if err := r.send(ctx, events.TopicTicketPurchased, UserChannel(e.BuyerID), map[string]any{
		"type":          "ticket_purchased",
		"ticketId":      e.TicketID,
		"title":         e.Title,
		"price":         e.Price,
		"transactionId": e.TransactionID,
	}); err != nil {
		return err
	}

	return r.send(ctx, events.TopicTicketPurchased, MarketplaceChannel, map[string]any{
		"type":      "tickets_closed",
		"ticketIds": e.ClosedTicketIDs,
	})
}

func (r *Relay) send(ctx context.Context, topic, channel string, message map[string]any) error {
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		return r.publisher.Publish(ctx, channel, message)
	})

	if r.metrics != nil {
		r.metrics.TrackNotification(topic, err)
	}
	if err != nil {
		r.logger.Warn("notification not delivered",
			zap.String("channel", channel),
			zap.Any("type", message["type"]),
			zap.String("breaker_state", r.breaker.State().String()),
			zap.Error(err))
		return err
	}
	return nil
}

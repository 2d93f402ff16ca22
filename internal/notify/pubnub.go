package notify

import (
	"context"

	pubnub "github.com/pubnub/go"
)

// Publisher sends a message to a realtime channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

var _ Publisher = (*PubNubPublisher)(nil)

func NewPubNubPublisher(publishKey, subscribeKey, secretKey string) *PubNubPublisher {
	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = publishKey
	pnConfig.SubscribeKey = subscribeKey
	pnConfig.SecretKey = secretKey

	return &PubNubPublisher{pn: pubnub.NewPubNub(pnConfig)}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, message any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

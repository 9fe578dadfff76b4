package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ai-appgen-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// IStreamEventPublisher publishes stream lifecycle events onto the
// in-process bus. The orchestrator fires these on every terminal transition;
// the consumer service fans them out.
type IStreamEventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type streamEventPublisher struct {
	topicName string
	pubSub    *gochannel.GoChannel
}

func NewStreamEventPublisher(topicName string, pubSub *gochannel.GoChannel) IStreamEventPublisher {
	return &streamEventPublisher{
		topicName: topicName,
		pubSub:    pubSub,
	}
}

type streamEventEnvelope struct {
	EventType  string                 `json:"event_type"`
	Payload    map[string]interface{} `json:"payload"`
	OccurredAt string                 `json:"occurred_at"`
}

func (p *streamEventPublisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(streamEventEnvelope{
		EventType:  event.EventType(),
		Payload:    event.Payload(),
		OccurredAt: event.Timestamp().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	return p.pubSub.Publish(p.topicName, msg)
}

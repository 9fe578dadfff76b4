package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ai-appgen-be/internal/dto"
	"ai-appgen-be/pkg/events"
	pkgnats "ai-appgen-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// StreamStatusDelivery is implemented by the websocket hub.
type StreamStatusDelivery interface {
	SendStatus(userID uuid.UUID, update dto.StreamStatusUpdate)
}

// IConsumerService drains the in-process lifecycle bus and fans events out:
// to the websocket hub for the UI, and to NATS for other backend services
// (usage metering consumes STREAM_FINISHED).
type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	delivery  StreamStatusDelivery
	natsPub   *pkgnats.Publisher // nil when NATS is not configured
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	delivery StreamStatusDelivery,
	natsPub *pkgnats.Publisher,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		delivery:  delivery,
		natsPub:   natsPub,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

var statusByEventType = map[string]string{
	events.TypeStreamStarted:  "started",
	events.TypeStreamFinished: "finished",
	events.TypeStreamStopped:  "stopped",
	events.TypeStreamFailed:   "failed",
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var envelope streamEventEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		log.Printf("[ERROR] Failed to unmarshal stream event: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, envelope.OccurredAt)
	if err != nil {
		occurredAt = time.Now()
	}

	// 1. Push to the UI
	if status, ok := statusByEventType[envelope.EventType]; ok && cs.delivery != nil {
		userID, uerr := uuid.Parse(stringField(envelope.Payload, "user_id"))
		sessionID, serr := uuid.Parse(stringField(envelope.Payload, "session_id"))
		if uerr == nil && serr == nil {
			cs.delivery.SendStatus(userID, dto.StreamStatusUpdate{
				SessionId: sessionID,
				Status:    status,
				Timestamp: occurredAt,
			})
		}
	}

	// 2. Forward to NATS for other backend consumers. Best effort: the UI
	// push above already happened and the stream itself is unaffected.
	if cs.natsPub != nil {
		event := events.BaseEvent{
			Type:       envelope.EventType,
			Data:       envelope.Payload,
			OccurredAt: occurredAt,
		}
		if err := cs.natsPub.Publish(ctx, event); err != nil {
			log.Printf("[WARN] Failed to forward stream event to NATS: %v", err)
		}
	}

	msg.Ack()
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

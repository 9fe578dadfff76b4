// Tails stream lifecycle events off the NATS bus. Useful for checking what
// downstream consumers (usage metering, analytics) actually receive.
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"

	"ai-appgen-be/internal/config"
	"ai-appgen-be/pkg/events"
	pkgNats "ai-appgen-be/pkg/nats"
)

func main() {
	cfg := config.Load()

	sub, err := pkgNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	err = sub.Subscribe("events.>", "events-tail", func(ctx context.Context, event events.Event) error {
		payload, _ := json.Marshal(event.Payload())
		log.Printf("%s %s %s", event.Timestamp().Format("15:04:05.000"), event.EventType(), payload)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop
}

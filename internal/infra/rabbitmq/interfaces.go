package rabbitmq

import (
	"context"
	"log"
)

type PublisherInterface interface {
	Publish(ctx context.Context, routingKey string, data any) error
}

var _ PublisherInterface = (*Publisher)(nil)

// LogPublisher only logs events. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	log.Printf("[events] broker disabled, dropping %s", routingKey)
	return nil
}

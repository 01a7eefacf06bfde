package kafka

import (
	"context"
	"log"
	"sync"
	"time"

	"marketplace-orders/internal/infra/rabbitmq"

	"github.com/segmentio/kafka-go"
)

// keyed is implemented by events that carry a partitioning key.
type keyed interface {
	CorrelationKey() string
}

// Producer publishes events to a topic named after the routing key. Writes
// happen on a background goroutine fed by a bounded inbox.
type Producer struct {
	w      *kafka.Writer
	source string
	inbox  chan kafka.Message
	wg     sync.WaitGroup
}

var _ rabbitmq.PublisherInterface = (*Producer)(nil)

func NewProducer(brokers []string, source string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		source: source,
		inbox:  make(chan kafka.Message, buf),
	}
}

func (p *Producer) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				log.Printf("[events] kafka write %s: %v", m.Topic, err)
			}
			cancel()
		}
	}()
}

func (p *Producer) Publish(ctx context.Context, routingKey string, data any) error {
	body, id, err := rabbitmq.Encode(routingKey, p.source, data, time.Now())
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: routingKey,
		Value: body,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(id)},
		},
	}
	if k, ok := data.(keyed); ok {
		msg.Key = []byte(k.CorrelationKey())
	}

	select {
	case p.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes queued messages and closes the writer.
func (p *Producer) Close() {
	close(p.inbox)
	p.wg.Wait()
	if err := p.w.Close(); err != nil {
		log.Printf("[events] kafka close: %v", err)
	}
}

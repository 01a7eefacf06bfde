package kafka

import (
	"context"
	"testing"

	"marketplace-orders/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducer_PublishQueuesKeyedMessage(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "marketplace-orders", 4)
	defer p.Close()

	err := p.Publish(context.Background(), domain.EventOrderCreated, domain.OrderCreatedEvent{OrderID: 42})
	require.NoError(t, err)

	msg := <-p.inbox
	assert.Equal(t, domain.EventOrderCreated, msg.Topic)
	assert.Equal(t, "42", string(msg.Key))
	assert.Contains(t, string(msg.Value), `"pattern":"order.created"`)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_id", msg.Headers[0].Key)
}

func TestProducer_PublishHonoursContextWhenFull(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "marketplace-orders", 0)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, domain.EventOrderCancelled, map[string]any{"orderId": 1})
	assert.ErrorIs(t, err, context.Canceled)
}

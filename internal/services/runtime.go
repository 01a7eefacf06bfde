package services

import (
	"context"
	"log"
	"sync"
	"time"

	rabbit "marketplace-orders/internal/infra/rabbitmq"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// background runs non-critical side effects. Their failures are logged by
// the task itself and never reach the caller.
type background struct {
	wg sync.WaitGroup
}

func (b *background) Go(task func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		task()
	}()
}

// Wait blocks until all side effects started so far have finished.
func (b *background) Wait() { b.wg.Wait() }

func publishEvent(pub rabbit.PublisherInterface, routingKey string, evt any) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pub.Publish(ctx, routingKey, evt); err != nil {
		log.Printf("[events] failed to publish %s: %v", routingKey, err)
	}
}

// keyedMutex serializes work per key and drops idle entries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key uint64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[uint64]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

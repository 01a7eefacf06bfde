// Package scheduler runs periodic background tasks such as the order
// expiration sweep.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Locker coordinates task runs across replicas. redisx.Locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(), ok bool, err error)
}

type Registry struct {
	tasks  []Task
	locker Locker

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a registry. locker may be nil for single-instance deployments.
func New(locker Locker) *Registry {
	return &Registry{locker: locker}
}

func (r *Registry) Register(t Task) {
	r.tasks = append(r.tasks, t)
}

// Start launches one goroutine per task. Each task waits one interval before
// its first run and never overlaps with itself.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)

	for _, t := range r.tasks {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.loop(ctx, t)
		}()
		log.Printf("[scheduler] %s every %s", t.Name, t.Interval)
	}
}

func (r *Registry) loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, t)
		}
	}
}

func (r *Registry) runOnce(ctx context.Context, t Task) {
	if r.locker != nil {
		unlock, ok, err := r.locker.TryLock(ctx, t.Name, t.Interval)
		if err != nil {
			log.Printf("[scheduler] %s: lock: %v", t.Name, err)
			return
		}
		if !ok {
			return
		}
		defer unlock()
	}

	start := time.Now()
	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[scheduler] %s failed after %s: %v", t.Name, time.Since(start), err)
	}
}

// Stop cancels all tasks and waits for running ones to return.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

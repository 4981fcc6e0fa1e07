package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

// Handler processes a published event. The event is the value given to
// Publish, usually an Event[T].
type Handler func(ctx context.Context, ev any)

// Stats holds bus counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64
	Panics    uint64
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used to report handler panics and drops.
func WithLogger(log logr.Logger) BusOption {
	return func(b *Bus) {
		b.log = log
	}
}

// Bus is a topic based publish/subscribe hub.
type Bus struct {
	log logr.Logger

	mu     sync.RWMutex
	subs   []*Subscription
	nextID uint64

	running atomic.Bool
	workers sync.WaitGroup

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	panics    atomic.Uint64
}

// NewBus creates a stopped bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{log: logr.Discard()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start starts the bus.
func (b *Bus) Start() error {
	if b.running.Swap(true) {
		return ErrBusAlreadyRunning
	}
	return nil
}

// Stop stops the bus and waits for asynchronous subscribers to drain their
// queues or for ctx to be done.
func (b *Bus) Stop(ctx context.Context) error {
	if !b.running.Swap(false) {
		return ErrBusNotRunning
	}

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}

	done := make(chan struct{})
	go func() {
		b.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop event bus: %w", ctx.Err())
	}
}

// IsRunning reports whether the bus accepts events.
func (b *Bus) IsRunning() bool {
	return b.running.Load()
}

// Subscribe registers handler for every event whose topic matches pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler, opts ...SubscriptionOption) (*Subscription, error) {
	if !pattern.IsValid() {
		return nil, ErrInvalidTopic
	}
	if handler == nil {
		return nil, ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:      b.nextID,
		pattern: pattern,
		handler: handler,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(sub)
	}
	if sub.queueSize > 0 {
		sub.queue = make(chan delivery, sub.queueSize)
		b.workers.Add(1)
		go b.runWorker(sub)
	}

	b.subs = append(b.subs, sub)
	return sub, nil
}

// Unsubscribe removes a subscription. Queued asynchronous events are still
// delivered.
func (b *Bus) Unsubscribe(sub *Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			sub.cancel()
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// Publish delivers ev to all matching subscriptions. ev must implement
// TopicProvider.
func (b *Bus) Publish(ctx context.Context, ev any) error {
	if !b.running.Load() {
		return ErrBusNotRunning
	}
	tp, ok := ev.(TopicProvider)
	if !ok || !tp.EventTopic().IsValid() {
		return ErrInvalidEvent
	}
	t := tp.EventTopic()

	b.mu.RLock()
	var matched []*Subscription
	for _, sub := range b.subs {
		if t.Matches(sub.pattern) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, sub := range matched {
		if sub.queue == nil {
			b.deliver(ctx, sub, ev)
			continue
		}
		if !sub.enqueue(delivery{ctx: ctx, ev: ev}) {
			b.dropped.Add(1)
			b.log.V(1).Info("dropped event for slow subscriber", "topic", t, "subscription", sub.id)
		}
	}
	return nil
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
		Panics:    b.panics.Load(),
	}
}

func (b *Bus) runWorker(sub *Subscription) {
	defer b.workers.Done()
	for {
		select {
		case d := <-sub.queue:
			b.deliver(d.ctx, sub, d.ev)
		case <-sub.done:
			for {
				select {
				case d := <-sub.queue:
					b.deliver(d.ctx, sub, d.ev)
				default:
					return
				}
			}
		}
	}
}

// deliver runs the handler, recovering from panics.
func (b *Bus) deliver(ctx context.Context, sub *Subscription, ev any) {
	defer func() {
		if r := recover(); r != nil {
			b.panics.Add(1)
			b.log.Error(fmt.Errorf("%v", r), "event handler panicked", "subscription", sub.id, "pattern", sub.pattern)
		}
	}()
	sub.handler(ctx, ev)
	b.delivered.Add(1)
}

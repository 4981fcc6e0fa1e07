package event

import (
	"context"
	"sync"
)

// SubscriptionOption configures a subscription.
type SubscriptionOption func(*Subscription)

// WithAsync delivers events on a dedicated goroutine through a queue of the
// given size. Events for the subscription stay in publish order.
func WithAsync(queueSize int) SubscriptionOption {
	return func(s *Subscription) {
		if queueSize > 0 {
			s.queueSize = queueSize
		}
	}
}

type delivery struct {
	ctx context.Context
	ev  any
}

// Subscription is a registered handler.
type Subscription struct {
	id      uint64
	pattern Topic
	handler Handler

	queueSize int
	queue     chan delivery

	mu       sync.Mutex
	done     chan struct{}
	canceled bool
}

// ID returns the subscription identifier.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Pattern returns the subscribed topic pattern.
func (s *Subscription) Pattern() Topic {
	return s.pattern
}

// IsActive reports whether the subscription still receives events.
func (s *Subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.canceled
}

func (s *Subscription) cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return
	}
	s.canceled = true
	close(s.done)
}

// enqueue queues an asynchronous delivery without blocking.
func (s *Subscription) enqueue(d delivery) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.canceled {
		return false
	}
	select {
	case s.queue <- d:
		return true
	default:
		return false
	}
}

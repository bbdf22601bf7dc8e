package distributed

import (
	"context"
	"sync"

	"watchparty/internal/core/ports"
	"watchparty/pkg/utils"
)

// subscription is the handle shared by both transports. Its delivery
// goroutine closes done on exit.
type subscription struct {
	id      string
	topic   string
	handler ports.EventHandler

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func newSubscription(topic string, handler ports.EventHandler) *subscription {
	return &subscription{
		id:      utils.GenerateSubscriptionID(),
		topic:   topic,
		handler: handler,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

func (s *subscription) ID() string            { return s.id }
func (s *subscription) Topic() string         { return s.topic }
func (s *subscription) Done() <-chan struct{} { return s.done }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// end stops delivery. A non-nil err marks the end as unrequested.
func (s *subscription) end(err error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.stop)
	})
}

func (s *subscription) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// wait blocks until the delivery goroutine has exited or ctx is done.
func (s *subscription) wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/agora/pkg/uuidx"
)

const defaultSlowSubscriberTimeout = 100 * time.Millisecond

type localStream struct {
	topics                *haxmap.Map[string, *topic]
	slowSubscriberTimeout time.Duration
}

// Local returns an in-process stream.
func Local() *localStream {
	return &localStream{
		topics:                haxmap.New[string, *topic](),
		slowSubscriberTimeout: defaultSlowSubscriberTimeout,
	}
}

// WithSlowSubscriberTimeout configures the timeout for detecting slow subscribers
func (b *localStream) WithSlowSubscriberTimeout(timeout time.Duration) *localStream {
	b.slowSubscriberTimeout = timeout
	return b
}

func (b *localStream) Topic(ctx context.Context, id string) Topic {
	topic, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			ID:                    id,
			subscriptions:         haxmap.New[string, *subscription](),
			slowSubscriberTimeout: b.slowSubscriberTimeout,
		}
	})
	return topic
}

type topic struct {
	ID                    string
	subscriptions         *haxmap.Map[string, *subscription]
	slowSubscriberTimeout time.Duration
}

func (t *topic) Publish(ctx context.Context, event Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	t.subscriptions.ForEach(func(id string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-ctx.Done():
			return false
		default:
		}

		if !sub.send(ctx, event, t.slowSubscriberTimeout) {
			sub.Unsubscribe()
		}
		return ctx.Err() == nil
	})
	return ctx.Err()
}

func (t *topic) Subscribe(ctx context.Context, hook Hook) (Subscription, error) {
	if hook == nil {
		return nil, errors.New("hook is required")
	}
	return t.newSubscription(ctx, hook), nil
}

func (t *topic) newSubscription(ctx context.Context, hook Hook) *subscription {
	id := uuidx.NewString()
	sub := &subscription{
		id:      id,
		ctx:     ctx,
		channel: make(chan Event, 64),
		onClose: func() { t.subscriptions.Del(id) },
		hook:    hook,
	}
	t.subscriptions.Set(id, sub)
	go sub.forwardToHook()
	return sub
}

type subscription struct {
	id        string
	ctx       context.Context
	channel   chan Event
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
	onClose   func()
	hook      Hook
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
		s.mu.Lock()
		s.closed = true
		close(s.channel)
		s.mu.Unlock()
	})
}

// send delivers event unless the subscription is gone or stays full for longer
// than timeout. It reports false when the subscriber should be dropped.
func (s *subscription) send(ctx context.Context, event Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}

	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-s.ctx.Done():
		return false
	case s.channel <- event:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscription) forwardToHook() {
	for {
		select {
		case event, ok := <-s.channel:
			if !ok {
				return
			}
			dispatch(s.ctx, s.hook, event)
		case <-s.ctx.Done():
			return
		}
	}
}

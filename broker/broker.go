package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/internal/registry"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/casualjim/agora/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrUnknownRecipient  = errors.New("unknown recipient")
	ErrAlreadyRegistered = errors.New("mailbox already registered")
	ErrHandlerRequired   = errors.New("handler is required")
)

type handlers = orderedmap.OrderedMap[string, Handler]

type Broker struct {
	mailboxes registry.Registry[Mailbox]

	mu            sync.Mutex
	queue         []Message
	log           []Message
	subscriptions *orderedmap.OrderedMap[string, *handlers]

	events events.Topic
	logger *slog.Logger
	clock  func() time.Time
}

var (
	// Events mirrors every logged message onto an event topic.
	Events = opts.ForName[Broker, events.Topic]("events")
	Logger = opts.ForName[Broker, *slog.Logger]("logger")
)

// Clock replaces time.Now for timestamps.
func Clock(now func() time.Time) opts.Option[Broker] {
	return opts.Type[Broker](func(b *Broker) error {
		b.clock = now
		return nil
	})
}

func New(options ...opts.Option[Broker]) *Broker {
	b := &Broker{
		mailboxes:     registry.New[Mailbox](),
		subscriptions: orderedmap.New[string, *handlers](),
		clock:         time.Now,
	}
	if err := opts.Apply(b, options); err != nil {
		panic(err)
	}
	b.logger = slogx.Component(b.logger, "broker")
	return b
}

// Register makes name addressable by SendSync and SendAsync.
func (b *Broker) Register(name string, mb Mailbox) error {
	if mb == nil {
		return errors.New("mailbox is required")
	}
	if _, loaded := b.mailboxes.GetOrAdd(name, func() Mailbox { return mb }); loaded {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	return nil
}

func (b *Broker) Unregister(name string) {
	b.mailboxes.Del(name)
}

// SendSync logs the message and delivers it to the recipient before returning.
func (b *Broker) SendSync(ctx context.Context, from, to, content string) (Message, error) {
	mb, ok := b.mailboxes.Get(to)
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownRecipient, to)
	}
	msg := b.newMessage(Sync, from, to, "", content)
	b.record(ctx, msg)
	mb.Deliver(msg)
	return msg, nil
}

// SendAsync logs the message and appends it to the queue. Nothing is
// delivered until ProcessQueue runs.
func (b *Broker) SendAsync(ctx context.Context, from, to, content string) Message {
	msg := b.newMessage(Async, from, to, "", content)
	b.mu.Lock()
	b.queue = append(b.queue, msg)
	b.mu.Unlock()
	b.record(ctx, msg)
	return msg
}

// ProcessQueue delivers at most max queued messages in FIFO order and leaves
// the rest queued. Messages addressed to unknown recipients are dropped and
// reported in the returned error; the others are still delivered.
func (b *Broker) ProcessQueue(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		return nil, nil
	}

	var processed []Message
	var err error
	for len(processed) < max {
		if cerr := ctx.Err(); cerr != nil {
			return processed, errors.Join(err, cerr)
		}

		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			break
		}
		msg := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		processed = append(processed, msg)
		mb, ok := b.mailboxes.Get(msg.Recipient)
		if !ok {
			b.logger.Warn("dropping queued message", slog.String("id", msg.ID), slog.String("recipient", msg.Recipient))
			err = errors.Join(err, fmt.Errorf("message %s: %w: %s", msg.ID, ErrUnknownRecipient, msg.Recipient))
			continue
		}
		mb.Deliver(msg)
	}
	return processed, err
}

// Drain processes the whole queue.
func (b *Broker) Drain(ctx context.Context) ([]Message, error) {
	return b.ProcessQueue(ctx, b.Pending())
}

// Pending returns the number of queued messages.
func (b *Broker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Queue returns a snapshot of the queued messages, oldest first.
func (b *Broker) Queue() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.queue...)
}

// Subscribe registers handler for topic and returns the subscription id.
func (b *Broker) Subscribe(topic string, handler Handler) (string, error) {
	if handler == nil {
		return "", ErrHandlerRequired
	}
	id := uuidx.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscriptions.Get(topic)
	if !ok {
		subs = orderedmap.New[string, Handler]()
		b.subscriptions.Set(topic, subs)
	}
	subs.Set(id, handler)
	return id, nil
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Broker) Unsubscribe(topic, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscriptions.Get(topic)
	if !ok {
		return false
	}
	_, existed := subs.Delete(id)
	return existed
}

// Subscribers returns the number of handlers on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscriptions.Get(topic); ok {
		return subs.Len()
	}
	return 0
}

// Publish logs the message and invokes every handler subscribed to topic in
// registration order. A handler error stops the fan-out and is returned.
func (b *Broker) Publish(ctx context.Context, from, topic, content string) (Message, error) {
	msg := b.newMessage(PubSub, from, "", topic, content)
	b.record(ctx, msg)

	b.mu.Lock()
	var snapshot []Handler
	if subs, ok := b.subscriptions.Get(topic); ok {
		snapshot = make([]Handler, 0, subs.Len())
		for pair := subs.Oldest(); pair != nil; pair = pair.Next() {
			snapshot = append(snapshot, pair.Value)
		}
	}
	b.mu.Unlock()

	for i, handler := range snapshot {
		if err := handler(ctx, msg); err != nil {
			return msg, fmt.Errorf("topic %s subscriber %d: %w", topic, i, err)
		}
	}
	return msg, nil
}

// Log returns every message sent through the broker, oldest first.
func (b *Broker) Log() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.log...)
}

func (b *Broker) newMessage(mode Mode, from, to, topic, content string) Message {
	return Message{
		ID:        uuidx.NewString(),
		Mode:      mode,
		Sender:    from,
		Recipient: to,
		Topic:     topic,
		Content:   content,
		Timestamp: strfmt.DateTime(b.clock()),
	}
}

func (b *Broker) record(ctx context.Context, msg Message) {
	b.mu.Lock()
	b.log = append(b.log, msg)
	b.mu.Unlock()

	b.logger.Debug("message logged",
		slog.String("mode", msg.Mode.String()),
		slog.String("sender", msg.Sender),
		slog.String("recipient", msg.Recipient),
		slog.String("topic", msg.Topic),
	)
	events.Emit(ctx, b.events, events.MessageLogged{
		ID:        msg.ID,
		Mode:      msg.Mode.String(),
		Sender:    msg.Sender,
		Recipient: msg.Recipient,
		Topic:     msg.Topic,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
}

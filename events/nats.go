package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/casualjim/agora/pkg/uuidx"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix namespaces every topic on the NATS server.
const SubjectPrefix = "agora.events."

type natsStream struct {
	client *nats.Conn
	topics *haxmap.Map[string, *natsTopic]
}

// NATS returns a stream whose topics are NATS subjects, so scenarios running in
// one process can be observed from another.
func NATS(client *nats.Conn) *natsStream {
	return &natsStream{
		client: client,
		topics: haxmap.New[string, *natsTopic](),
	}
}

func (b *natsStream) Topic(ctx context.Context, id string) Topic {
	top, _ := b.topics.GetOrCompute(id, func() *natsTopic {
		return &natsTopic{
			subject: SubjectPrefix + id,
			client:  b.client,
		}
	})
	return top
}

type natsTopic struct {
	client  *nats.Conn
	subject string
}

func (t *natsTopic) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	eb, err := ToJSON(event)
	if err != nil {
		return err
	}
	return t.client.Publish(t.subject, eb)
}

func (t *natsTopic) Subscribe(ctx context.Context, hook Hook) (Subscription, error) {
	if hook == nil {
		return nil, errors.New("hook is required")
	}

	ch := make(chan Event, 64)
	nsub, err := t.client.Subscribe(t.subject, func(msg *nats.Msg) {
		event, err := FromJSON(msg.Data)
		if err != nil {
			slog.Error("failed to unmarshal event", slogx.Error(err), slog.String("subject", msg.Subject))
			return
		}
		select {
		case ch <- event:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return nil, err
	}
	nsub.SetClosedHandler(func(_ string) { close(ch) })

	go func() {
		for {
			select {
			case event, ok := <-ch:
				if !ok {
					return
				}
				dispatch(ctx, hook, event)
			case <-ctx.Done():
				return
			}
		}
	}()

	return &natsSubscription{
		id:  uuidx.NewString(),
		sub: nsub,
	}, nil
}

type natsSubscription struct {
	id  string
	sub *nats.Subscription
}

func (n *natsSubscription) ID() string {
	return n.id
}

func (n *natsSubscription) Unsubscribe() {
	if err := n.sub.Unsubscribe(); err != nil {
		slog.Error("failed to unsubscribe", slogx.Error(err), slog.String("subscription", n.id))
	}
}

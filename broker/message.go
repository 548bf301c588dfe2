package broker

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
)

// Mode is the delivery contract a message was sent with.
type Mode uint8

const (
	Sync Mode = iota + 1
	Async
	PubSub
)

func (m Mode) String() string {
	switch m {
	case Sync:
		return "sync"
	case Async:
		return "async"
	case PubSub:
		return "pubsub"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Message is immutable once created; the broker hands out copies.
type Message struct {
	ID        string          `json:"id"`
	Mode      Mode            `json:"mode"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (m Message) String() string {
	to := m.Recipient
	if m.Mode == PubSub {
		to = "#" + m.Topic
	}
	return fmt.Sprintf("[%s] %s -> %s: %s", m.Mode, m.Sender, to, m.Content)
}

// Mailbox receives directly addressed messages.
type Mailbox interface {
	Deliver(Message)
}

// MailboxFunc adapts a function to the Mailbox interface.
type MailboxFunc func(Message)

func (fn MailboxFunc) Deliver(msg Message) { fn(msg) }

// Handler consumes messages published on a topic.
type Handler func(context.Context, Message) error

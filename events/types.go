package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

type Event interface {
	Kind() string
}

type Stream interface {
	Topic(context.Context, string) Topic
}

type Topic interface {
	Publish(context.Context, Event) error
	Subscribe(context.Context, Hook) (Subscription, error)
}

type Subscription interface {
	ID() string
	Unsubscribe()
}

// Hook receives events delivered to a subscription.
type Hook interface {
	OnEvent(context.Context, Event)
	OnError(context.Context, error)
}

// HookFunc turns a function into a Hook that ignores errors.
type HookFunc func(context.Context, Event)

func (fn HookFunc) OnEvent(ctx context.Context, e Event) { fn(ctx, e) }
func (HookFunc) OnError(context.Context, error)          {}

// StepTaken records one percept-reason-act cycle.
type StepTaken struct {
	Agent     string          `json:"agent"`
	Step      int             `json:"step"`
	Action    string          `json:"action"`
	Target    string          `json:"target,omitempty"`
	Rationale string          `json:"rationale,omitempty"`
	Fallback  bool            `json:"fallback,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (StepTaken) Kind() string { return "step" }

// MessageLogged mirrors an entry of the message broker log.
type MessageLogged struct {
	ID        string          `json:"id"`
	Mode      string          `json:"mode"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Content   string          `json:"content"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (MessageLogged) Kind() string { return "message" }

// OfferMade records an offer and the counterpart's reaction to it.
type OfferMade struct {
	Session   string          `json:"session"`
	Bidder    string          `json:"bidder"`
	Number    int             `json:"number"`
	Price     float64         `json:"price"`
	Quantity  float64         `json:"quantity"`
	Utility   float64         `json:"utility"`
	Response  string          `json:"response,omitempty"`
	Argument  string          `json:"argument,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (OfferMade) Kind() string { return "offer" }

// NegotiationClosed records the terminal state of a negotiation session.
type NegotiationClosed struct {
	Session   string          `json:"session"`
	State     string          `json:"state"`
	Rounds    int             `json:"rounds"`
	Price     float64         `json:"price,omitempty"`
	Quantity  float64         `json:"quantity,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (NegotiationClosed) Kind() string { return "negotiation_closed" }

// TaskAssigned records an allocation decision.
type TaskAssigned struct {
	Task      string          `json:"task"`
	Worker    string          `json:"worker,omitempty"`
	Strategy  string          `json:"strategy"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (TaskAssigned) Kind() string { return "task_assigned" }

// ResourceChanged records a transition of a shared resource.
type ResourceChanged struct {
	Resource  string          `json:"resource"`
	Agent     string          `json:"agent"`
	Action    string          `json:"action"`
	State     string          `json:"state"`
	Owner     string          `json:"owner,omitempty"`
	Granted   bool            `json:"granted"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (ResourceChanged) Kind() string { return "resource" }

// VoteCast records one ballot of a team vote.
type VoteCast struct {
	Proposal  string          `json:"proposal"`
	Voter     string          `json:"voter"`
	Approve   bool            `json:"approve"`
	Reason    string          `json:"reason,omitempty"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (VoteCast) Kind() string { return "vote" }

// Failure carries an error through the stream; hooks receive it via OnError.
type Failure struct {
	Source    string          `json:"source"`
	Message   string          `json:"message"`
	Timestamp strfmt.DateTime `json:"timestamp"`
}

func (Failure) Kind() string { return "failure" }

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Source, f.Message)
}

// ToJSON encodes an event with its type marker.
func ToJSON(e Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("event is required")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(b, "type", e.Kind())
}

// FromJSON decodes an event produced by ToJSON.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	kind := gjson.GetBytes(data, "type")
	if !kind.Exists() {
		return nil, errors.New("missing event type")
	}

	switch kind.String() {
	case StepTaken{}.Kind():
		return decode[StepTaken](data)
	case MessageLogged{}.Kind():
		return decode[MessageLogged](data)
	case OfferMade{}.Kind():
		return decode[OfferMade](data)
	case NegotiationClosed{}.Kind():
		return decode[NegotiationClosed](data)
	case TaskAssigned{}.Kind():
		return decode[TaskAssigned](data)
	case ResourceChanged{}.Kind():
		return decode[ResourceChanged](data)
	case VoteCast{}.Kind():
		return decode[VoteCast](data)
	case Failure{}.Kind():
		return decode[Failure](data)
	default:
		return nil, fmt.Errorf("unknown event type: %q", kind.String())
	}
}

func decode[T Event](data []byte) (Event, error) {
	var e T
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

func dispatch(ctx context.Context, hook Hook, event Event) {
	if f, ok := event.(Failure); ok {
		hook.OnError(ctx, f)
		return
	}
	hook.OnEvent(ctx, event)
}

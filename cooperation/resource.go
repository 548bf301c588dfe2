package cooperation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/casualjim/agora/events"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

var (
	ErrResourceBusy = errors.New("resource is held by another agent")
	ErrNotOwner     = errors.New("agent does not hold the resource")
	ErrNoAgent      = errors.New("agent name is required")
)

// ResourceState is the lifecycle of a shared resource.
type ResourceState uint8

const (
	Free ResourceState = iota
	Busy
	Reserved
)

func (s ResourceState) String() string {
	switch s {
	case Free:
		return "free"
	case Busy:
		return "busy"
	case Reserved:
		return "reserved"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Access is one entry of a resource's access log.
type Access struct {
	Agent     string
	Action    string
	Granted   bool
	State     ResourceState
	Owner     string
	Timestamp strfmt.DateTime
}

// SharedResource can be held by at most one agent. Busy and Reserved always
// have an owner and Free never does; only the owner moves it back to Free.
type SharedResource struct {
	name   string
	events events.Topic
	clock  func() time.Time

	mu    sync.Mutex
	state ResourceState
	owner string
	log   []Access
}

var ResourceEvents = opts.ForName[SharedResource, events.Topic]("events")

// ResourceClock replaces time.Now for timestamps.
func ResourceClock(now func() time.Time) opts.Option[SharedResource] {
	return opts.Type[SharedResource](func(r *SharedResource) error {
		r.clock = now
		return nil
	})
}

func NewSharedResource(name string, options ...opts.Option[SharedResource]) *SharedResource {
	r := &SharedResource{name: name, clock: time.Now}
	if err := opts.Apply(r, options); err != nil {
		panic(err)
	}
	return r
}

func (r *SharedResource) Name() string { return r.name }

// State returns the current state and owner.
func (r *SharedResource) State() (ResourceState, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state, r.owner
}

// Acquire makes agent the user of the resource. The agent holding a
// reservation may acquire; anyone else fails while the resource is not free.
func (r *SharedResource) Acquire(ctx context.Context, agent string) error {
	if agent == "" {
		return fmt.Errorf("%w: %s acquire", ErrNoAgent, r.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch {
	case r.state == Free, r.owner == agent:
		r.state, r.owner = Busy, agent
	default:
		err = fmt.Errorf("%w: %s is %s by %s", ErrResourceBusy, r.name, r.state, r.owner)
	}
	r.record(ctx, agent, "acquire", err == nil)
	return err
}

// Reserve holds a free resource for later use.
func (r *SharedResource) Reserve(ctx context.Context, agent string) error {
	if agent == "" {
		return fmt.Errorf("%w: %s reserve", ErrNoAgent, r.name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	switch {
	case r.state == Free:
		r.state, r.owner = Reserved, agent
	case r.owner == agent && r.state == Reserved:
	default:
		err = fmt.Errorf("%w: %s is %s by %s", ErrResourceBusy, r.name, r.state, r.owner)
	}
	r.record(ctx, agent, "reserve", err == nil)
	return err
}

// Release frees the resource. Only the owner may release it.
func (r *SharedResource) Release(ctx context.Context, agent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.state == Free || r.owner != agent {
		err = fmt.Errorf("%w: %s cannot release %s", ErrNotOwner, agent, r.name)
	} else {
		r.state, r.owner = Free, ""
	}
	r.record(ctx, agent, "release", err == nil)
	return err
}

// Log returns every access attempt, granted or not.
func (r *SharedResource) Log() []Access {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.log)
}

func (r *SharedResource) record(ctx context.Context, agent, action string, granted bool) {
	entry := Access{
		Agent:     agent,
		Action:    action,
		Granted:   granted,
		State:     r.state,
		Owner:     r.owner,
		Timestamp: strfmt.DateTime(r.clock()),
	}
	r.log = append(r.log, entry)
	events.Emit(ctx, r.events, events.ResourceChanged{
		Resource:  r.name,
		Agent:     agent,
		Action:    action,
		State:     entry.State.String(),
		Owner:     entry.Owner,
		Granted:   granted,
		Timestamp: entry.Timestamp,
	})
}

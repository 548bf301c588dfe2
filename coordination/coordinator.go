package coordination

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

const Centralized = "centralized"

type choice struct {
	Worker string `json:"worker" jsonschema:"description=Name of the worker that should take the task"`
	Reason string `json:"reason" jsonschema:"description=One sentence explaining the choice"`
}

// Coordinator assigns every task itself.
type Coordinator struct {
	*agent.Agent

	workers []*Worker
	broker  *broker.Broker
	events  events.Topic
	logger  *slog.Logger
}

var (
	// Broker lets the coordinator notify workers of their assignments.
	Broker = opts.ForName[Coordinator, *broker.Broker]("broker")
	Events = opts.ForName[Coordinator, events.Topic]("events")
	Logger = opts.ForName[Coordinator, *slog.Logger]("logger")
)

func NewCoordinator(a *agent.Agent, workers []*Worker, options ...opts.Option[Coordinator]) (*Coordinator, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	c := &Coordinator{Agent: a, workers: workers}
	if err := opts.Apply(c, options); err != nil {
		return nil, err
	}
	c.logger = slogx.Component(c.logger, "coordinator").With(slogx.Agent(a.Name()))
	if c.broker != nil {
		if err := registerAll(c.broker, workers); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Coordinator) Workers() []*Worker { return c.workers }

// ChooseBestWorker asks the model which worker should take t. An answer that
// names no worker able to take the task, or no answer at all, falls back to
// the least loaded worker that fits.
func (c *Coordinator) ChooseBestWorker(ctx context.Context, t Task) (*Worker, Assignment, error) {
	as := Assignment{Task: t}

	prompt := fmt.Sprintf(
		"Task to assign: %s\n\nWorkers:\n%s\n\nWhich worker should take it? Prefer the least loaded worker that has the required skill and room for the effort.",
		t, LoadSummary(c.workers),
	)
	answer, err := agent.Ask[choice](ctx, c.Agent, prompt)
	if err == nil {
		if w := c.byName(answer.Worker); w != nil && w.Fits(t) {
			as.Worker, as.Reason = w.Name(), answer.Reason
			return w, as, nil
		}
		c.logger.WarnContext(ctx, "model chose an unusable worker", slog.String("task", t.ID), slog.String("worker", answer.Worker))
	} else {
		c.logger.WarnContext(ctx, "choosing without the model", slog.String("task", t.ID), slogx.Error(err))
	}

	w := leastLoaded(c.workers, t)
	if w == nil {
		return nil, as, fmt.Errorf("%w: no worker fits %s", ErrNoCapacity, t.ID)
	}
	as.Worker, as.Reason, as.Fallback = w.Name(), "least loaded worker", true
	return w, as, nil
}

// Assign allocates tasks in priority order. Tasks no worker can take are
// reported as unassigned.
func (c *Coordinator) Assign(ctx context.Context, tasks []Task) (Allocation, error) {
	alloc := Allocation{Strategy: Centralized}
	for _, t := range byPriority(tasks) {
		if err := ctx.Err(); err != nil {
			return alloc, err
		}

		w, as, err := c.ChooseBestWorker(ctx, t)
		if err != nil {
			t.Status = Unassigned
			alloc.Unassigned = append(alloc.Unassigned, t)
			c.logger.InfoContext(ctx, "task left unassigned", slog.String("task", t.ID))
			continue
		}
		if err := w.take(t); err != nil {
			return alloc, err
		}

		t.Assignee, t.Status = w.Name(), Assigned
		as.Task = t
		alloc.Assignments = append(alloc.Assignments, as)
		c.notify(ctx, w, as)
	}
	alloc.Loads = snapshot(c.workers)
	return alloc, nil
}

func (c *Coordinator) notify(ctx context.Context, w *Worker, as Assignment) {
	events.Emit(ctx, c.events, events.TaskAssigned{
		Task:      as.Task.ID,
		Worker:    w.Name(),
		Strategy:  Centralized,
		Reason:    as.Reason,
		Timestamp: strfmt.DateTime(timeNow()),
	})
	if c.broker == nil {
		return
	}
	if _, err := c.broker.SendSync(ctx, c.Name(), w.Name(), "assigned "+as.Task.ID+": "+as.Task.Description); err != nil {
		c.logger.WarnContext(ctx, "failed to notify worker", slogx.Error(err))
	}
}

func (c *Coordinator) byName(name string) *Worker {
	name = strings.TrimSpace(name)
	for _, w := range c.workers {
		if strings.EqualFold(w.Name(), name) {
			return w
		}
	}
	return nil
}

package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const (
	Decentralized = "decentralized"
	// TasksTopic is where a market announces tasks.
	TasksTopic = "tasks"
)

var timeNow = time.Now

// Bid is a worker's own decision about a task.
type Bid struct {
	Worker   string
	Accept   bool
	Reason   string
	Fallback bool
}

type verdict struct {
	Accept bool   `json:"accept" jsonschema:"description=Whether to take the task"`
	Reason string `json:"reason" jsonschema:"description=One sentence explaining the decision"`
}

// DecideAccept lets the worker decide whether to take t. Without a usable
// answer from the model it accepts exactly when the task fits. The worker
// never accepts a task that would put it over capacity.
func (w *Worker) DecideAccept(ctx context.Context, t Task) Bid {
	bid := Bid{Worker: w.Name()}
	prompt := fmt.Sprintf(
		"A task was announced: %s\n\nYour load is %d of %d.\nDo you accept it?",
		t, w.Load(), w.Capacity,
	)

	v, err := agent.Ask[verdict](ctx, w.Agent, prompt)
	if err != nil {
		bid.Fallback = true
		bid.Accept = w.Fits(t)
		bid.Reason = "room for the effort"
		if !bid.Accept {
			bid.Reason = "no room for the effort"
		}
		return bid
	}

	bid.Accept, bid.Reason = v.Accept, v.Reason
	if bid.Accept && !w.Fits(t) {
		bid.Accept, bid.Reason = false, "would exceed capacity"
	}
	return bid
}

// Market lets workers claim announced tasks.
type Market struct {
	name    string
	broker  *broker.Broker
	workers []*Worker
	events  events.Topic
	logger  *slog.Logger
}

var (
	MarketName   = opts.ForName[Market, string]("name")
	MarketEvents = opts.ForName[Market, events.Topic]("events")
	MarketLogger = opts.ForName[Market, *slog.Logger]("logger")
)

// NewMarket registers every worker with the broker and subscribes it to the
// tasks topic, so announcements land in the workers' inboxes.
func NewMarket(b *broker.Broker, workers []*Worker, options ...opts.Option[Market]) (*Market, error) {
	if len(workers) == 0 {
		return nil, ErrNoWorkers
	}
	m := &Market{name: "market", broker: b, workers: workers}
	if err := opts.Apply(m, options); err != nil {
		return nil, err
	}
	m.logger = slogx.Component(m.logger, "market")

	if err := registerAll(b, workers); err != nil {
		return nil, err
	}
	for _, w := range workers {
		if _, err := b.Subscribe(TasksTopic, func(_ context.Context, msg broker.Message) error {
			w.Deliver(msg)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Allocate announces tasks in priority order. For each task all workers
// decide concurrently and the first accepting worker in registration order
// gets it.
func (m *Market) Allocate(ctx context.Context, tasks []Task) (Allocation, error) {
	alloc := Allocation{Strategy: Decentralized}
	for _, t := range byPriority(tasks) {
		body, err := json.Marshal(t)
		if err != nil {
			return alloc, err
		}
		if _, err := m.broker.Publish(ctx, m.name, TasksTopic, string(body)); err != nil {
			return alloc, fmt.Errorf("announce %s: %w", t.ID, err)
		}

		bids, err := m.collect(ctx, t)
		if err != nil {
			return alloc, err
		}

		as, ok := m.award(ctx, t, bids)
		if !ok {
			t.Status = Unassigned
			alloc.Unassigned = append(alloc.Unassigned, t)
			m.logger.InfoContext(ctx, "nobody claimed task", slog.String("task", t.ID))
			continue
		}
		alloc.Assignments = append(alloc.Assignments, as)
	}
	alloc.Loads = snapshot(m.workers)
	return alloc, nil
}

func (m *Market) collect(ctx context.Context, t Task) ([]Bid, error) {
	bids := make([]Bid, len(m.workers))
	g, gctx := errgroup.WithContext(ctx)
	for i, w := range m.workers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			bids[i] = w.DecideAccept(gctx, t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return bids, nil
}

func (m *Market) award(ctx context.Context, t Task, bids []Bid) (Assignment, bool) {
	for i, bid := range bids {
		if !bid.Accept {
			continue
		}
		w := m.workers[i]
		if err := w.take(t); err != nil {
			m.logger.WarnContext(ctx, "bid could not be honoured", slogx.Error(err))
			continue
		}

		t.Assignee, t.Status = w.Name(), Assigned
		as := Assignment{Task: t, Worker: w.Name(), Reason: bid.Reason, Fallback: bid.Fallback}
		events.Emit(ctx, m.events, events.TaskAssigned{
			Task:      t.ID,
			Worker:    w.Name(),
			Strategy:  Decentralized,
			Reason:    bid.Reason,
			Timestamp: strfmt.DateTime(timeNow()),
		})
		if _, err := m.broker.SendSync(ctx, m.name, w.Name(), "awarded "+t.ID); err != nil {
			m.logger.WarnContext(ctx, "failed to notify winner", slogx.Error(err))
		}
		return as, true
	}
	return Assignment{}, false
}

func registerAll(b *broker.Broker, workers []*Worker) error {
	for _, w := range workers {
		if err := b.Register(w.Name(), w); err != nil && !errors.Is(err, broker.ErrAlreadyRegistered) {
			return err
		}
	}
	return nil
}

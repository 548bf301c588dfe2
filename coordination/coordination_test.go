package coordination

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/internal/llmtest"
	"github.com/casualjim/agora/llm"
	"github.com/fogfish/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWorkers(gw llm.Gateway, capacities ...int) []*Worker {
	workers := make([]*Worker, 0, len(capacities))
	for i, c := range capacities {
		name := []string{"w1", "w2", "w3", "w4"}[i]
		options := []opts.Option[agent.Agent]{agent.Name(name), agent.Role("a worker")}
		if gw != nil {
			options = append(options, agent.Gateway(gw))
		}
		workers = append(workers, NewWorker(agent.New(options...), c))
	}
	return workers
}

var tasks = []Task{
	{ID: "T1", Description: "write report", Effort: 3, Priority: 1},
	{ID: "T2", Description: "fix outage", Effort: 5, Priority: 5},
	{ID: "T3", Description: "review code", Effort: 2, Priority: 3},
}

func names(as []Assignment) map[string]string {
	out := make(map[string]string, len(as))
	for _, a := range as {
		out[a.Task.ID] = a.Worker
	}
	return out
}

func TestWorker(t *testing.T) {
	w := NewWorker(agent.New(agent.Name("w1")), 5, "go", "sql")

	assert.True(t, w.Fits(Task{Effort: 5}))
	assert.False(t, w.Fits(Task{Effort: 6}))
	assert.True(t, w.Fits(Task{Effort: 1, Skill: "go"}))
	assert.False(t, w.Fits(Task{Effort: 1, Skill: "rust"}))

	require.NoError(t, w.take(Task{ID: "a", Effort: 4}))
	assert.Equal(t, 4, w.Load())
	assert.Equal(t, []string{"a"}, w.Tasks())
	require.ErrorIs(t, w.take(Task{ID: "b", Effort: 2}), ErrNoCapacity)

	load, _ := w.Get("load")
	assert.Equal(t, 4, load)
	assert.Equal(t, "w1: load 4/5, skills go, sql", w.Summary())
}

func TestChooseBestWorkerFollowsModel(t *testing.T) {
	gw := llmtest.New(llmtest.JSON(choice{Worker: " W2 ", Reason: "w2 is idle"}))
	workers := newWorkers(nil, 10, 10)
	c, err := NewCoordinator(agent.New(agent.Name("boss"), agent.Gateway(gw)), workers)
	require.NoError(t, err)

	w, as, err := c.ChooseBestWorker(context.Background(), tasks[0])
	require.NoError(t, err)
	assert.Same(t, workers[1], w)
	assert.Equal(t, "w2 is idle", as.Reason)
	assert.False(t, as.Fallback)

	calls := gw.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "- w1: load 0/10")
	assert.Contains(t, calls[0].Prompt, "- w2: load 0/10")
}

func TestChooseBestWorkerFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		reply llmtest.Reply
	}{
		{"unknown worker", llmtest.JSON(choice{Worker: "w9", Reason: "?"})},
		{"worker without room", llmtest.JSON(choice{Worker: "w1", Reason: "busy one"})},
		{"unreachable", llmtest.Fail(llm.ConnectionFailed)},
		{"prose", llmtest.Text("w2 seems best")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			workers := newWorkers(nil, 10, 10, 10)
			require.NoError(t, workers[0].take(Task{ID: "x", Effort: 8}))
			require.NoError(t, workers[1].take(Task{ID: "y", Effort: 2}))

			c, err := NewCoordinator(agent.New(agent.Name("boss"), agent.Gateway(llmtest.New(tt.reply))), workers)
			require.NoError(t, err)

			w, as, err := c.ChooseBestWorker(context.Background(), Task{ID: "T", Effort: 3})
			require.NoError(t, err)
			assert.Same(t, workers[2], w)
			assert.True(t, as.Fallback)
		})
	}
}

func TestLeastLoadedTieBreaksByRegistrationOrder(t *testing.T) {
	workers := newWorkers(nil, 10, 10, 10)
	assert.Same(t, workers[0], leastLoaded(workers, Task{Effort: 1}))
	assert.Nil(t, leastLoaded(workers, Task{Effort: 11}))
}

func TestCoordinatorAssign(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	workers := newWorkers(nil, 6, 6)
	c, err := NewCoordinator(agent.New(agent.Name("boss")), workers, Broker(b))
	require.NoError(t, err)

	alloc, err := c.Assign(ctx, append(tasks, Task{ID: "T4", Description: "migrate", Effort: 50}))
	require.NoError(t, err)

	assert.Equal(t, Centralized, alloc.Strategy)
	assert.Equal(t, map[string]string{"T2": "w1", "T3": "w2", "T1": "w2"}, names(alloc.Assignments))
	assert.Equal(t, []string{"T2", "T3", "T1"}, []string{alloc.Assignments[0].Task.ID, alloc.Assignments[1].Task.ID, alloc.Assignments[2].Task.ID})
	assert.Equal(t, 3, alloc.Fallbacks())
	require.Len(t, alloc.Unassigned, 1)
	assert.Equal(t, "T4", alloc.Unassigned[0].ID)
	assert.Equal(t, Unassigned, alloc.Unassigned[0].Status)
	assert.Equal(t, Assigned, alloc.Assignments[0].Task.Status)

	require.Len(t, alloc.Loads, 2)
	assert.Equal(t, 5, alloc.Loads[0].Load)
	assert.Equal(t, 5, alloc.Loads[1].Load)
	assert.Zero(t, alloc.Spread())

	inbox := workers[1].Inbox()
	require.Len(t, inbox, 2)
	assert.True(t, strings.HasPrefix(inbox[0].Content, "assigned T3"))
	assert.Len(t, b.Log(), 3)
}

func TestCoordinatorRequiresWorkers(t *testing.T) {
	_, err := NewCoordinator(agent.New(agent.Name("boss")), nil)
	require.ErrorIs(t, err, ErrNoWorkers)
}

func TestDecideAccept(t *testing.T) {
	ctx := context.Background()

	t.Run("offline fits", func(t *testing.T) {
		w := newWorkers(nil, 5)[0]
		bid := w.DecideAccept(ctx, Task{ID: "T", Effort: 5})
		assert.True(t, bid.Accept)
		assert.True(t, bid.Fallback)
	})

	t.Run("offline too big", func(t *testing.T) {
		w := newWorkers(nil, 5)[0]
		bid := w.DecideAccept(ctx, Task{ID: "T", Effort: 6})
		assert.False(t, bid.Accept)
		assert.True(t, bid.Fallback)
	})

	t.Run("model declines", func(t *testing.T) {
		w := newWorkers(llmtest.New(llmtest.JSON(verdict{Accept: false, Reason: "tired"})), 5)[0]
		bid := w.DecideAccept(ctx, Task{ID: "T", Effort: 1})
		assert.False(t, bid.Accept)
		assert.False(t, bid.Fallback)
		assert.Equal(t, "tired", bid.Reason)
	})

	t.Run("model overcommits", func(t *testing.T) {
		w := newWorkers(llmtest.New(llmtest.JSON(verdict{Accept: true, Reason: "sure"})), 5)[0]
		bid := w.DecideAccept(ctx, Task{ID: "T", Effort: 9})
		assert.False(t, bid.Accept)
		assert.Equal(t, "would exceed capacity", bid.Reason)
	})
}

func TestMarketAllocateOffline(t *testing.T) {
	ctx := context.Background()
	b := broker.New()
	workers := newWorkers(nil, 6, 6)
	m, err := NewMarket(b, workers)
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers(TasksTopic))

	alloc, err := m.Allocate(ctx, tasks)
	require.NoError(t, err)

	assert.Equal(t, Decentralized, alloc.Strategy)
	assert.Equal(t, map[string]string{"T2": "w1", "T3": "w2", "T1": "w2"}, names(alloc.Assignments))
	assert.Empty(t, alloc.Unassigned)

	for _, w := range workers {
		announced := 0
		for _, msg := range w.Inbox() {
			if msg.Topic == TasksTopic {
				announced++
			}
		}
		assert.Equal(t, 3, announced, w.Name())
	}
}

func TestMarketFirstAccepterWins(t *testing.T) {
	ctx := context.Background()
	gw := llmtest.Responder(func(req llm.Request) llmtest.Reply {
		if strings.HasPrefix(req.System, "You are w1") {
			return llmtest.JSON(verdict{Accept: false, Reason: "busy"})
		}
		return llmtest.JSON(verdict{Accept: true, Reason: "happy to"})
	})
	workers := newWorkers(gw, 10, 10, 10)

	stream := events.Local()
	topic := stream.Topic(ctx, "tasks")
	rec := events.NewRecorder(4)
	sub, err := topic.Subscribe(ctx, rec)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	m, err := NewMarket(broker.New(), workers, MarketEvents(topic))
	require.NoError(t, err)

	alloc, err := m.Allocate(ctx, tasks[:1])
	require.NoError(t, err)
	require.Len(t, alloc.Assignments, 1)
	assert.Equal(t, "w2", alloc.Assignments[0].Worker)
	assert.Equal(t, "happy to", alloc.Assignments[0].Reason)
	assert.Len(t, gw.Calls(), 3)

	select {
	case e := <-rec.C:
		assigned, ok := e.(events.TaskAssigned)
		require.True(t, ok)
		assert.Equal(t, "w2", assigned.Worker)
		assert.Equal(t, Decentralized, assigned.Strategy)
	case <-time.After(time.Second):
		t.Fatal("no assignment event")
	}
}

func TestMarketUnclaimedTask(t *testing.T) {
	workers := newWorkers(nil, 2, 2)
	m, err := NewMarket(broker.New(), workers)
	require.NoError(t, err)

	alloc, err := m.Allocate(context.Background(), []Task{{ID: "big", Effort: 3}})
	require.NoError(t, err)
	assert.Empty(t, alloc.Assignments)
	require.Len(t, alloc.Unassigned, 1)
	assert.Equal(t, 0, alloc.Spread())
}

func TestMarketCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := NewMarket(broker.New(), newWorkers(nil, 5))
	require.NoError(t, err)

	_, err = m.Allocate(ctx, tasks)
	require.ErrorIs(t, err, context.Canceled)
}

func TestByPriorityIsStable(t *testing.T) {
	in := []Task{{ID: "a", Priority: 1}, {ID: "b", Priority: 2}, {ID: "c", Priority: 1}}
	out := byPriority(in)
	assert.Equal(t, []string{"b", "a", "c"}, []string{out[0].ID, out[1].ID, out[2].ID})
	assert.Equal(t, "a", in[0].ID)
}

package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/coordination"
	"github.com/fogfish/opts"
)

func backlog() []coordination.Task {
	return []coordination.Task{
		{ID: "T1", Description: "design the database schema", Effort: 5, Priority: 5, Skill: "backend"},
		{ID: "T2", Description: "build the login page", Effort: 3, Priority: 4, Skill: "frontend"},
		{ID: "T3", Description: "write the REST endpoints", Effort: 4, Priority: 4, Skill: "backend"},
		{ID: "T4", Description: "configure CI", Effort: 2, Priority: 3, Skill: "ops"},
		{ID: "T5", Description: "style the dashboard", Effort: 3, Priority: 2, Skill: "frontend"},
		{ID: "T6", Description: "load test the API", Effort: 4, Priority: 1},
		{ID: "T7", Description: "rewrite everything in one go", Effort: 20, Priority: 1},
	}
}

func (e Env) workers() []*coordination.Worker {
	specs := []struct {
		name     string
		capacity int
		skills   []string
	}{
		{"ada", 10, []string{"backend", "ops"}},
		{"grace", 6, []string{"frontend"}},
		{"linus", 8, []string{"backend", "frontend", "ops"}},
	}
	workers := make([]*coordination.Worker, 0, len(specs))
	for _, s := range specs {
		a := e.agent(
			agent.Name(s.name),
			agent.Role("a developer skilled in "+strings.Join(s.skills, ", ")),
			agent.Objective("finish assigned work without exceeding capacity"),
		)
		workers = append(workers, coordination.NewWorker(a, s.capacity, s.skills...))
	}
	return workers
}

// Centralized lets one coordinator assign the whole backlog.
func Centralized(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Centralized coordination")
	if !env.ready(ctx) {
		return nil
	}

	b := broker.New(broker.Events(env.Events))
	workers := env.workers()
	boss := env.agent(
		agent.Name("coordinator"),
		agent.Role("the team lead who assigns every task"),
		agent.Objective("balance the load across the team"),
	)
	options := []opts.Option[coordination.Coordinator]{coordination.Broker(b), coordination.Events(env.Events)}
	if env.Logger != nil {
		options = append(options, coordination.Logger(env.Logger))
	}
	c, err := coordination.NewCoordinator(boss, workers, options...)
	if err != nil {
		return err
	}

	n.Section("workers")
	n.Info("%s", coordination.LoadSummary(workers))

	alloc, err := c.Assign(ctx, backlog())
	if err != nil {
		return err
	}
	narrateAllocation(env, alloc)
	return nil
}

// Decentralized lets workers claim the backlog themselves.
func Decentralized(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Decentralized coordination")
	if !env.ready(ctx) {
		return nil
	}

	b := broker.New(broker.Events(env.Events))
	workers := env.workers()
	options := []opts.Option[coordination.Market]{coordination.MarketEvents(env.Events)}
	if env.Logger != nil {
		options = append(options, coordination.MarketLogger(env.Logger))
	}
	m, err := coordination.NewMarket(b, workers, options...)
	if err != nil {
		return err
	}

	n.Section("workers")
	n.Info("%s", coordination.LoadSummary(workers))

	alloc, err := m.Allocate(ctx, backlog())
	if err != nil {
		return err
	}
	narrateAllocation(env, alloc)
	announced := 0
	for _, msg := range b.Log() {
		if msg.Topic == coordination.TasksTopic {
			announced++
		}
	}
	n.Info("%d tasks announced on #%s to %d workers", announced, coordination.TasksTopic, b.Subscribers(coordination.TasksTopic))
	return nil
}

func narrateAllocation(env Env, alloc coordination.Allocation) {
	n := env.narrator()
	n.Section("assignments")
	for _, as := range alloc.Assignments {
		n.Decision(as.Worker, agent.Decision{Action: "take", Target: as.Task.ID, Rationale: as.Reason, Fallback: as.Fallback})
	}
	for _, t := range alloc.Unassigned {
		n.Warn("nobody can take %s", t)
	}

	var md strings.Builder
	fmt.Fprintf(&md, "## %s allocation\n\n| worker | load | capacity | tasks |\n|---|---|---|---|\n", alloc.Strategy)
	for _, l := range alloc.Loads {
		fmt.Fprintf(&md, "| %s | %d | %d | %s |\n", l.Worker, l.Load, l.Capacity, strings.Join(l.Tasks, ", "))
	}
	fmt.Fprintf(&md, "\nLoad spread: %d. Unassigned: %d. Decided by policy: %d of %d.\n",
		alloc.Spread(), len(alloc.Unassigned), alloc.Fallbacks(), len(alloc.Assignments))
	n.Summary(md.String())
	n.Dump("allocation", alloc)
}

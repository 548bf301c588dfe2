package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/cooperation"
	"github.com/fogfish/opts"
)

// Cooperation shows mutual exclusion on a shared printer, then a team that
// delegates work, completes some of it and votes on a proposal.
func Cooperation(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Cooperation: shared resources and teams")
	if !env.ready(ctx) {
		return nil
	}

	n.Section("a shared printer")
	printer := cooperation.NewSharedResource("printer", cooperation.ResourceEvents(env.Events))
	attempts := []struct {
		agent, action string
	}{
		{"alice", "acquire"},
		{"bob", "acquire"},
		{"bob", "release"},
		{"carol", "reserve"},
		{"alice", "release"},
		{"carol", "reserve"},
		{"bob", "acquire"},
		{"carol", "acquire"},
		{"carol", "release"},
		{"bob", "acquire"},
		{"bob", "release"},
	}
	for _, at := range attempts {
		var err error
		switch at.action {
		case "acquire":
			err = printer.Acquire(ctx, at.agent)
		case "reserve":
			err = printer.Reserve(ctx, at.agent)
		case "release":
			err = printer.Release(ctx, at.agent)
		}
		state, owner := printer.State()
		if err != nil {
			n.Warn("%s %s: %v", at.agent, at.action, err)
			continue
		}
		n.Info("%s %s: ok, printer is %s %s", at.agent, at.action, state, owner)
	}

	n.Section("a team")
	specs := []struct {
		name   string
		skills []string
	}{
		{"alice", []string{"research", "writing"}},
		{"bob", []string{"analysis", "research"}},
		{"carol", []string{"writing", "design"}},
	}
	members := make([]*cooperation.Member, 0, len(specs))
	for _, s := range specs {
		a := env.agent(
			agent.Name(s.name),
			agent.Role("a team member skilled in "+strings.Join(s.skills, ", ")),
			agent.Objective("deliver the quarterly report with the team"),
		)
		members = append(members, &cooperation.Member{Agent: a, Skills: s.skills})
	}
	options := []opts.Option[cooperation.Team]{
		cooperation.TeamEvents(env.Events),
		// without a model, members with spare time support new work
		cooperation.WithBallotPolicy(func(m *cooperation.Member, _ string) (bool, string) {
			load, _ := m.Get("in_progress")
			busy, _ := load.(int)
			if busy < 2 {
				return true, "I have time for it"
			}
			return false, "I am fully booked"
		}),
	}
	if env.Logger != nil {
		options = append(options, cooperation.TeamLogger(env.Logger))
	}
	team, err := cooperation.NewTeam("report", members, options...)
	if err != nil {
		return err
	}

	tasks := []cooperation.Task{
		{ID: "R1", Description: "collect market data", Skill: "research"},
		{ID: "R2", Description: "analyse the trends", Skill: "analysis"},
		{ID: "R3", Description: "draft the report", Skill: "writing"},
		{ID: "R4", Description: "design the charts", Skill: "design"},
		{ID: "R5", Description: "interview customers", Skill: "research"},
		{ID: "R6", Description: "translate the report", Skill: "translation"},
	}
	for _, t := range tasks {
		m, err := team.Delegate(ctx, t)
		if err != nil {
			n.Warn("%s: %v", t.ID, err)
			continue
		}
		n.Info("%s (%s) goes to %s", t.ID, t.Description, m.Name())
	}
	for _, id := range []string{"R1", "R3"} {
		if _, err := team.Complete(ctx, id); err != nil {
			return err
		}
	}

	proposal := "Publish the report a week early"
	out, err := team.Vote(ctx, proposal)
	if err != nil {
		return err
	}
	for _, b := range out.Ballots {
		vote := "no"
		if b.Approve {
			vote = "yes"
		}
		n.Decision(b.Voter, agent.Decision{Action: "vote", Target: vote, Rationale: b.Reason, Fallback: b.Fallback})
	}

	var md strings.Builder
	fmt.Fprintf(&md, "## Team %s\n\n", team.Name())
	fmt.Fprintf(&md, "- in progress: %d\n- completed: %d\n- proposal %q: %d of %d in favour, ",
		len(team.InProgress()), len(team.Completed()), proposal, out.Approvals, len(out.Ballots))
	if out.Passed {
		md.WriteString("passed\n")
	} else {
		md.WriteString("rejected\n")
	}
	md.WriteString("\n### Decision log\n\n")
	for _, r := range team.Decisions() {
		fmt.Fprintf(&md, "1. %s\n", r.Summary)
	}
	fmt.Fprintf(&md, "\nThe printer saw %d access attempts.\n", len(printer.Log()))
	n.Summary(md.String())
	return nil
}

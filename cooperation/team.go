package cooperation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

var (
	ErrNoMember    = errors.New("no team member has the skill")
	ErrUnknownTask = errors.New("task is not in progress")
	ErrDuplicate   = errors.New("task is already in progress")
)

// Member is an agent with the skills it contributes to a team.
type Member struct {
	*agent.Agent
	Skills []string
}

func (m *Member) HasSkill(skill string) bool {
	return skill == "" || slices.Contains(m.Skills, skill)
}

type Task struct {
	ID          string
	Description string
	Skill       string
	Owner       string
}

// Ballot is one member's vote.
type Ballot struct {
	Voter    string
	Approve  bool
	Reason   string
	Fallback bool
}

// Outcome is the result of a team vote. A proposal passes with a strict
// majority of the members.
type Outcome struct {
	Proposal  string
	Ballots   []Ballot
	Approvals int
	Passed    bool
}

// Record is one entry of the team's decision log.
type Record struct {
	Kind      string
	Summary   string
	Timestamp strfmt.DateTime
}

// BallotPolicy votes for a member whose model could not answer.
type BallotPolicy func(m *Member, proposal string) (approve bool, reason string)

// Abstain is the default ballot policy: members without an answer vote no.
func Abstain(*Member, string) (bool, string) {
	return false, "abstained"
}

type ballot struct {
	Approve bool   `json:"approve" jsonschema:"description=Whether you support the proposal"`
	Reason  string `json:"reason" jsonschema:"description=One sentence explaining the vote"`
}

// Team delegates work among its members and decides together.
type Team struct {
	name    string
	members []*Member
	policy  BallotPolicy
	events  events.Topic
	logger  *slog.Logger
	clock   func() time.Time

	mu         sync.Mutex
	inProgress *orderedmap.OrderedMap[string, Task]
	completed  []Task
	decisions  []Record
}

var (
	TeamEvents = opts.ForName[Team, events.Topic]("events")
	TeamLogger = opts.ForName[Team, *slog.Logger]("logger")
)

// WithBallotPolicy sets how members without a model answer vote.
func WithBallotPolicy(policy BallotPolicy) opts.Option[Team] {
	return opts.Type[Team](func(t *Team) error {
		if policy == nil {
			return errors.New("ballot policy is required")
		}
		t.policy = policy
		return nil
	})
}

// TeamClock replaces time.Now for timestamps.
func TeamClock(now func() time.Time) opts.Option[Team] {
	return opts.Type[Team](func(t *Team) error {
		t.clock = now
		return nil
	})
}

func NewTeam(name string, members []*Member, options ...opts.Option[Team]) (*Team, error) {
	if len(members) == 0 {
		return nil, errors.New("a team needs members")
	}
	t := &Team{
		name:       name,
		members:    members,
		policy:     Abstain,
		clock:      time.Now,
		inProgress: orderedmap.New[string, Task](),
	}
	if err := opts.Apply(t, options); err != nil {
		return nil, err
	}
	t.logger = slogx.Component(t.logger, "team").With(slog.String("team", name))
	return t, nil
}

func (t *Team) Name() string       { return t.name }
func (t *Team) Members() []*Member { return t.members }

// Delegate hands task to the member with the skill and the fewest tasks in
// progress, the earlier member on ties.
func (t *Team) Delegate(ctx context.Context, task Task) (*Member, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.inProgress.Get(task.ID); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, task.ID)
	}

	var chosen *Member
	best := 0
	for _, m := range t.members {
		if !m.HasSkill(task.Skill) {
			continue
		}
		if n := t.workload(m.Name()); chosen == nil || n < best {
			chosen, best = m, n
		}
	}
	if chosen == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMember, task.Skill)
	}

	task.Owner = chosen.Name()
	t.inProgress.Set(task.ID, task)
	chosen.Set("in_progress", best+1)
	t.decide(ctx, "delegate", fmt.Sprintf("%s delegated to %s", task.ID, chosen.Name()))
	return chosen, nil
}

// Complete moves a task from in progress to completed.
func (t *Team) Complete(ctx context.Context, id string) (Task, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.inProgress.Delete(id)
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}
	t.completed = append(t.completed, task)
	for _, m := range t.members {
		if m.Name() == task.Owner {
			m.Set("in_progress", t.workload(m.Name()))
		}
	}
	t.decide(ctx, "complete", fmt.Sprintf("%s completed by %s", id, task.Owner))
	return task, nil
}

// Vote asks every member, in order, whether to approve the proposal.
func (t *Team) Vote(ctx context.Context, proposal string) (Outcome, error) {
	out := Outcome{Proposal: proposal}
	for _, m := range t.members {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		b := Ballot{Voter: m.Name()}
		answer, err := agent.Ask[ballot](ctx, m.Agent, "The team "+t.name+" must decide on this proposal:\n"+proposal+"\n\nDo you approve it?")
		if err != nil {
			b.Approve, b.Reason = t.policy(m, proposal)
			b.Fallback = true
		} else {
			b.Approve, b.Reason = answer.Approve, answer.Reason
		}
		if b.Approve {
			out.Approvals++
		}
		out.Ballots = append(out.Ballots, b)

		events.Emit(ctx, t.events, events.VoteCast{
			Proposal:  proposal,
			Voter:     b.Voter,
			Approve:   b.Approve,
			Reason:    b.Reason,
			Timestamp: strfmt.DateTime(t.clock()),
		})
	}
	out.Passed = out.Approvals*2 > len(t.members)

	verdict := "rejected"
	if out.Passed {
		verdict = "approved"
	}
	t.mu.Lock()
	t.decide(ctx, "vote", fmt.Sprintf("%q %s %d/%d", proposal, verdict, out.Approvals, len(t.members)))
	t.mu.Unlock()
	return out, nil
}

// InProgress returns the open tasks in delegation order.
func (t *Team) InProgress() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	tasks := make([]Task, 0, t.inProgress.Len())
	for pair := t.inProgress.Oldest(); pair != nil; pair = pair.Next() {
		tasks = append(tasks, pair.Value)
	}
	return tasks
}

func (t *Team) Completed() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.completed)
}

// Decisions returns the decision log.
func (t *Team) Decisions() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.decisions)
}

func (t *Team) workload(member string) int {
	n := 0
	for pair := t.inProgress.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.Owner == member {
			n++
		}
	}
	return n
}

func (t *Team) decide(ctx context.Context, kind, summary string) {
	t.decisions = append(t.decisions, Record{Kind: kind, Summary: summary, Timestamp: strfmt.DateTime(t.clock())})
	t.logger.InfoContext(ctx, summary, slog.String("kind", kind))
}

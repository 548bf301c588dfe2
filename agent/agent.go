package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/llm"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/casualjim/agora/pkg/stdx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNoGateway is returned by Reason when the agent has no language model.
var ErrNoGateway = errors.New("agent has no gateway")

// Decision is the typed outcome of one reasoning step.
type Decision struct {
	Action    string `json:"action" jsonschema:"description=The action to take"`
	Target    string `json:"target,omitempty" jsonschema:"description=Who or what the action applies to"`
	Rationale string `json:"rationale" jsonschema:"description=One sentence explaining the choice"`

	Step      int             `json:"-"`
	Fallback  bool            `json:"-"`
	Timestamp strfmt.DateTime `json:"-"`
}

func (d Decision) String() string {
	if d.Target == "" {
		return d.Action
	}
	return d.Action + " " + d.Target
}

// Perception is the snapshot an agent reasons about.
type Perception struct {
	Agent       string
	Role        string
	Objective   string
	State       []Fact
	Environment []Fact
	Messages    []broker.Message
	Step        int

	// inbox length when perceived; acting marks only these messages read
	seen int
}

// Actuator carries out decisions in the world.
type Actuator interface {
	Execute(context.Context, *Agent, Decision) error
}

// ActuatorFunc adapts a function to the Actuator interface.
type ActuatorFunc func(context.Context, *Agent, Decision) error

func (fn ActuatorFunc) Execute(ctx context.Context, a *Agent, d Decision) error { return fn(ctx, a, d) }

const defaultPrompt = `You are {{.Agent}}, {{.Role}}.
Objective: {{.Objective}}
{{- if .State}}

Your current state:
{{- range .State}}
- {{.Key}}: {{.Value}}
{{- end}}
{{- end}}
{{- if .Environment}}

What you observe:
{{- range .Environment}}
- {{.Key}}: {{.Value}}
{{- end}}
{{- end}}
{{- if .Messages}}

Messages you received:
{{- range .Messages}}
- from {{.Sender}}: {{.Content}}
{{- end}}
{{- end}}
{{- if .Actions}}

Choose exactly one action among: {{join .Actions ", "}}.
{{- end}}

Answer with a JSON object holding the action, an optional target and a one sentence rationale.`

var promptFuncs = template.FuncMap{"join": strings.Join}

var defaultTemplate = stdx.Must1(template.New("prompt").Funcs(promptFuncs).Option("missingkey=error").Parse(defaultPrompt))

type promptData struct {
	Perception
	Actions []string
}

// Agent is a named participant with a role, an objective and private state.
type Agent struct {
	name        string
	role        string
	objective   string
	gateway     llm.Gateway
	temperature *float64
	policy      Policy
	actuator    Actuator
	actions     []string
	prompt      *template.Template
	events      events.Topic
	logger      *slog.Logger
	clock       func() time.Time

	mu      sync.Mutex
	state   *orderedmap.OrderedMap[string, any]
	history []Decision
	inbox   []broker.Message
	read    int
}

var (
	Name         = opts.ForName[Agent, string]("name")
	Role         = opts.ForName[Agent, string]("role")
	Objective    = opts.ForName[Agent, string]("objective")
	Gateway      = opts.ForName[Agent, llm.Gateway]("gateway")
	WithPolicy   = opts.ForName[Agent, Policy]("policy")
	WithActuator = opts.ForName[Agent, Actuator]("actuator")
	Events       = opts.ForName[Agent, events.Topic]("events")
	Logger       = opts.ForName[Agent, *slog.Logger]("logger")
)

// Clock replaces time.Now for timestamps.
func Clock(now func() time.Time) opts.Option[Agent] {
	return opts.Type[Agent](func(a *Agent) error {
		a.clock = now
		return nil
	})
}

// Temperature sets the sampling temperature used when reasoning.
func Temperature(t float64) opts.Option[Agent] {
	return opts.Type[Agent](func(a *Agent) error {
		a.temperature = &t
		return nil
	})
}

// Actions restricts the decisions the agent accepts from the model.
func Actions(action string, more ...string) opts.Option[Agent] {
	return opts.Type[Agent](func(a *Agent) error {
		a.actions = append(a.actions, action)
		a.actions = append(a.actions, more...)
		return nil
	})
}

// Prompt replaces the reasoning prompt. The template receives the Perception
// fields and Actions.
func Prompt(text string) opts.Option[Agent] {
	return opts.Type[Agent](func(a *Agent) error {
		tmpl, err := template.New("prompt").Funcs(promptFuncs).Option("missingkey=error").Parse(text)
		if err != nil {
			return fmt.Errorf("prompt: %w", err)
		}
		a.prompt = tmpl
		return nil
	})
}

// State seeds one entry of the agent's state.
func State(key string, value any) opts.Option[Agent] {
	return opts.Type[Agent](func(a *Agent) error {
		a.state.Set(key, value)
		return nil
	})
}

// New creates an agent. It panics on invalid options, like a bad prompt template.
func New(options ...opts.Option[Agent]) *Agent {
	a := &Agent{
		prompt: defaultTemplate,
		state:  orderedmap.New[string, any](),
		clock:  time.Now,
	}
	stdx.Must0(opts.Apply(a, options))
	if a.name == "" {
		panic("agent: name is required")
	}
	a.logger = slogx.Component(a.logger, "agent").With(slogx.Agent(a.name))
	return a
}

func (a *Agent) Name() string      { return a.name }
func (a *Agent) Role() string      { return a.role }
func (a *Agent) Objective() string { return a.objective }

// Set stores a state entry. New keys are appended after existing ones.
func (a *Agent) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Set(key, value)
}

func (a *Agent) Get(key string) (any, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Get(key)
}

// Facts returns the agent's state in insertion order.
func (a *Agent) Facts() []Fact {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.facts()
}

func (a *Agent) facts() []Fact {
	facts := make([]Fact, 0, a.state.Len())
	for pair := a.state.Oldest(); pair != nil; pair = pair.Next() {
		facts = append(facts, Fact{Key: pair.Key, Value: pair.Value})
	}
	return facts
}

// History returns every decision the agent acted on, oldest first.
func (a *Agent) History() []Decision {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.history)
}

// Deliver appends a message to the inbox. Agents are broker mailboxes.
func (a *Agent) Deliver(msg broker.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbox = append(a.inbox, msg)
}

// Inbox returns every message received so far.
func (a *Agent) Inbox() []broker.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.inbox)
}

// Unread returns the messages not yet seen by a completed step.
func (a *Agent) Unread() []broker.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.inbox[a.read:])
}

// Perceive snapshots the agent's state, the environment and unread messages.
func (a *Agent) Perceive(env Environment) Perception {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Perception{
		Agent:       a.name,
		Role:        a.role,
		Objective:   a.objective,
		State:       a.facts(),
		Environment: env.Facts(),
		Messages:    slices.Clone(a.inbox[a.read:]),
		Step:        len(a.history) + 1,
		seen:        len(a.inbox),
	}
}

// RenderPrompt renders the reasoning prompt for p.
func (a *Agent) RenderPrompt(p Perception) (string, error) {
	var buf strings.Builder
	if err := a.prompt.Execute(&buf, promptData{Perception: p, Actions: a.actions}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}
	return buf.String(), nil
}

// Reason asks the gateway for a decision about p.
func (a *Agent) Reason(ctx context.Context, p Perception) (Decision, error) {
	if a.gateway == nil {
		return Decision{}, ErrNoGateway
	}
	prompt, err := a.RenderPrompt(p)
	if err != nil {
		return Decision{}, err
	}

	d, err := llm.Structured[Decision](ctx, a.gateway, prompt, a.requestOptions()...)
	if err != nil {
		return Decision{}, err
	}

	d.Action = strings.TrimSpace(d.Action)
	if d.Action == "" {
		return Decision{}, &llm.Error{Kind: llm.InvalidResponse, Op: "reason", Err: errors.New("empty action")}
	}
	if len(a.actions) > 0 {
		idx := slices.IndexFunc(a.actions, func(s string) bool { return strings.EqualFold(s, d.Action) })
		if idx < 0 {
			return Decision{}, &llm.Error{Kind: llm.InvalidResponse, Op: "reason", Err: fmt.Errorf("unknown action %q", d.Action)}
		}
		d.Action = a.actions[idx]
	}
	return d, nil
}

// Ask puts a free-form question to the agent's model and decodes the answer
// into T. The agent's persona travels as the system prompt.
func Ask[T any](ctx context.Context, a *Agent, prompt string) (T, error) {
	if a.gateway == nil {
		var zero T
		return zero, ErrNoGateway
	}
	options := append(a.requestOptions(), llm.System(a.persona()))
	return llm.Structured[T](ctx, a.gateway, prompt, options...)
}

func (a *Agent) persona() string {
	var b strings.Builder
	b.WriteString("You are " + a.name)
	if a.role != "" {
		b.WriteString(", " + a.role)
	}
	b.WriteString(".")
	if a.objective != "" {
		b.WriteString(" Objective: " + a.objective)
	}
	return b.String()
}

func (a *Agent) requestOptions() []opts.Option[llm.Request] {
	if a.temperature == nil {
		return nil
	}
	return []opts.Option[llm.Request]{llm.Temperature(*a.temperature)}
}

// Decide reasons about p and falls back to the policy when reasoning fails.
// A canceled context is returned as is.
func (a *Agent) Decide(ctx context.Context, p Perception) (Decision, error) {
	d, err := a.Reason(ctx, p)
	if err == nil {
		return d, nil
	}
	if a.policy == nil || ctx.Err() != nil || llm.IsKind(err, llm.Canceled) {
		return Decision{}, err
	}
	if !errors.Is(err, ErrNoGateway) {
		a.logger.WarnContext(ctx, "reasoning failed, using policy", slogx.Error(err))
	}

	d, perr := a.policy.Decide(p)
	if perr != nil {
		return Decision{}, errors.Join(err, fmt.Errorf("policy: %w", perr))
	}
	d.Fallback = true
	return d, nil
}

// Act records d in the history, marks the messages of p read and runs the
// actuator. Messages delivered after p was taken stay unread.
func (a *Agent) Act(ctx context.Context, p Perception, d Decision) (Decision, error) {
	a.mu.Lock()
	d.Step = len(a.history) + 1
	d.Timestamp = strfmt.DateTime(a.clock())
	a.history = append(a.history, d)
	a.read = max(a.read, min(p.seen, len(a.inbox)))
	a.mu.Unlock()

	a.logger.InfoContext(ctx, "acting",
		slog.Int("step", d.Step),
		slog.String("action", d.Action),
		slog.String("target", d.Target),
		slog.Bool("fallback", d.Fallback),
	)
	events.Emit(ctx, a.events, events.StepTaken{
		Agent:     a.name,
		Step:      d.Step,
		Action:    d.Action,
		Target:    d.Target,
		Rationale: d.Rationale,
		Fallback:  d.Fallback,
		Timestamp: d.Timestamp,
	})

	if a.actuator == nil {
		return d, nil
	}
	if err := a.actuator.Execute(ctx, a, d); err != nil {
		return d, fmt.Errorf("%s: execute %s: %w", a.name, d.Action, err)
	}
	return d, nil
}

// Step runs one full percept, reason, act cycle. When no decision can be made
// nothing is appended to the history.
func (a *Agent) Step(ctx context.Context, env Environment) (Decision, error) {
	p := a.Perceive(env)
	d, err := a.Decide(ctx, p)
	if err != nil {
		return Decision{}, fmt.Errorf("%s: %w", a.name, err)
	}
	return a.Act(ctx, p, d)
}

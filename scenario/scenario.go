package scenario

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/internal/narrate"
	"github.com/casualjim/agora/llm"
	"github.com/fogfish/opts"
)

// Env is what every scenario runs against.
type Env struct {
	// Gateway answers agent prompts. Ignored when Offline is set.
	Gateway llm.Gateway
	// Model names the model in the setup hint.
	Model string
	// Probe checks that the gateway can answer before a scenario starts.
	Probe func(context.Context) error
	// Offline runs every agent on its policy.
	Offline  bool
	Narrator *narrate.Narrator
	Events   events.Topic
	Logger   *slog.Logger
}

// Scenario is one demo driver.
type Scenario struct {
	Name  string
	Short string
	Run   func(context.Context, Env) error
}

// Catalog lists the scenarios in the order "all" runs them.
var Catalog = []Scenario{
	{Name: "perceive", Short: "A thermostat runs the percept, reason, act cycle", Run: Perception},
	{Name: "communicate", Short: "Agents exchange sync, queued and published messages", Run: Communication},
	{Name: "centralized", Short: "A coordinator assigns tasks to workers", Run: Centralized},
	{Name: "decentralized", Short: "Workers claim announced tasks on their own", Run: Decentralized},
	{Name: "negotiate", Short: "A vendor and buyers negotiate price and quantity", Run: Negotiation},
	{Name: "cooperate", Short: "Agents share a resource and work as a team", Run: Cooperation},
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, bool) {
	for _, s := range Catalog {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// All runs every scenario in catalog order.
func All(ctx context.Context, env Env) error {
	if !env.ready(ctx) {
		return nil
	}
	env.Probe = nil
	for _, s := range Catalog {
		if err := s.Run(ctx, env); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func (e Env) narrator() *narrate.Narrator {
	if e.Narrator == nil {
		return narrate.Discard()
	}
	return e.Narrator
}

// ready probes the gateway and prints the setup hint when it cannot answer.
func (e Env) ready(ctx context.Context) bool {
	if e.Offline || e.Probe == nil {
		return true
	}
	if err := e.Probe(ctx); err != nil {
		if ctx.Err() != nil || llm.IsKind(err, llm.Canceled) {
			return false
		}
		if e.Logger != nil {
			e.Logger.DebugContext(ctx, "model probe failed", slog.String("error", err.Error()))
		}
		e.narrator().Hint(e.Model, err)
		return false
	}
	return true
}

func (e Env) gateway() llm.Gateway {
	if e.Offline {
		return nil
	}
	return e.Gateway
}

// agent builds an agent wired to the environment's gateway, events and logger.
func (e Env) agent(options ...opts.Option[agent.Agent]) *agent.Agent {
	base := []opts.Option[agent.Agent]{agent.Events(e.Events)}
	if gw := e.gateway(); gw != nil {
		base = append(base, agent.Gateway(gw))
	}
	if e.Logger != nil {
		base = append(base, agent.Logger(e.Logger))
	}
	return agent.New(append(base, options...)...)
}

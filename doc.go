/*
Package agora is a toolkit for small multi-agent systems whose agents reason
through a local language model served by Ollama.

The toolkit is split into packages that build on each other:

  - llm: the Gateway interface, typed failures and structured JSON replies
  - llm/ollama, llm/openai: gateways for the native and the chat completions API
  - agent: the percept-reason-act loop with a deterministic policy fallback
  - broker: synchronous, queued and topic delivery between named agents
  - coordination: centralized and market based task allocation
  - negotiation: alternating offers scored by a two dimensional utility
  - cooperation: a shared resource and a team that delegates and votes
  - events: a stream of everything the above did, local or over NATS
  - scenario: runnable demonstrations of each of the above

# Basic Usage

An agent perceives its environment, asks the model for a decision and falls
back to its policy when the model cannot answer:

	thermostat := agent.New(
		agent.Name("thermostat"),
		agent.Role("climate controller"),
		agent.Objective("keep the room between 19 and 21 degrees"),
		agent.Gateway(ollama.New(ollama.Model("llama3.2"))),
		agent.Actions("heat", "cool", "hold"),
		agent.WithPolicy(agent.Hysteresis{Variable: "temperature", Low: 19, High: 21, Below: "heat", Above: "cool"}),
	)

	decision, err := thermostat.Step(ctx, agent.Environment{"temperature": 17.5})

Agents talk through a broker:

	b := broker.New()
	_ = b.Register("alice", alice)
	_ = b.Register("bob", bob)

	_, err := b.SendSync(ctx, "alice", "bob", "ready?")
	b.SendAsync(ctx, "alice", "bob", "report at noon")
	delivered, err := b.ProcessQueue(ctx, 10)

Two parties negotiate a price and a quantity:

	s, err := negotiation.NewSession(vendor, buyer, negotiation.MaxRounds(3))
	if _, err := s.Open(ctx, 140, 50); err != nil {
		return err
	}
	state, err := s.Run(ctx)

# Running

The agora command runs every scenario. Use --offline to run them on the
deterministic policies alone, and --events nats together with agora watch to
follow a run from another terminal.
*/
package agora

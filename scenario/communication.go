package scenario

import (
	"context"
	"fmt"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/fogfish/opts"
)

// Communication shows the three delivery modes of the broker, then lets every
// agent answer its inbox.
func Communication(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Communication: sync, async and publish/subscribe")
	if !env.ready(ctx) {
		return nil
	}

	brokerOpts := []opts.Option[broker.Broker]{broker.Events(env.Events)}
	if env.Logger != nil {
		brokerOpts = append(brokerOpts, broker.Logger(env.Logger))
	}
	b := broker.New(brokerOpts...)

	replier := agent.PolicyFunc(func(p agent.Perception) (agent.Decision, error) {
		if len(p.Messages) == 0 {
			return agent.Decision{Action: "ignore", Rationale: "nothing to answer"}, nil
		}
		last := p.Messages[len(p.Messages)-1]
		return agent.Decision{Action: "reply", Target: last.Sender, Rationale: fmt.Sprintf("%d unread messages", len(p.Messages))}, nil
	})
	reply := agent.ActuatorFunc(func(ctx context.Context, a *agent.Agent, d agent.Decision) error {
		if d.Action != "reply" || d.Target == "" {
			return nil
		}
		if _, err := b.SendSync(ctx, a.Name(), d.Target, "thanks, noted"); err != nil {
			n.Warn("%s could not reply to %s: %v", a.Name(), d.Target, err)
		}
		return nil
	})

	roles := map[string]string{
		"alice": "a project manager",
		"bob":   "a backend developer",
		"carol": "an operations engineer",
	}
	var agents []*agent.Agent
	for _, name := range []string{"alice", "bob", "carol"} {
		a := env.agent(
			agent.Name(name),
			agent.Role(roles[name]),
			agent.Objective("keep teammates informed"),
			agent.Actions("reply", "ignore"),
			agent.WithPolicy(replier),
			agent.WithActuator(reply),
		)
		if err := b.Register(name, a); err != nil {
			return err
		}
		agents = append(agents, a)
	}

	n.Section("synchronous")
	msg, err := b.SendSync(ctx, "alice", "bob", "can you review the release notes?")
	if err != nil {
		return err
	}
	n.Message(msg)

	n.Section("asynchronous")
	for _, content := range []string{"deploy window opens at 14:00", "database backup done", "on-call handover at 18:00"} {
		n.Message(b.SendAsync(ctx, "carol", "alice", content))
	}
	n.Info("queued: %d", b.Pending())
	processed, err := b.ProcessQueue(ctx, 2)
	if err != nil {
		return err
	}
	n.Info("processed %d, still queued: %d", len(processed), b.Pending())
	if _, err := b.Drain(ctx); err != nil {
		return err
	}
	n.Info("drained, still queued: %d", b.Pending())

	n.Section("publish/subscribe")
	for _, a := range agents[1:] {
		if _, err := b.Subscribe("alerts", func(_ context.Context, m broker.Message) error {
			a.Deliver(m)
			return nil
		}); err != nil {
			return err
		}
	}
	msg, err = b.Publish(ctx, "alice", "alerts", "release 1.4 is frozen")
	if err != nil {
		return err
	}
	n.Message(msg)
	n.Info("delivered to %d subscribers", b.Subscribers("alerts"))

	n.Section("every agent reads its inbox")
	for _, a := range agents {
		d, err := a.Step(ctx, agent.Environment{"unread": len(a.Unread())})
		if err != nil {
			return err
		}
		n.Decision(a.Name(), d)
	}

	log := b.Log()
	counts := map[broker.Mode]int{}
	for _, m := range log {
		counts[m.Mode]++
	}
	n.Summary(fmt.Sprintf("## Broker log\n\n%d messages: %d sync, %d async, %d published.\n",
		len(log), counts[broker.Sync], counts[broker.Async], counts[broker.PubSub]))
	return nil
}

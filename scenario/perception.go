package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/casualjim/agora/agent"
)

// Perception runs a thermostat through five readings. Heating and cooling
// move the simulated room temperature so each step perceives the previous
// action's effect.
func Perception(ctx context.Context, env Env) error {
	n := env.narrator()
	n.Title("Perception: the percept, reason, act cycle")
	if !env.ready(ctx) {
		return nil
	}

	room := 17.0
	drift := []float64{0, 1.0, 2.5, 1.5, -2.0}
	effect := map[string]float64{"heat": 1.5, "cool": -1.5}

	thermo := env.agent(
		agent.Name("thermostat"),
		agent.Role("a smart thermostat in a living room"),
		agent.Objective("keep the temperature between 19 and 23 degrees"),
		agent.State("mode", "idle"),
		agent.Actions("heat", "cool", "hold"),
		agent.Temperature(0.2),
		agent.WithPolicy(agent.Hysteresis{Variable: "temperature", Low: 19, High: 23, Below: "heat", Above: "cool"}),
		agent.WithActuator(agent.ActuatorFunc(func(_ context.Context, a *agent.Agent, d agent.Decision) error {
			room += effect[d.Action]
			a.Set("mode", d.Action)
			return nil
		})),
	)

	for i, delta := range drift {
		room += delta
		n.Section(fmt.Sprintf("step %d: the room is at %.1f degrees", i+1, room))
		d, err := thermo.Step(ctx, agent.Environment{"temperature": room, "time": fmt.Sprintf("%02d:00", 8+i)})
		if err != nil {
			return err
		}
		n.Decision(thermo.Name(), d)
		n.Dump("state", thermo.Facts())
	}

	var md strings.Builder
	md.WriteString("## Thermostat history\n\n| step | action | by |\n|---|---|---|\n")
	for _, d := range thermo.History() {
		by := "model"
		if d.Fallback {
			by = "policy"
		}
		fmt.Fprintf(&md, "| %d | %s | %s |\n", d.Step, d.Action, by)
	}
	fmt.Fprintf(&md, "\nFinal temperature: %.1f degrees.\n", room)
	n.Summary(md.String())
	return nil
}

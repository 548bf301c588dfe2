package narrate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestDecision(t *testing.T) {
	var buf strings.Builder
	n := New(&buf, Markdown(false))

	n.Decision("thermo", agent.Decision{Action: "heat", Target: "room", Rationale: "too cold", Fallback: true})

	out := buf.String()
	assert.Contains(t, out, color.MagentaString("thermo")+": "+color.GreenString("heat room"))
	assert.Contains(t, out, "(policy)")
	assert.Contains(t, out, "  too cold\n")
}

func TestMessage(t *testing.T) {
	var buf strings.Builder
	n := New(&buf, Markdown(false))
	n.Message(broker.Message{Mode: broker.PubSub, Sender: "a", Topic: "news", Content: "hi"})
	assert.Contains(t, buf.String(), "a -> #news: hi")
}

func TestHint(t *testing.T) {
	var buf strings.Builder
	n := New(&buf, Markdown(false))
	n.Hint("llama3.2", errors.New("connection refused"))

	out := buf.String()
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "ollama pull llama3.2")
}

func TestSummary(t *testing.T) {
	var plain strings.Builder
	New(&plain, Markdown(false)).Summary("## Result\n\n- agreement")
	assert.Contains(t, plain.String(), "## Result")

	var rendered strings.Builder
	New(&rendered).Summary("## Result\n\n- agreement")
	assert.Contains(t, rendered.String(), "Result")
	assert.Contains(t, rendered.String(), "agreement")
}

func TestDumpOnlyWhenVerbose(t *testing.T) {
	type state struct{ Load int }

	var quiet strings.Builder
	New(&quiet, Markdown(false)).Dump("worker", state{Load: 3})
	assert.Empty(t, quiet.String())

	var loud strings.Builder
	New(&loud, Markdown(false), Verbose(true)).Dump("worker", state{Load: 3})
	assert.Contains(t, loud.String(), "Load")
}

func TestOnEvent(t *testing.T) {
	ctx := context.Background()
	var buf strings.Builder
	n := New(&buf, Markdown(false))

	n.OnEvent(ctx, events.MessageLogged{Mode: "sync", Sender: "a", Recipient: "b", Content: "ping"})
	n.OnEvent(ctx, events.NegotiationClosed{Session: "neg-1", State: "agreement", Rounds: 2})
	n.OnEvent(ctx, events.ResourceChanged{Resource: "printer", Agent: "bob", Action: "acquire", State: "busy"})
	n.OnError(ctx, errors.New("lost"))

	out := buf.String()
	assert.Contains(t, out, "a -> b: ping")
	assert.Contains(t, out, "after 2 rounds")
	assert.Contains(t, out, "bob acquire printer: "+color.RedString("denied"))
	assert.Contains(t, out, "Error: lost")
}

// Package narrate prints what happens in a scenario for a human watching the
// terminal. It is separate from logging: logs go to stderr through slog, the
// narrative goes to whatever writer the scenario was given.
package narrate

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/casualjim/agora/agent"
	"github.com/casualjim/agora/broker"
	"github.com/casualjim/agora/events"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/k0kubun/pp/v3"
)

// SetupHint is printed when no model can be reached.
const SetupHint = "Start Ollama with `ollama serve` and pull the model with `ollama pull %s`, or run with --offline."

type Narrator struct {
	mu       sync.Mutex
	w        io.Writer
	verbose  bool
	markdown bool
	glam     *glamour.TermRenderer
}

type Option func(*Narrator)

// Verbose enables state dumps.
func Verbose(v bool) Option { return func(n *Narrator) { n.verbose = v } }

// Markdown renders summaries through glamour instead of printing the source.
func Markdown(v bool) Option { return func(n *Narrator) { n.markdown = v } }

func New(w io.Writer, options ...Option) *Narrator {
	n := &Narrator{w: w, markdown: true}
	for _, o := range options {
		o(n)
	}
	if n.markdown {
		glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			n.glam = glam
		}
	}
	return n
}

// Discard narrates into nothing.
func Discard() *Narrator { return New(io.Discard, Markdown(false)) }

func (n *Narrator) printf(format string, args ...any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, format, args...)
}

// Title opens a scenario.
func (n *Narrator) Title(title string) {
	rule := strings.Repeat("=", len(title))
	n.printf("\n%s\n%s\n", color.New(color.Bold, color.FgCyan).Sprint(title), rule)
}

// Section opens a part of a scenario.
func (n *Narrator) Section(title string) {
	n.printf("\n%s\n", color.CyanString("-- "+title))
}

func (n *Narrator) Info(format string, args ...any) {
	n.printf(format+"\n", args...)
}

// Warn reports a degraded but recoverable situation.
func (n *Narrator) Warn(format string, args ...any) {
	n.printf("%s %s\n", color.YellowString("!"), fmt.Sprintf(format, args...))
}

// Hint explains how to make the model reachable.
func (n *Narrator) Hint(model string, err error) {
	n.Warn("cannot reach the language model: %v", err)
	n.printf("  %s\n", fmt.Sprintf(SetupHint, model))
}

// Decision narrates one agent step.
func (n *Narrator) Decision(who string, d agent.Decision) {
	suffix := ""
	if d.Fallback {
		suffix = color.YellowString(" (policy)")
	}
	n.printf("%s: %s%s\n", color.MagentaString(who), color.GreenString(d.String()), suffix)
	if d.Rationale != "" {
		n.printf("  %s\n", d.Rationale)
	}
}

// Message narrates one broker message.
func (n *Narrator) Message(msg broker.Message) {
	n.printf("%s %s\n", color.BlueString("["+msg.Mode.String()+"]"), strings.TrimPrefix(msg.String(), "["+msg.Mode.String()+"] "))
}

// Summary renders markdown, through glamour when enabled.
func (n *Narrator) Summary(md string) {
	if n.glam != nil {
		if out, err := n.glam.Render(md); err == nil {
			n.printf("%s", out)
			return
		}
	}
	n.printf("\n%s\n", md)
}

// Dump pretty prints v in verbose mode.
func (n *Narrator) Dump(label string, v any) {
	if !n.verbose {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "%s ", color.HiBlackString(label+":"))
	pp.Fprintln(n.w, v)
}

// OnEvent renders events arriving from a stream, for watching a scenario
// running in another process.
func (n *Narrator) OnEvent(_ context.Context, e events.Event) {
	switch ev := e.(type) {
	case events.StepTaken:
		n.Decision(ev.Agent, agent.Decision{Action: ev.Action, Target: ev.Target, Rationale: ev.Rationale, Fallback: ev.Fallback})
	case events.MessageLogged:
		to := ev.Recipient
		if ev.Topic != "" {
			to = "#" + ev.Topic
		}
		n.printf("%s %s -> %s: %s\n", color.BlueString("["+ev.Mode+"]"), ev.Sender, to, ev.Content)
	case events.OfferMade:
		n.printf("offer #%d by %s: %.2f x %g, utility %.2f, %s\n", ev.Number, color.MagentaString(ev.Bidder), ev.Price, ev.Quantity, ev.Utility, ev.Response)
	case events.NegotiationClosed:
		n.printf("negotiation %s closed: %s after %d rounds\n", ev.Session, color.GreenString(ev.State), ev.Rounds)
	case events.TaskAssigned:
		n.printf("%s %s -> %s (%s)\n", ev.Strategy, ev.Task, color.MagentaString(ev.Worker), ev.Reason)
	case events.ResourceChanged:
		verdict := color.GreenString("granted")
		if !ev.Granted {
			verdict = color.RedString("denied")
		}
		n.printf("%s %s %s: %s, now %s\n", ev.Agent, ev.Action, ev.Resource, verdict, ev.State)
	case events.VoteCast:
		vote := color.GreenString("yes")
		if !ev.Approve {
			vote = color.RedString("no")
		}
		n.printf("%s votes %s on %q\n", color.MagentaString(ev.Voter), vote, ev.Proposal)
	default:
		n.printf("%s\n", e.Kind())
	}
}

func (n *Narrator) OnError(_ context.Context, err error) {
	n.printf("Error: %v\n", err)
}

// Package agent implements the percept, reason, act cycle shared by every
// participant of a scenario.
//
// One call to Step runs the whole cycle:
//
//	PERCEIVE  snapshot the agent's own state, the environment and unread messages
//	REASON    render a prompt and ask the gateway for a structured Decision
//	DECIDE    fall back to the configured Policy when reasoning fails
//	ACT       append the decision to the history and hand it to the Actuator
//
// Design decisions:
//   - The model must answer with a JSON Decision. A reply that does not decode,
//     or names an action the agent does not know, is an llm.InvalidResponse
//     error and never an action.
//   - State is an ordered map so prompts render the same way on every run.
//   - An agent without a gateway reasons with its policy only, which is how the
//     scenarios run offline.
//   - Step blocks until the gateway answers; concurrent Steps on one agent are
//     serialized by its lock around state, history and inbox.
package agent

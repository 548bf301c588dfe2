// Package llm defines the gateway every reasoning component uses to reach a
// language model, and the typed errors and structured decoding built on top
// of it.
//
// Design decisions:
//   - One blocking call per decision: no retries, no backoff, no streaming
//   - Typed failures: callers branch on Kind (ConnectionFailed, Timeout,
//     InvalidResponse, Status) instead of inspecting message text
//   - Structured output: decisions are requested with a JSON schema derived
//     from the Go type that receives them, and decoded into that type
//   - Backend agnostic: the ollama and openai subpackages both satisfy Gateway
//
// Example usage:
//
//	gw := ollama.New(ollama.Model("llama3.2"))
//	verdict, err := llm.Structured[Verdict](ctx, gw, prompt, llm.Temperature(0.2))
//	if llm.IsKind(err, llm.ConnectionFailed) {
//	    // print the setup hint and give up
//	}
package llm

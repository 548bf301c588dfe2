// Package ollama implements llm.Gateway against a local Ollama server.
//
// It speaks the native REST API:
//
//   - POST /api/generate with {model, prompt, stream:false, options:{temperature}}
//     and, for structured decisions, a "format" JSON schema; the reply is {response}
//   - GET /api/tags to list installed models; the reply is {models:[{name}]}
//
// Every call is one blocking HTTP request bounded by the client timeout.
// Failures are reported as *llm.Error so callers can tell an unreachable
// server from a model that answered with garbage.
//
// Example:
//
//	client := ollama.New(
//	    ollama.Host("http://localhost:11434"),
//	    ollama.Model("llama3.2"),
//	    ollama.Timeout(30*time.Second),
//	)
//	text, err := client.Generate(ctx, "Name one prime number", llm.Temperature(0))
package ollama

/*
Package openai implements llm.Gateway over an OpenAI compatible chat
completion endpoint. Ollama serves one under /v1, so the same local models
can be reached through either wire protocol; hosted endpoints work as well
when an API key is supplied.

# Design Decisions

  - Single Shot: one non-streaming completion per call, retries disabled
  - Structured Output: schemas travel as a strict json_schema response format
  - Shared Errors: API and transport failures map onto llm.Error kinds

# Usage

	gw := openai.New(
	    openai.BaseURL("http://localhost:11434/v1/"),
	    openai.Model("llama3.2"),
	)
	text, err := gw.Generate(ctx, "Summarise the auction", llm.Temperature(0.3))
*/
package openai

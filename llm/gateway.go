package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
)

// Gateway sends a single prompt to a language model and returns its text.
type Gateway interface {
	Generate(ctx context.Context, prompt string, options ...opts.Option[Request]) (string, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, prompt string, options ...opts.Option[Request]) (string, error)

func (fn GatewayFunc) Generate(ctx context.Context, prompt string, options ...opts.Option[Request]) (string, error) {
	return fn(ctx, prompt, options...)
}

// Request is the backend independent description of one generation call.
type Request struct {
	Prompt string
	// System is an optional system prompt.
	System string
	// Temperature overrides the backend default when set.
	Temperature *float64
	// Schema constrains the output to a JSON document matching it.
	Schema *jsonschema.Schema
}

var (
	System = opts.ForName[Request, string]("System")
	Format = opts.ForName[Request, *jsonschema.Schema]("Schema")
)

// Temperature sets the sampling temperature for a single call.
func Temperature(t float64) opts.Option[Request] {
	return opts.Type[Request](func(r *Request) error {
		if t < 0 {
			return errors.New("temperature must not be negative")
		}
		r.Temperature = &t
		return nil
	})
}

// NewRequest applies the options to a request for prompt.
func NewRequest(prompt string, options ...opts.Option[Request]) (Request, error) {
	if strings.TrimSpace(prompt) == "" {
		return Request{}, &Error{Kind: InvalidRequest, Op: "generate", Err: errors.New("prompt is required")}
	}
	req := Request{Prompt: prompt}
	if err := opts.Apply(&req, options); err != nil {
		return Request{}, &Error{Kind: InvalidRequest, Op: "generate", Err: err}
	}
	return req, nil
}

// TemperatureOr returns the requested temperature or the fallback.
func (r Request) TemperatureOr(fallback float64) float64 {
	if r.Temperature == nil {
		return fallback
	}
	return *r.Temperature
}

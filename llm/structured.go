package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/casualjim/agora/pkg/stdx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/tidwall/gjson"
)

// Structured outputs use a subset of JSON schema.
// These flags keep generated schemas inside that subset.
var reflector = jsonschema.Reflector{
	AllowAdditionalProperties: false,
	DoNotReference:            true,
}

// Schema derives the output schema for T.
func Schema[T any]() *jsonschema.Schema {
	var v T
	return reflector.Reflect(v)
}

// Structured asks gw for a JSON document shaped like T and decodes it.
// The model never gets to answer in prose: a reply that is not a valid T is an
// InvalidResponse error.
func Structured[T any](ctx context.Context, gw Gateway, prompt string, options ...opts.Option[Request]) (T, error) {
	schema := Schema[T]()
	options = append(options, Format(schema))
	text, err := gw.Generate(ctx, prompt, options...)
	if err != nil {
		return stdx.Zero[T](), err
	}
	return Decode[T](text, schema.Required...)
}

// Decode parses text into T after checking that every required field is present.
// Markdown code fences and chatter around the JSON object are tolerated.
func Decode[T any](text string, required ...string) (T, error) {
	raw := extractObject(text)
	if raw == "" || !gjson.Valid(raw) {
		return stdx.Zero[T](), &Error{Kind: InvalidResponse, Op: "decode", Err: fmt.Errorf("no JSON object in %q", truncate(text, 80))}
	}

	var missing error
	for _, field := range required {
		if !gjson.Get(raw, gjson.Escape(field)).Exists() {
			missing = errors.Join(missing, fmt.Errorf("missing field %q", field))
		}
	}
	if missing != nil {
		return stdx.Zero[T](), &Error{Kind: InvalidResponse, Op: "decode", Err: missing}
	}

	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return stdx.Zero[T](), &Error{Kind: InvalidResponse, Op: "decode", Err: err}
	}
	return v, nil
}

func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

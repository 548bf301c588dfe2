package openai

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/casualjim/agora/llm"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/fogfish/opts"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultBaseURL is Ollama's OpenAI compatible endpoint.
	DefaultBaseURL = "http://localhost:11434/v1/"
	DefaultModel   = "llama3.2"
)

var _ llm.Gateway = (*Gateway)(nil)

type Gateway struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	timeout     time.Duration
	extra       []option.RequestOption
	logger      *slog.Logger

	client *openai.Client
}

var (
	BaseURL        = opts.ForName[Gateway, string]("baseURL")
	APIKey         = opts.ForName[Gateway, string]("apiKey")
	Model          = opts.ForName[Gateway, string]("model")
	Temperature    = opts.ForName[Gateway, float64]("temperature")
	Timeout        = opts.ForName[Gateway, time.Duration]("timeout")
	RequestOptions = opts.ForName[Gateway, []option.RequestOption]("extra")
	Logger         = opts.ForName[Gateway, *slog.Logger]("logger")
)

// New creates a gateway. Ollama ignores the API key but the client requires one,
// so a placeholder is used when none is configured.
func New(options ...opts.Option[Gateway]) *Gateway {
	g := &Gateway{
		baseURL:     DefaultBaseURL,
		apiKey:      "ollama",
		model:       DefaultModel,
		temperature: 0.7,
		timeout:     60 * time.Second,
	}
	if err := opts.Apply(g, options); err != nil {
		panic(err)
	}

	requestOptions := []option.RequestOption{
		option.WithBaseURL(g.baseURL),
		option.WithAPIKey(g.apiKey),
		option.WithMaxRetries(0),
	}
	g.client = openai.NewClient(append(requestOptions, g.extra...)...)
	g.logger = slogx.Component(g.logger, "openai")
	return g
}

func (g *Gateway) Model() string {
	return g.model
}

func (g *Gateway) Generate(ctx context.Context, prompt string, options ...opts.Option[llm.Request]) (string, error) {
	req, err := llm.NewRequest(prompt, options...)
	if err != nil {
		return "", err
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	chat, err := g.client.Chat.Completions.New(ctx, g.buildParams(req))
	if err != nil {
		err = mapError(err)
		g.logger.Warn("completion failed", slog.String("model", g.model), slogx.Error(err))
		return "", err
	}
	if len(chat.Choices) == 0 {
		return "", &llm.Error{Kind: llm.InvalidResponse, Op: "generate", Err: errors.New("completion has no choices")}
	}
	return chat.Choices[0].Message.Content, nil
}

func (g *Gateway) buildParams(req llm.Request) openai.ChatCompletionNewParams {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(msgs),
		Model:       openai.F(g.model),
		N:           openai.Int(1),
		Temperature: openai.Float(req.TemperatureOr(g.temperature)),
	}
	if req.Schema != nil {
		schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   openai.F("decision"),
			Schema: openai.F[interface{}](req.Schema),
			Strict: openai.Bool(strictSchema(req.Schema)),
		}
		params.ResponseFormat = openai.F[openai.ChatCompletionNewParamsResponseFormatUnion](
			openai.ResponseFormatJSONSchemaParam{
				Type:       openai.F(openai.ResponseFormatJSONSchemaTypeJSONSchema),
				JSONSchema: openai.F(schemaParam),
			},
		)
	}
	return params
}

// strictSchema reports whether s can be sent in strict mode, which needs
// every object property listed as required.
func strictSchema(s *jsonschema.Schema) bool {
	if s == nil {
		return true
	}
	if s.Properties != nil {
		for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
			if !slices.Contains(s.Required, pair.Key) || !strictSchema(pair.Value) {
				return false
			}
		}
	}
	return strictSchema(s.Items)
}

func mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &llm.Error{Kind: llm.Status, Op: "generate", Code: apiErr.StatusCode, Err: err}
	}
	return llm.Classify("generate", err)
}

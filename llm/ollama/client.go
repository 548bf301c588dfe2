package ollama

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/casualjim/agora/llm"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/fogfish/opts"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "llama3.2"

	generatePath = "/api/generate"
	tagsPath     = "/api/tags"
)

var _ llm.Gateway = (*Client)(nil)

type Client struct {
	host        string
	model       string
	temperature float64
	timeout     time.Duration
	httpClient  *http.Client
	logger      *slog.Logger
}

var (
	Host        = opts.ForName[Client, string]("host")
	Model       = opts.ForName[Client, string]("model")
	Temperature = opts.ForName[Client, float64]("temperature")
	Timeout     = opts.ForName[Client, time.Duration]("timeout")
	HTTPClient  = opts.ForName[Client, *http.Client]("httpClient")
	Logger      = opts.ForName[Client, *slog.Logger]("logger")
)

// New creates a client. Without options it talks to llama3.2 on localhost
// with a 60 second timeout.
func New(options ...opts.Option[Client]) *Client {
	c := &Client{
		host:        DefaultHost,
		model:       DefaultModel,
		temperature: 0.7,
		timeout:     60 * time.Second,
	}
	if err := opts.Apply(c, options); err != nil {
		panic(err)
	}
	c.host = strings.TrimRight(c.host, "/")
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	c.logger = slogx.Component(c.logger, "ollama")
	return c
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Host() string {
	return c.host
}

// Generate sends prompt to /api/generate and returns the model's text.
func (c *Client) Generate(ctx context.Context, prompt string, options ...opts.Option[llm.Request]) (string, error) {
	req, err := llm.NewRequest(prompt, options...)
	if err != nil {
		return "", err
	}

	body, err := c.buildGenerateBody(req)
	if err != nil {
		return "", &llm.Error{Kind: llm.InvalidRequest, Op: "generate", Err: err}
	}

	started := time.Now()
	data, err := c.do(ctx, http.MethodPost, generatePath, body)
	if err != nil {
		c.logger.Warn("generation failed", slog.String("model", c.model), slogx.Error(err))
		return "", err
	}

	response := gjson.GetBytes(data, "response")
	if !response.Exists() || response.Type != gjson.String {
		return "", &llm.Error{Kind: llm.InvalidResponse, Op: "generate", Err: errors.New("reply has no response text")}
	}

	c.logger.Debug("generation complete",
		slog.String("model", c.model),
		slog.Duration("elapsed", time.Since(started)),
		slog.Int("chars", len(response.String())),
	)
	return response.String(), nil
}

func (c *Client) buildGenerateBody(req llm.Request) ([]byte, error) {
	body := []byte(`{"stream":false}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", c.model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "prompt", req.Prompt); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "options.temperature", req.TemperatureOr(c.temperature)); err != nil {
		return nil, err
	}
	if req.System != "" {
		if body, err = sjson.SetBytes(body, "system", req.System); err != nil {
			return nil, err
		}
	}
	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode output schema: %w", err)
		}
		if body, err = sjson.SetRawBytes(body, "format", schema); err != nil {
			return nil, err
		}
	}
	return body, nil
}

// Models lists the names of the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, tagsPath, nil)
	if err != nil {
		return nil, err
	}
	models := gjson.GetBytes(data, "models")
	if !models.IsArray() {
		return nil, &llm.Error{Kind: llm.InvalidResponse, Op: "tags", Err: errors.New("reply has no models list")}
	}
	names := make([]string, 0, len(models.Array()))
	for _, name := range gjson.GetBytes(data, "models.#.name").Array() {
		names = append(names, name.String())
	}
	return names, nil
}

// Available reports whether the server answers and has the configured model.
// A server without the model returns an error naming the model to pull.
func (c *Client) Available(ctx context.Context) error {
	names, err := c.Models(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == c.model || strings.TrimSuffix(name, ":latest") == c.model {
			return nil
		}
	}
	return &llm.Error{Kind: llm.Status, Op: "tags", Code: http.StatusNotFound, Err: fmt.Errorf("model %q is not installed, run `ollama pull %s`", c.model, c.model)}
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	op := strings.TrimPrefix(path, "/api/")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, reader)
	if err != nil {
		return nil, &llm.Error{Kind: llm.InvalidRequest, Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, llm.Classify(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Classify(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "error").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &llm.Error{Kind: llm.Status, Op: op, Code: resp.StatusCode, Err: errors.New(msg)}
	}
	if !gjson.ValidBytes(data) {
		return nil, &llm.Error{Kind: llm.InvalidResponse, Op: op, Err: errors.New("reply is not JSON")}
	}
	return data, nil
}

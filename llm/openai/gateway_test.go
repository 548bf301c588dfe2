package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/casualjim/agora/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const completion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "llama3.2",
  "choices": [{"index": 0, "finish_reason": "stop", "logprobs": null,
    "message": {"role": "assistant", "content": "{\"worker\":\"alpha\"}", "refusal": null}}],
  "usage": {"prompt_tokens": 5, "completion_tokens": 5, "total_tokens": 10}
}`

func TestGenerate(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion)
	}))
	t.Cleanup(srv.Close)

	gw := New(BaseURL(srv.URL+"/v1/"), Model("llama3.2"))
	type choice struct {
		Worker string `json:"worker"`
	}
	got, err := llm.Structured[choice](context.Background(), gw, "pick a worker", llm.System("you coordinate"), llm.Temperature(0.1))
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Worker)

	assert.Equal(t, "llama3.2", gjson.GetBytes(body, "model").String())
	assert.InDelta(t, 0.1, gjson.GetBytes(body, "temperature").Float(), 1e-9)
	assert.Equal(t, "system", gjson.GetBytes(body, "messages.0.role").String())
	assert.Equal(t, "user", gjson.GetBytes(body, "messages.1.role").String())
	assert.Contains(t, gjson.GetBytes(body, "messages.1.content").Raw, "pick a worker")
	assert.Equal(t, "json_schema", gjson.GetBytes(body, "response_format.type").String())
	assert.True(t, gjson.GetBytes(body, "response_format.json_schema.strict").Bool())
}

func TestOptionalPropertiesDisableStrictMode(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completion)
	}))
	t.Cleanup(srv.Close)

	type choice struct {
		Worker string `json:"worker"`
		Reason string `json:"reason,omitempty"`
	}
	got, err := llm.Structured[choice](context.Background(), New(BaseURL(srv.URL+"/v1/")), "pick a worker")
	require.NoError(t, err)
	assert.Equal(t, "alpha", got.Worker)

	format := gjson.GetBytes(body, "response_format.json_schema")
	require.True(t, format.Exists())
	assert.False(t, format.Get("strict").Bool())
	assert.Equal(t, []string{"worker"}, stringArray(format.Get("schema.required")))
}

func TestStrictSchema(t *testing.T) {
	type nested struct {
		Note string `json:"note,omitempty"`
	}
	type outer struct {
		Name  string `json:"name"`
		Inner nested `json:"inner"`
	}
	type flat struct {
		Name string `json:"name"`
		Age  int    `json:"age"`
	}
	assert.True(t, strictSchema(llm.Schema[flat]()))
	assert.False(t, strictSchema(llm.Schema[outer]()))
	assert.True(t, strictSchema(nil))
}

func stringArray(r gjson.Result) []string {
	var out []string
	for _, v := range r.Array() {
		out = append(out, v.String())
	}
	return out
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"model not found","type":"not_found"}}`)
	}))
	t.Cleanup(srv.Close)

	_, err := New(BaseURL(srv.URL + "/v1/")).Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, llm.IsKind(err, llm.Status), "got %v", err)
}

func TestGenerateUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(BaseURL(url + "/v1/")).Generate(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, llm.Unreachable(err), "got %v", err)
}

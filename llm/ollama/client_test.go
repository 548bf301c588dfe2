package ollama

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/agora/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type recordingServer struct {
	mu      sync.Mutex
	bodies  [][]byte
	handler http.HandlerFunc
	*httptest.Server
}

func newServer(t *testing.T, handler http.HandlerFunc) *recordingServer {
	t.Helper()
	rs := &recordingServer{handler: handler}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rs.mu.Lock()
		rs.bodies = append(rs.bodies, body)
		rs.mu.Unlock()
		rs.handler(w, r)
	}))
	t.Cleanup(rs.Close)
	return rs
}

func (rs *recordingServer) lastBody() []byte {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if len(rs.bodies) == 0 {
		return nil
	}
	return rs.bodies[len(rs.bodies)-1]
}

func TestGenerate(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, generatePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"model":"llama3.2","response":"Seven.","done":true}`)
	})

	client := New(Host(srv.URL+"/"), Model("llama3.2"))
	text, err := client.Generate(context.Background(), "Name a prime", llm.Temperature(0.2), llm.System("be brief"))
	require.NoError(t, err)
	assert.Equal(t, "Seven.", text)

	body := srv.lastBody()
	assert.Equal(t, "llama3.2", gjson.GetBytes(body, "model").String())
	assert.Equal(t, "Name a prime", gjson.GetBytes(body, "prompt").String())
	assert.False(t, gjson.GetBytes(body, "stream").Bool())
	assert.InDelta(t, 0.2, gjson.GetBytes(body, "options.temperature").Float(), 1e-9)
	assert.Equal(t, "be brief", gjson.GetBytes(body, "system").String())
	assert.False(t, gjson.GetBytes(body, "format").Exists())
}

func TestGenerateDefaultTemperature(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"ok"}`)
	})

	client := New(Host(srv.URL), Temperature(0.9))
	_, err := client.Generate(context.Background(), "hi")
	require.NoError(t, err)
	assert.InDelta(t, 0.9, gjson.GetBytes(srv.lastBody(), "options.temperature").Float(), 1e-9)
}

func TestGenerateStructured(t *testing.T) {
	type choice struct {
		Worker string `json:"worker"`
	}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"response":"{\"worker\":\"beta\"}"}`)
	})

	client := New(Host(srv.URL))
	got, err := llm.Structured[choice](context.Background(), client, "who?")
	require.NoError(t, err)
	assert.Equal(t, "beta", got.Worker)

	format := gjson.GetBytes(srv.lastBody(), "format")
	require.True(t, format.IsObject(), "schema must be sent as the format field")
	assert.Equal(t, "object", format.Get("type").String())
	assert.True(t, format.Get("properties.worker").Exists())
}

func TestGenerateErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := New(Host(url)).Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, llm.IsKind(err, llm.ConnectionFailed), "got %v", err)
		assert.True(t, llm.Unreachable(err))
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		})
		defer close(release)

		_, err := New(Host(srv.URL), Timeout(50*time.Millisecond)).Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, llm.IsKind(err, llm.Timeout), "got %v", err)
	})

	t.Run("status with message", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"model 'nope' not found"}`)
		})

		_, err := New(Host(srv.URL), Model("nope")).Generate(context.Background(), "hi")
		require.Error(t, err)
		assert.True(t, llm.IsKind(err, llm.Status))
		assert.ErrorContains(t, err, "model 'nope' not found")

		var le *llm.Error
		require.ErrorAs(t, err, &le)
		assert.Equal(t, http.StatusNotFound, le.Code)
	})

	t.Run("missing response field", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"done":true}`)
		})
		_, err := New(Host(srv.URL)).Generate(context.Background(), "hi")
		assert.True(t, llm.IsKind(err, llm.InvalidResponse))
	})

	t.Run("not json", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `<html>proxy error</html>`)
		})
		_, err := New(Host(srv.URL)).Generate(context.Background(), "hi")
		assert.True(t, llm.IsKind(err, llm.InvalidResponse))
	})

	t.Run("empty prompt never hits the server", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("server should not be called")
		})
		_, err := New(Host(srv.URL)).Generate(context.Background(), "")
		assert.True(t, llm.IsKind(err, llm.InvalidRequest))
	})
}

func TestModels(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, tagsPath, r.URL.Path)
		_, _ = io.WriteString(w, `{"models":[{"name":"llama3.2:latest"},{"name":"mistral:7b"}]}`)
	})

	client := New(Host(srv.URL), Model("llama3.2"))
	names, err := client.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"llama3.2:latest", "mistral:7b"}, names)

	assert.NoError(t, client.Available(context.Background()))

	missing := New(Host(srv.URL), Model("phi3"))
	err = missing.Available(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "ollama pull phi3")
	assert.False(t, llm.Unreachable(err))
}

func TestModelsMalformed(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"tags":[]}`)
	})
	_, err := New(Host(srv.URL)).Models(context.Background())
	assert.True(t, llm.IsKind(err, llm.InvalidResponse))
}

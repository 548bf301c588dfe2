package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput captures both zerolog and slog output during test execution
func captureOutput(fn func()) string {
	var buf bytes.Buffer

	oldZeroLogger := log
	oldSlogLogger := slog.Default()
	defer func() {
		log = oldZeroLogger
		slog.SetDefault(oldSlogLogger)
	}()

	output := zerolog.ConsoleWriter{
		Out:        &buf,
		NoColor:    true,
		TimeFormat: time.Stamp,
	}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelDebug}),
	))

	fn()
	return buf.String()
}

// clearEnv pins every variable the configuration reads, so a developer's
// shell or .env cannot leak into the tests.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OLLAMA_HOST", "AGORA_MODEL", "AGORA_TEMPERATURE", "AGORA_TIMEOUT",
		"AGORA_BACKEND", "AGORA_EVENTS", "NATS_URL", "AGORA_LOG_LEVEL", "AGORA_OFFLINE",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tagsServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRootRegistersEveryScenario(t *testing.T) {
	cmd := newRootCommand(&bytes.Buffer{})
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"perceive", "communicate", "centralized", "decentralized", "negotiate", "cooperate", "all", "models", "watch"} {
		assert.Contains(t, names, want)
	}
}

func TestScenarioOffline(t *testing.T) {
	clearEnv(t)
	var out string
	var err error
	logs := captureOutput(func() {
		out, err = execute(t, "negotiate", "--offline", "--plain", "--log-level", "debug")
	})
	require.NoError(t, err)
	assert.Contains(t, out, "| buyer | impasse | 3 | none |")
	assert.Contains(t, logs, "running")
	assert.Contains(t, logs, "command=negotiate")
}

func TestOfflineFromEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGORA_OFFLINE", "yes")
	out, err := execute(t, "perceive", "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "Final temperature: 20.0 degrees.")
}

func TestUnreachableServerPrintsHint(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	out, err := execute(t, "cooperate", "--plain", "--host", host, "--model", "qwen2.5")
	require.NoError(t, err)
	assert.Contains(t, out, "ollama pull qwen2.5")
}

func TestInvalidFlagsAreReported(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "perceive", "--backend", "carrier-pigeon", "--events", "smoke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGORA_BACKEND")
	assert.Contains(t, err.Error(), "AGORA_EVENTS")
}

func TestModels(t *testing.T) {
	clearEnv(t)
	srv := tagsServer(t, `{"models":[{"name":"llama3.2:latest"},{"name":"qwen2.5:7b"}]}`)

	out, err := execute(t, "models", "--host", srv.URL)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{"* llama3.2:latest", "  qwen2.5:7b"}, lines)
}

func TestModelsUnreachable(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	out, err := execute(t, "models", "--plain", "--host", host)
	require.NoError(t, err)
	assert.Contains(t, out, "ollama serve")
}

func TestWatchNeedsNATS(t *testing.T) {
	clearEnv(t)
	_, err := execute(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--events nats")
}

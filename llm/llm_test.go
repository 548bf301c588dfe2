package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"

	"github.com/fogfish/opts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	Accept bool   `json:"accept"`
	Reason string `json:"reason"`
}

func TestNewRequest(t *testing.T) {
	t.Run("applies options", func(t *testing.T) {
		req, err := NewRequest("hello", Temperature(0.3), System("be brief"), Format(Schema[verdict]()))
		require.NoError(t, err)
		assert.Equal(t, "hello", req.Prompt)
		assert.Equal(t, "be brief", req.System)
		assert.InDelta(t, 0.3, req.TemperatureOr(1), 1e-9)
		require.NotNil(t, req.Schema)
	})

	t.Run("temperature fallback", func(t *testing.T) {
		req, err := NewRequest("hello")
		require.NoError(t, err)
		assert.InDelta(t, 0.7, req.TemperatureOr(0.7), 1e-9)
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		_, err := NewRequest("   ")
		assert.True(t, IsKind(err, InvalidRequest))
	})

	t.Run("rejects negative temperature", func(t *testing.T) {
		_, err := NewRequest("hello", Temperature(-1))
		assert.True(t, IsKind(err, InvalidRequest))
	})
}

func TestSchema(t *testing.T) {
	schema := Schema[verdict]()
	require.NotNil(t, schema)
	assert.ElementsMatch(t, []string{"accept", "reason"}, schema.Required)
	_, ok := schema.Properties.Get("accept")
	assert.True(t, ok)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    verdict
		wantErr bool
	}{
		{name: "plain object", text: `{"accept":true,"reason":"capacity left"}`, want: verdict{Accept: true, Reason: "capacity left"}},
		{name: "fenced", text: "```json\n{\"accept\":false,\"reason\":\"busy\"}\n```", want: verdict{Reason: "busy"}},
		{name: "chatter around object", text: `Sure! {"accept":true,"reason":"ok"} Hope that helps.`, want: verdict{Accept: true, Reason: "ok"}},
		{name: "prose only", text: "I think I should accept the task.", wantErr: true},
		{name: "missing field", text: `{"accept":true}`, wantErr: true},
		{name: "wrong type", text: `{"accept":"maybe","reason":"?"}`, wantErr: true},
		{name: "broken json", text: `{"accept":true,"reason":}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[verdict](tt.text, "accept", "reason")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsKind(err, InvalidResponse), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStructured(t *testing.T) {
	var seen Request
	gw := GatewayFunc(func(ctx context.Context, prompt string, options ...opts.Option[Request]) (string, error) {
		req, err := NewRequest(prompt, options...)
		if err != nil {
			return "", err
		}
		seen = req
		return `{"accept":true,"reason":"fits"}`, nil
	})

	got, err := Structured[verdict](context.Background(), gw, "take task?", Temperature(0.1))
	require.NoError(t, err)
	assert.Equal(t, verdict{Accept: true, Reason: "fits"}, got)
	require.NotNil(t, seen.Schema, "structured calls must send a schema")
	assert.InDelta(t, 0.1, seen.TemperatureOr(1), 1e-9)

	t.Run("propagates gateway errors", func(t *testing.T) {
		failing := GatewayFunc(func(context.Context, string, ...opts.Option[Request]) (string, error) {
			return "", &Error{Kind: ConnectionFailed, Op: "generate", Err: errors.New("refused")}
		})
		_, err := Structured[verdict](context.Background(), failing, "take task?")
		assert.True(t, IsKind(err, ConnectionFailed))
		assert.True(t, Unreachable(err))
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"deadline", context.DeadlineExceeded, Timeout},
		{"wrapped deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), Timeout},
		{"net timeout", &url.Error{Op: "Post", URL: "http://localhost", Err: timeoutErr{}}, Timeout},
		{"refused", &url.Error{Op: "Post", URL: "http://localhost", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, ConnectionFailed},
		{"anything else", errors.New("no route"), ConnectionFailed},
		{"canceled", &url.Error{Op: "Post", URL: "http://localhost", Err: context.Canceled}, Canceled},
		{"already classified", &Error{Kind: InvalidResponse, Err: errors.New("x")}, InvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify("generate", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.False(t, Unreachable(Classify("generate", context.Canceled)))
	assert.NoError(t, Classify("generate", nil))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, Unknown))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: Status, Op: "generate", Code: 404, Err: errors.New("model not found")}
	assert.Equal(t, "llm generate: bad status (404): model not found", err.Error())

	err = &Error{Kind: Timeout, Op: "tags", Err: context.DeadlineExceeded}
	assert.Equal(t, "llm tags: timeout: context deadline exceeded", err.Error())
}

package slogx

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttrs(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		attr := Error(errors.New("boom"))
		assert.Equal(t, "error", attr.Key)
		assert.Equal(t, "boom", attr.Value.String())
	})

	t.Run("stringer", func(t *testing.T) {
		attr := Stringer("elapsed", 2*time.Second)
		assert.Equal(t, "elapsed", attr.Key)
		assert.Equal(t, "2s", attr.Value.String())
	})

	t.Run("logger and agent names", func(t *testing.T) {
		assert.Equal(t, KeyLoggerName, LoggerName("broker").Key)
		assert.Equal(t, KeyAgent, Agent("worker-1").Key)
		assert.Equal(t, "worker-1", Agent("worker-1").Value.String())
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	Component(base, "negotiation").Info("hello")
	assert.Contains(t, buf.String(), "logger=negotiation")
	assert.NotNil(t, Component(nil, "fallback"))
}

package slogx

import (
	"fmt"
	"log/slog"
)

// Error returns a slog.Attr representing the provided error.
// The attribute key is "error" and the value is the error's message.
func Error(err error) slog.Attr {
	return slog.String("error", err.Error())
}

// Stringer creates a slog.Attr with the provided key and the string representation
// of the given fmt.Stringer value.
func Stringer(key string, value fmt.Stringer) slog.Attr {
	return slog.String(key, value.String())
}

const (
	// KeyLoggerName is the attribute key naming the component that logged.
	KeyLoggerName = "logger"
	// KeyAgent is the attribute key naming the agent a record is about.
	KeyAgent = "agent"
)

// LoggerName creates a slog.Attr with the provided logger name.
// The attribute key is defined by KeyLoggerName.
func LoggerName(name string) slog.Attr {
	return slog.String(KeyLoggerName, name)
}

// Agent creates a slog.Attr identifying an agent by name.
func Agent(name string) slog.Attr {
	return slog.String(KeyAgent, name)
}

// Component returns a logger derived from base (or slog.Default when base is nil)
// tagged with the component name.
func Component(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(LoggerName(name))
}

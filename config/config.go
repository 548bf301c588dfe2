// Package config resolves runtime settings from the environment. A .env file
// in the working directory is loaded first, so local overrides never need to
// be exported by hand.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/swag"
	_ "github.com/joho/godotenv/autoload"
)

const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultModel       = "llama3.2"
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// Backend selects the wire protocol used to reach the language model.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// EventTransport selects where scenario events are published.
type EventTransport string

const (
	EventsLocal EventTransport = "local"
	EventsNATS  EventTransport = "nats"
)

type Config struct {
	OllamaHost  string
	Model       string
	Temperature float64
	Timeout     time.Duration
	Backend     Backend
	Events      EventTransport
	NATSURL     string
	LogLevel    slog.Level
	// Offline runs every scenario on its deterministic fallback policies.
	Offline bool
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		OllamaHost:  DefaultOllamaHost,
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		Timeout:     DefaultTimeout,
		Backend:     BackendOllama,
		Events:      EventsLocal,
		LogLevel:    slog.LevelInfo,
	}
}

// Load reads the process environment.
func Load() (Config, error) {
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an arbitrary variable source. Every malformed
// value is reported, not just the first.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	var err error

	if v, ok := nonEmpty(lookup, "OLLAMA_HOST"); ok {
		if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
			v = "http://" + v
		}
		cfg.OllamaHost = strings.TrimRight(v, "/")
	}
	if v, ok := nonEmpty(lookup, "AGORA_MODEL"); ok {
		cfg.Model = v
	}
	if v, ok := nonEmpty(lookup, "AGORA_TEMPERATURE"); ok {
		t, perr := swag.ConvertFloat64(v)
		switch {
		case perr != nil:
			err = errors.Join(err, fmt.Errorf("AGORA_TEMPERATURE: %w", perr))
		case t < 0 || t > 2:
			err = errors.Join(err, fmt.Errorf("AGORA_TEMPERATURE: %v out of range [0,2]", t))
		default:
			cfg.Temperature = t
		}
	}
	if v, ok := nonEmpty(lookup, "AGORA_TIMEOUT"); ok {
		d, perr := strfmt.ParseDuration(v)
		if perr != nil {
			err = errors.Join(err, fmt.Errorf("AGORA_TIMEOUT: %w", perr))
		} else {
			cfg.Timeout = d
		}
	}
	if v, ok := nonEmpty(lookup, "AGORA_BACKEND"); ok {
		switch b := Backend(strings.ToLower(v)); b {
		case BackendOllama, BackendOpenAI:
			cfg.Backend = b
		default:
			err = errors.Join(err, fmt.Errorf("AGORA_BACKEND: unknown backend %q", v))
		}
	}
	if v, ok := nonEmpty(lookup, "AGORA_EVENTS"); ok {
		switch e := EventTransport(strings.ToLower(v)); e {
		case EventsLocal, EventsNATS:
			cfg.Events = e
		default:
			err = errors.Join(err, fmt.Errorf("AGORA_EVENTS: unknown transport %q", v))
		}
	}
	if v, ok := nonEmpty(lookup, "NATS_URL"); ok {
		cfg.NATSURL = v
	}
	if v, ok := nonEmpty(lookup, "AGORA_LOG_LEVEL"); ok {
		if perr := cfg.LogLevel.UnmarshalText([]byte(v)); perr != nil {
			err = errors.Join(err, fmt.Errorf("AGORA_LOG_LEVEL: %w", perr))
		}
	}
	if v, ok := nonEmpty(lookup, "AGORA_OFFLINE"); ok {
		// anything outside swag's truthy set ("true", "yes", "on", "1", ...) is false
		cfg.Offline, _ = swag.ConvertBool(v)
	}

	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func nonEmpty(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

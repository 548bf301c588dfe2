package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/casualjim/agora/config"
	"github.com/casualjim/agora/events"
	"github.com/casualjim/agora/internal/narrate"
	"github.com/casualjim/agora/llm"
	"github.com/casualjim/agora/llm/ollama"
	"github.com/casualjim/agora/llm/openai"
	"github.com/casualjim/agora/pkg/natsx"
	"github.com/casualjim/agora/pkg/slogx"
	"github.com/casualjim/agora/scenario"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// EventsTopic is the topic scenarios publish on and watch subscribes to.
const EventsTopic = "agora"

type flags struct {
	host     string
	model    string
	backend  string
	events   string
	logLevel string
	offline  bool
	verbose  bool
	plain    bool
}

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      config.Config
	client   *ollama.Client
	gateway  llm.Gateway
	narrator *narrate.Narrator
	topic    events.Topic
	conn     *nats.Conn
}

func (a *app) Close() {
	if a.conn != nil {
		a.conn.Close()
	}
}

func newRootCommand(out io.Writer) *cobra.Command {
	var f flags
	root := &cobra.Command{
		Use:           "agora",
		Short:         "Agora runs small multi-agent coordination scenarios against a local Ollama model.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.host, "host", "", "Ollama base URL (env OLLAMA_HOST)")
	pf.StringVar(&f.model, "model", "", "model name (env AGORA_MODEL)")
	pf.StringVar(&f.backend, "backend", "", "ollama or openai (env AGORA_BACKEND)")
	pf.StringVar(&f.events, "events", "", "local or nats (env AGORA_EVENTS)")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error (env AGORA_LOG_LEVEL)")
	pf.BoolVar(&f.offline, "offline", false, "decide with deterministic policies, never call the model (env AGORA_OFFLINE)")
	pf.BoolVarP(&f.verbose, "verbose", "v", false, "dump agent state while narrating")
	pf.BoolVar(&f.plain, "plain", false, "print summaries as raw markdown")

	for _, s := range scenario.Catalog {
		root.AddCommand(&cobra.Command{
			Use:   s.Name,
			Short: s.Short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScenario(cmd, &f, out, s.Run)
			},
		})
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Run every scenario in order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runScenario(cmd, &f, out, scenario.All)
			},
		},
		&cobra.Command{
			Use:   "models",
			Short: "List the models the Ollama server has pulled",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return listModels(cmd, &f, out)
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Narrate the events published by scenarios running elsewhere (requires --events nats)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return watch(cmd, &f, out)
			},
		},
	)
	return root
}

// resolve layers the flags that were set over the process environment, so
// both sources are validated by the same code.
func resolve(cmd *cobra.Command, f *flags) (config.Config, error) {
	overrides := map[string]string{}
	changed := cmd.Flags().Changed
	set := func(name, key, value string) {
		if changed(name) {
			overrides[key] = value
		}
	}
	set("host", "OLLAMA_HOST", f.host)
	set("model", "AGORA_MODEL", f.model)
	set("backend", "AGORA_BACKEND", f.backend)
	set("events", "AGORA_EVENTS", f.events)
	set("log-level", "AGORA_LOG_LEVEL", f.logLevel)
	set("offline", "AGORA_OFFLINE", strconv.FormatBool(f.offline))

	return config.FromLookup(func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	})
}

func newApp(ctx context.Context, cmd *cobra.Command, f *flags, out io.Writer) (*app, error) {
	cfg, err := resolve(cmd, f)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel)
	logger := slog.Default()

	a := &app{
		cfg:      cfg,
		narrator: narrate.New(out, narrate.Verbose(f.verbose), narrate.Markdown(!f.plain)),
		client: ollama.New(
			ollama.Host(cfg.OllamaHost),
			ollama.Model(cfg.Model),
			ollama.Temperature(cfg.Temperature),
			ollama.Timeout(cfg.Timeout),
			ollama.Logger(logger),
		),
	}
	a.gateway = a.client
	if cfg.Backend == config.BackendOpenAI {
		a.gateway = openai.New(
			openai.BaseURL(cfg.OllamaHost+"/v1/"),
			openai.Model(cfg.Model),
			openai.Temperature(cfg.Temperature),
			openai.Timeout(cfg.Timeout),
			openai.Logger(logger),
		)
	}

	switch cfg.Events {
	case config.EventsNATS:
		conn, err := natsx.Connect(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		a.conn = conn
		a.topic = events.NATS(conn).Topic(ctx, EventsTopic)
	default:
		a.topic = events.Local().Topic(ctx, EventsTopic)
	}
	return a, nil
}

func runScenario(cmd *cobra.Command, f *flags, out io.Writer, run func(context.Context, scenario.Env) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, f, out)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.DebugContext(ctx, "running", slog.String("command", cmd.Name()), slog.String("model", a.cfg.Model), slog.String("backend", string(a.cfg.Backend)))
	err = run(ctx, scenario.Env{
		Gateway:  a.gateway,
		Model:    a.cfg.Model,
		Probe:    a.client.Available,
		Offline:  a.cfg.Offline,
		Narrator: a.narrator,
		Events:   a.topic,
		Logger:   slog.Default(),
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func listModels(cmd *cobra.Command, f *flags, out io.Writer) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, f, out)
	if err != nil {
		return err
	}
	defer a.Close()

	models, err := a.client.Models(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if llm.Unreachable(err) {
			a.narrator.Hint(a.cfg.Model, err)
			return nil
		}
		return err
	}
	for _, m := range models {
		marker := " "
		if m == a.cfg.Model || m == a.cfg.Model+":latest" {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s\n", marker, m)
	}
	return nil
}

func watch(cmd *cobra.Command, f *flags, out io.Writer) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd, f, out)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.conn == nil {
		return errors.New("watch needs --events nats, local events never leave the process")
	}

	sub, err := a.topic.Subscribe(ctx, a.narrator)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	slog.InfoContext(ctx, "watching events", slog.String("subject", events.SubjectPrefix+EventsTopic), slog.String("url", a.conn.ConnectedUrl()))
	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "stopped watching", slogx.Error(err))
	}
	return nil
}

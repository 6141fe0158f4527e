package app

import (
	"fmt"
	"github.com/rs/zerolog/log"
	terminal "go-autoagent/internal/agents/terminal/handler"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
)

// Registry builds the shared tool registry: the file tools, execute_command and,
// when enabled, the safety monitor.
func Registry(cfg *config.Config) (*tools.Registry, error) {
	opts := make([]tools.Option, 0)
	if cfg.Security.SafetyMonitor {
		opts = append(opts, tools.WithMonitor(security.NewMonitor(security.DefaultMonitorRules()...)))
	}
	registry := tools.NewRegistry(opts...)
	if err := registry.Register(tools.Builtins()...); err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if err := registry.Register(terminal.New()); err != nil {
		return nil, fmt.Errorf("register terminal: %w", err)
	}
	return registry, nil
}

// Model returns the OpenAI backed model behind the configured rate limit.
func Model(cfg *config.Config) (llm.Model, error) {
	model, err := llm.NewOpenAI()
	if err != nil {
		return nil, err
	}
	return llm.NewLimited(model, cfg.Model.RequestsPerSecond, cfg.Model.Burst, cfg.Model.Timeout.Duration), nil
}

// Sink logs every event and publishes to NATS when a url is configured. The
// returned func releases the NATS connection.
func Sink(cfg *config.Config, extra ...events.Sink) (events.Sink, func(), error) {
	sinks := append([]events.Sink{events.NewLogSink(log.Logger)}, extra...)
	closer := func() {}
	if cfg.Events.NATSURL != "" {
		nc, err := events.DialNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("nats: %w", err)
		}
		sinks = append(sinks, nc)
		closer = func() {
			if err := nc.Close(); err != nil {
				log.Warn().Err(err).Msg("unable to drain nats connection")
			}
		}
	}
	return events.Multi(sinks...), closer, nil
}

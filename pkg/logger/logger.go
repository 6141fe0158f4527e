package logger

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"os"
)

const (
	AgentNameField = "agent"
	TaskField      = "task"
	ActorIDField   = "actor"
	SessionIDField = "session"
	RunIDField     = "run"
	ToolField      = "tool"
	IterationField = "iteration"
)

func NewGlobal(level string, pretty bool) error {
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}

	zerolog.SetGlobalLevel(l)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return nil
}

// Agent returns the global logger tagged with the agent name and any extra fields.
func Agent(name string, fields map[string]interface{}) zerolog.Logger {
	ctx := log.With().Str(AgentNameField, name)
	if len(fields) > 0 {
		ctx = ctx.Fields(fields)
	}
	return ctx.Logger()
}

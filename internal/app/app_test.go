package app

import (
	"context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"testing"
)

func TestRegistry(t *testing.T) {
	cfg := config.New()
	registry, err := Registry(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{
		tools.EditFile, tools.ExecuteCommand, tools.GetFileMetadata, tools.ListDirectory,
		tools.ReadFile, tools.SearchFiles, tools.WriteFile,
	}, registry.Names())

	sandbox, err := security.NewSandbox(t.TempDir())
	require.NoError(t, err)
	ex := registry.Bind(tools.NewWorkspace(sandbox, cfg.CommandFilter(), cfg.Limits()))
	res := ex.Execute(context.Background(), tools.ExecuteCommand, map[string]any{"command": "curl http://example.com"})
	assert.Equal(t, models.KindSecurity, res.Kind)
}

func TestSinkWithoutNATS(t *testing.T) {
	ch := events.NewChan(1)
	sink, closer, err := Sink(config.New(), ch)
	require.NoError(t, err)
	defer closer()

	sink.Publish(events.Event{Type: events.RunCompleted, RunID: "r"})
	ch.Close()
	e := <-ch.Events()
	assert.Equal(t, events.RunCompleted, e.Type)
}

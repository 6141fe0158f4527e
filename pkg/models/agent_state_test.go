package models

import (
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func call(tool, path string) ToolCall {
	return ToolCall{Tool: tool, Parameters: map[string]any{"path": path}}
}

func TestAgentStateObservations(t *testing.T) {
	s := NewAgentState("tidy up")
	require.Equal(t, "No actions taken yet.", s.HistorySummary(5))
	require.Equal(t, "Nothing collected yet.", s.CollectedData())

	first := s.AddObservation(ObservationFromResult(call("list_directory", ""), ToolResult{Status: StatusSuccess, Summary: "2 entries"}))
	second := ObservationFromResult(call("read_file", "a.txt"), ToolResult{Status: StatusSuccess})
	second.TaskID = 2
	second = s.AddObservation(second)
	s.AddObservation(ObservationFromResult(call("read_file", "b.txt"), ToolResult{Status: StatusError, Error: "not found"}))
	s.AddObservation(ErrorObservation(Think{Reasoning: "?"}, KindProtocol, errors.New("no action")))

	assert.Equal(t, 1, first.Iteration)
	assert.Equal(t, 2, second.Iteration)
	assert.Equal(t, 4, s.Iteration)
	assert.Len(t, s.ObservationsForTask(2), 1)

	assert.Equal(t, "3. ✗ read_file: read_file failed: not found\n4. ✗ think: no action", s.HistorySummary(2))
	assert.Contains(t, s.HistorySummary(0), "1. ✓ list_directory: 2 entries")
	assert.Contains(t, s.HistorySummary(0), "2. ✓ read_file: read_file succeeded")

	assert.Equal(t, "Directories listed: .\nFiles read: a.txt", s.CollectedData())
}

func TestAgentStateComplete(t *testing.T) {
	s := NewAgentState("goal")
	s.Complete(OutcomeBudgetExhausted, "out of steps")
	assert.False(t, s.IsComplete)
	assert.Equal(t, OutcomeBudgetExhausted, s.Outcome)

	s.Complete(OutcomeCompleted, "done")
	assert.True(t, s.IsComplete)
	assert.Equal(t, "done", s.FinalAnswer)
}

package handler

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/memory/buffer"
	"go-autoagent/pkg/models"
	"testing"
)

type catalogue []string

func (c catalogue) Catalogue() string { return "- read_file: read\n- write_file: write" }
func (c catalogue) Names() []string   { return c }

var tools = catalogue{"list_directory", "read_file", "write_file"}

func assertTopological(t *testing.T, plan models.ExecutionPlan) {
	t.Helper()
	require.Len(t, plan.ExecutionOrder, len(plan.Tasks))
	pos := make(map[int]int)
	for i, id := range plan.ExecutionOrder {
		pos[id] = i
	}
	for _, task := range plan.Tasks {
		for _, dep := range task.Dependencies {
			assert.Less(t, pos[dep], pos[task.ID], "task %d must come after %d", task.ID, dep)
		}
	}
}

func TestCreatePlan(t *testing.T) {
	model := llm.NewScripted("Here is the plan:\n```json\n" + `{
  "analysis": "need to read then summarise",
  "tasks": [
    {"id": 1, "type": "search", "description": "list files", "required_tools": ["list_directory"], "dependencies": [], "estimated_steps": 1},
    {"id": 2, "type": "read", "description": "read the files", "required_tools": ["read_file", "teleport"], "dependencies": [1], "estimated_steps": 3},
    {"id": "3", "type": "write", "description": "write summary", "required_tools": ["write_file"], "dependencies": ["2", 9, 3], "estimated_steps": 0}
  ],
  "execution_order": [3, 2, 1],
  "reasoning": "simple"
}` + "\n```")
	memory := buffer.New()
	h := New(model, tools, "/tmp/ws", memory)

	plan, err := h.CreatePlan(context.Background(), "summarise the repo")
	require.NoError(t, err)
	assert.False(t, plan.Fallback)
	require.Len(t, plan.Tasks, 3)
	assert.Equal(t, []int{1, 2, 3}, plan.ExecutionOrder)
	assertTopological(t, plan)

	assert.Equal(t, models.KindRead, plan.Tasks[1].Kind)
	assert.Equal(t, []string{"read_file"}, plan.Tasks[1].RequiredTools)
	assert.Equal(t, []int{2}, plan.Tasks[2].Dependencies)
	assert.Equal(t, 1, plan.Tasks[2].EstimatedSteps)
	assert.Equal(t, 5, plan.TotalEstimatedSteps)

	require.Equal(t, 1, memory.Len())
	assert.Contains(t, model.Prompts()[0], "summarise the repo")
	assert.Contains(t, model.Prompts()[0], "/tmp/ws")
}

func TestCreatePlanPrefersModelOrder(t *testing.T) {
	model := llm.NewScripted(`{"tasks": [
		{"id": 1, "type": "read", "description": "a", "required_tools": ["read_file"], "estimated_steps": 1},
		{"id": 2, "type": "read", "description": "b", "required_tools": ["read_file"], "estimated_steps": 1},
		{"id": 3, "type": "write", "description": "c", "required_tools": ["write_file"], "dependencies": [1], "estimated_steps": 1}
	], "execution_order": [2, 1, 3]}`)

	plan, err := New(model, tools, "ws", nil).CreatePlan(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3}, plan.ExecutionOrder)
}

func TestCreatePlanFallback(t *testing.T) {
	replies := map[string]string{
		"no block":  "I would start by reading the files.",
		"malformed": `{"tasks": "all of them"}`,
		"empty":     `{"tasks": [], "execution_order": []}`,
		"duplicate": `{"tasks": [{"id": 1, "description": "a"}, {"id": 1, "description": "b"}]}`,
		"cycle": `{"tasks": [
			{"id": 1, "description": "a", "dependencies": [2]},
			{"id": 2, "description": "b", "dependencies": [1]}
		]}`,
	}
	for name, reply := range replies {
		t.Run(name, func(t *testing.T) {
			plan, err := New(llm.NewScripted(reply), tools, "ws", nil).CreatePlan(context.Background(), "create config.json")
			require.NoError(t, err)
			assert.True(t, plan.Fallback)
			require.Len(t, plan.Tasks, 1)
			assert.Equal(t, models.KindAnalyze, plan.Tasks[0].Kind)
			assert.Equal(t, 3, plan.Tasks[0].EstimatedSteps)
			assert.Equal(t, "create config.json", plan.Tasks[0].Description)
			assert.Equal(t, []int{1}, plan.ExecutionOrder)
		})
	}
}

func TestCreatePlanModelFailure(t *testing.T) {
	boom := errors.New("connection refused")
	model := llm.NewScripted().Push(llm.Reply{Err: boom})

	_, err := New(model, tools, "ws", nil).CreatePlan(context.Background(), "goal")
	assert.ErrorIs(t, err, boom)
}

func TestCreatePlanAssignsMissingIDs(t *testing.T) {
	model := llm.NewScripted(`{"tasks": [
		{"type": "write", "description": "create config.json", "required_tools": ["write_file"], "estimated_steps": 1},
		{"type": "unknown", "description": "check it", "dependencies": [1]}
	]}`)

	plan, err := New(model, tools, "ws", nil).CreatePlan(context.Background(), "goal")
	require.NoError(t, err)
	assert.Equal(t, 1, plan.Tasks[0].ID)
	assert.Equal(t, 2, plan.Tasks[1].ID)
	assert.Equal(t, models.KindAnalyze, plan.Tasks[1].Kind)
	assert.Equal(t, []int{1, 2}, plan.ExecutionOrder)
}

package models

import (
	"encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestPlanOrdered(t *testing.T) {
	p := ExecutionPlan{
		Tasks: []Task{
			{ID: 1, Kind: KindRead, RequiredTools: []string{"read_file"}},
			{ID: 2, Kind: KindWrite, Dependencies: []int{1}},
		},
		ExecutionOrder: []int{2, 1, 7},
	}
	ordered := p.Ordered()
	require.Len(t, ordered, 2)
	assert.Equal(t, 2, ordered[0].ID)
	assert.True(t, ordered[1].Requires("read_file"))
	assert.False(t, ordered[0].Requires("read_file"))

	_, ok := p.Task(7)
	assert.False(t, ok)
}

func TestFallbackAndSingleTaskPlans(t *testing.T) {
	fb := FallbackPlan("do it", "no json")
	assert.True(t, fb.Fallback)
	assert.Equal(t, []int{1}, fb.ExecutionOrder)
	assert.Equal(t, KindAnalyze, fb.Tasks[0].Kind)
	assert.Equal(t, "do it", fb.Tasks[0].Description)

	single := SingleTaskPlan("do it", 0)
	assert.False(t, single.Fallback)
	assert.Equal(t, 1, single.Tasks[0].EstimatedSteps)
	assert.Equal(t, 15, SingleTaskPlan("do it", 15).TotalEstimatedSteps)
}

func TestParseTaskKind(t *testing.T) {
	assert.Equal(t, KindWrite, ParseTaskKind(" Write "))
	assert.Equal(t, KindAnalyze, ParseTaskKind("deploy"))
}

func TestParseMode(t *testing.T) {
	m, ok := ParseMode("")
	assert.True(t, ok)
	assert.Equal(t, ModeTask, m)

	_, ok = ParseMode("turbo")
	assert.False(t, ok)
}

func TestActionJSONCarriesType(t *testing.T) {
	body, err := json.Marshal(Observation{Action: ToolCall{Tool: "read_file", Parameters: map[string]any{"path": "a"}}, Status: StatusSuccess})
	require.NoError(t, err)

	var decoded struct {
		Action map[string]any `json:"action"`
	}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "tool_call", decoded.Action["type"])
	assert.Equal(t, "read_file", decoded.Action["tool"])

	body, err = json.Marshal(Finish{Reasoning: "done"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"finish","reasoning":"done"}`, string(body))
}

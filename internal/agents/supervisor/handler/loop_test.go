package handler

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/models"
	"sync"
	"testing"
	"time"
)

type decideFunc func(state *models.AgentState, task *models.Task) (models.Action, error)

type fakeDecider struct {
	mu    sync.Mutex
	fn    decideFunc
	calls int
}

func (d *fakeDecider) Decide(_ context.Context, state *models.AgentState, _ models.ExecutionPlan) (models.Action, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.fn(state, nil)
}

func (d *fakeDecider) DecideForTask(_ context.Context, state *models.AgentState, task models.Task) (models.Action, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.fn(state, &task)
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	fail  bool
	panic bool
}

func (e *fakeExecutor) Execute(_ context.Context, name string, _ map[string]any) models.ToolResult {
	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.mu.Unlock()
	if e.panic {
		panic("boom")
	}
	if e.fail {
		return models.ToolResult{Tool: name, Status: models.StatusError, Error: "nope", Kind: models.KindExecution}
	}
	return models.ToolResult{Tool: name, Status: models.StatusSuccess, Summary: name + " ok"}
}

func read(path string) models.ToolCall {
	return models.ToolCall{Tool: "read_file", Parameters: map[string]any{"path": path}}
}

func always(a models.Action) decideFunc {
	return func(*models.AgentState, *models.Task) (models.Action, error) { return a, nil }
}

func eventTypes(c *events.Chan) []events.Type {
	c.Close()
	res := make([]events.Type, 0)
	for e := range c.Events() {
		res = append(res, e.Type)
	}
	return res
}

func TestRunBudgetExhausted(t *testing.T) {
	exec := &fakeExecutor{}
	sink := events.NewChan(64)
	loop := NewLoop(&fakeDecider{fn: always(read("a.txt"))}, exec, sink, Options{MaxIterations: 3})

	state := loop.Run(context.Background(), NewControl("run-1"), "goal", models.ExecutionPlan{})

	assert.Equal(t, models.OutcomeBudgetExhausted, state.Outcome)
	assert.False(t, state.IsComplete)
	assert.Contains(t, state.FinalAnswer, "Stopped due to iteration limit (3)")
	assert.Equal(t, 3, state.Iteration)
	assert.Len(t, exec.calls, 3)
	for i, o := range state.Observations {
		assert.Equal(t, i+1, o.Iteration)
	}

	types := eventTypes(sink)
	assert.Equal(t, events.ThinkStarted, types[0])
	assert.Equal(t, events.ActStarted, types[1])
	assert.Equal(t, events.Observed, types[2])
	assert.Equal(t, events.RunCompleted, types[len(types)-1])
}

func TestRunFinishRejectedUntilPlanComplete(t *testing.T) {
	task := models.Task{ID: 1, Kind: models.KindRead, RequiredTools: []string{"read_file"}, EstimatedSteps: 2}
	plan := models.ExecutionPlan{Tasks: []models.Task{task}, ExecutionOrder: []int{1}}
	reads := []string{"a.txt", "b.txt"}
	decider := &fakeDecider{fn: func(state *models.AgentState, _ *models.Task) (models.Action, error) {
		if state.Iteration == 1 || state.Iteration == 2 {
			return read(reads[state.Iteration-1]), nil
		}
		return models.Finish{Reasoning: "done"}, nil
	}}
	exec := &fakeExecutor{}

	state := NewLoop(decider, exec, nil, Options{MaxIterations: 10, MaxFinishRejections: 2}).
		Run(context.Background(), NewControl("r"), "goal", plan)

	require.Equal(t, models.OutcomeCompleted, state.Outcome)
	assert.True(t, state.IsComplete)
	assert.Equal(t, "Goal accomplished: done", state.FinalAnswer)
	require.Len(t, state.Observations, 3)
	assert.False(t, state.Observations[0].OK())
	assert.Equal(t, models.KindProtocol, state.Observations[0].Kind)
	assert.Contains(t, state.Observations[0].Error, "finish rejected")
	assert.Len(t, exec.calls, 2)
}

func TestRunFinishUnconfirmedAfterRejectionLimit(t *testing.T) {
	plan := models.ExecutionPlan{Tasks: []models.Task{{ID: 1, RequiredTools: []string{"read_file"}, EstimatedSteps: 1}}, ExecutionOrder: []int{1}}
	exec := &fakeExecutor{}
	sink := events.NewChan(16)

	state := NewLoop(&fakeDecider{fn: always(models.Finish{Reasoning: "trust me"})}, exec, sink, Options{MaxIterations: 10, MaxFinishRejections: 2}).
		Run(context.Background(), NewControl("r"), "goal", plan)

	assert.Equal(t, models.OutcomeUnconfirmed, state.Outcome)
	assert.False(t, state.IsComplete)
	assert.Equal(t, "Finished without confirmation: trust me; 0/1 tasks complete.", state.FinalAnswer)
	assert.NotContains(t, state.FinalAnswer, "Goal accomplished")
	assert.Equal(t, 2, state.Iteration)
	assert.Empty(t, exec.calls)
	types := eventTypes(sink)
	assert.Equal(t, events.RunCompleted, types[len(types)-1])
}

func TestRunFallbackFinishUnconfirmed(t *testing.T) {
	plan := models.ExecutionPlan{Tasks: []models.Task{{ID: 1, RequiredTools: []string{"read_file"}, EstimatedSteps: 1}}, ExecutionOrder: []int{1}}

	state := NewLoop(&fakeDecider{fn: always(models.Finish{Reasoning: "garbled", Fallback: true})}, &fakeExecutor{}, nil, DefaultOptions()).
		Run(context.Background(), NewControl("r"), "goal", plan)

	assert.Equal(t, models.OutcomeUnconfirmed, state.Outcome)
	assert.Equal(t, 0, state.Iteration)
	assert.Equal(t, "Finished without confirmation: garbled; 0/1 tasks complete.", state.FinalAnswer)
}

func TestRunErrorsBecomeObservations(t *testing.T) {
	decider := &fakeDecider{fn: func(state *models.AgentState, _ *models.Task) (models.Action, error) {
		switch state.Iteration {
		case 0:
			return nil, errors.New("model unavailable")
		case 1:
			panic("decider bug")
		case 2:
			return read("a.txt"), nil
		}
		return models.Finish{Reasoning: "ok"}, nil
	}}
	exec := &fakeExecutor{panic: true}

	state := NewLoop(decider, exec, nil, DefaultOptions()).Run(context.Background(), NewControl("r"), "goal", models.ExecutionPlan{})

	assert.Equal(t, models.OutcomeCompleted, state.Outcome)
	require.Len(t, state.Observations, 3)
	assert.Contains(t, state.Observations[0].Error, "model unavailable")
	assert.Contains(t, state.Observations[1].Error, "decider bug")
	assert.Contains(t, state.Observations[2].Error, "tool read_file panicked")
	assert.Equal(t, models.ActionToolCall, state.Observations[2].Action.Type())
	for _, o := range state.Observations {
		assert.False(t, o.OK())
	}
}

func TestRunCancelled(t *testing.T) {
	ctl := NewControl("r")
	decider := &fakeDecider{fn: func(*models.AgentState, *models.Task) (models.Action, error) {
		ctl.Stop()
		return read("a.txt"), nil
	}}
	exec := &fakeExecutor{}
	sink := events.NewChan(16)

	state := NewLoop(decider, exec, sink, DefaultOptions()).Run(context.Background(), ctl, "goal", models.ExecutionPlan{})

	assert.Equal(t, models.OutcomeCancelled, state.Outcome)
	assert.Equal(t, "Stopped: run cancelled.", state.FinalAnswer)
	assert.Len(t, exec.calls, 1, "the in-flight call finishes before the stop is seen")
	assert.Equal(t, 1, state.Iteration)
	types := eventTypes(sink)
	assert.Equal(t, events.RunFailed, types[len(types)-1])
}

func TestRunTaskByTask(t *testing.T) {
	plan := models.ExecutionPlan{
		Tasks: []models.Task{
			{ID: 1, Kind: models.KindRead, RequiredTools: []string{"read_file"}, EstimatedSteps: 2},
			{ID: 2, Kind: models.KindWrite, RequiredTools: []string{"write_file"}, EstimatedSteps: 1, Dependencies: []int{1}},
		},
		ExecutionOrder: []int{1, 2},
	}
	decider := &fakeDecider{fn: func(state *models.AgentState, task *models.Task) (models.Action, error) {
		done := len(state.ObservationsForTask(task.ID))
		switch {
		case task.ID == 1 && done < 2:
			return read([]string{"a", "b"}[done]), nil
		case task.ID == 2 && done == 0:
			return models.ToolCall{Tool: "write_file", Parameters: map[string]any{"path": "out.md"}}, nil
		}
		return models.Finish{Reasoning: "done"}, nil
	}}
	exec := &fakeExecutor{}
	sink := events.NewChan(64)

	state := NewLoop(decider, exec, sink, DefaultOptions()).RunTaskByTask(context.Background(), NewControl("r"), "goal", plan)

	require.Equal(t, models.OutcomeCompleted, state.Outcome)
	assert.Equal(t, []string{"read_file", "read_file", "write_file"}, exec.calls)
	assert.Len(t, state.ObservationsForTask(1), 2)
	assert.Len(t, state.ObservationsForTask(2), 1)
	assert.Equal(t, "Goal accomplished: task 1: done; task 2: done", state.FinalAnswer)

	types := eventTypes(sink)
	assert.Equal(t, events.TaskStarted, types[0])
	assert.Contains(t, types, events.TaskFinished)
}

func TestRunTaskByTaskFallbackFinish(t *testing.T) {
	plan := models.ExecutionPlan{
		Tasks:          []models.Task{{ID: 1, EstimatedSteps: 1}, {ID: 2, EstimatedSteps: 1}},
		ExecutionOrder: []int{1, 2},
	}
	decider := &fakeDecider{fn: func(_ *models.AgentState, task *models.Task) (models.Action, error) {
		if task.ID == 1 {
			return models.Finish{Reasoning: "could not understand the model reply: no json", Fallback: true}, nil
		}
		return models.Finish{Reasoning: "done"}, nil
	}}
	sink := events.NewChan(32)

	state := NewLoop(decider, &fakeExecutor{}, sink, DefaultOptions()).
		RunTaskByTask(context.Background(), NewControl("r"), "goal", plan)

	assert.Equal(t, models.OutcomeUnconfirmed, state.Outcome)
	assert.False(t, state.IsComplete)
	assert.Equal(t, "Finished without confirmation: tasks [1] ended on model replies that could not be understood.", state.FinalAnswer)
	assert.Equal(t, 2, decider.calls)
	types := eventTypes(sink)
	assert.Equal(t, events.RunCompleted, types[len(types)-1])
}

func TestRunTaskByTaskStepBudget(t *testing.T) {
	plan := models.ExecutionPlan{
		Tasks: []models.Task{
			{ID: 1, RequiredTools: []string{"read_file"}, EstimatedSteps: 1},
			{ID: 2, RequiredTools: []string{"write_file"}, EstimatedSteps: 1},
		},
		ExecutionOrder: []int{1, 2},
	}
	decider := &fakeDecider{fn: func(_ *models.AgentState, task *models.Task) (models.Action, error) {
		if task.ID == 1 {
			return read("a"), nil
		}
		return models.Finish{Reasoning: "done"}, nil
	}}
	exec := &fakeExecutor{}

	state := NewLoop(decider, exec, nil, Options{MaxIterations: 20, TaskStepSlack: 2}).
		RunTaskByTask(context.Background(), NewControl("r"), "goal", plan)

	assert.Equal(t, models.OutcomeBudgetExhausted, state.Outcome)
	assert.Contains(t, state.FinalAnswer, "tasks [1] ran out of steps")
	assert.Len(t, exec.calls, 3)
	assert.Equal(t, 4, decider.calls)
}

func TestRunTaskByTaskGlobalCeiling(t *testing.T) {
	plan := models.SingleTaskPlan("goal", 50)
	exec := &fakeExecutor{fail: true}

	state := NewLoop(&fakeDecider{fn: always(read("a"))}, exec, nil, Options{MaxIterations: 4, TaskStepSlack: 5}).
		RunTaskByTask(context.Background(), NewControl("r"), "goal", plan)

	assert.Equal(t, models.OutcomeBudgetExhausted, state.Outcome)
	assert.Equal(t, 4, state.Iteration)
	assert.Contains(t, state.FinalAnswer, "while working on task 1")
}

func TestControlWait(t *testing.T) {
	ctl := NewControl("r")
	assert.False(t, ctl.Wait(10*time.Millisecond))

	go ctl.finish()
	assert.True(t, ctl.Wait(time.Second))
	ctl.finish()
	<-ctl.Done()
}

package handler

import (
	"context"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"time"
)

type Planner interface {
	CreatePlan(ctx context.Context, goal string) (models.ExecutionPlan, error)
}

// Handler turns a goal into a finished run: plan first, then the loop.
type Handler struct {
	planner Planner
	loop    *Loop
	sink    events.Sink
}

func New(planner Planner, loop *Loop, sink events.Sink) *Handler {
	if sink == nil {
		sink = events.Discard
	}
	return &Handler{planner: planner, loop: loop, sink: sink}
}

// Process runs the goal in the given mode and marks ctl done when the run is over.
// The plan is nil when planning failed.
func (h *Handler) Process(ctx context.Context, ctl *Control, goal string, mode models.Mode) (*models.AgentState, *models.ExecutionPlan) {
	defer ctl.finish()
	l := logger.Agent("supervisor", map[string]interface{}{logger.RunIDField: ctl.RunID()})

	var plan models.ExecutionPlan
	if mode == models.ModeSimple {
		plan = models.SingleTaskPlan(goal, h.loop.opts.MaxIterations)
	} else {
		var err error
		l.Info().Str("goal", goal).Msg("creating plan...")
		plan, err = h.planner.CreatePlan(ctx, goal)
		if err != nil {
			l.Error().Err(err).Msg("planning failed")
			state := models.NewAgentState(goal)
			answer := "Stopped due to unrecoverable planning failure: " + err.Error()
			state.Complete(models.OutcomePlanningFailed, answer)
			h.sink.Publish(events.Event{Type: events.RunFailed, RunID: ctl.RunID(), Message: answer, Outcome: state.Outcome, Time: time.Now()})
			return state, nil
		}
	}
	if plan.Fallback {
		l.Warn().Str("reason", plan.FallbackReason).Msg("using fallback plan")
	}
	h.sink.Publish(events.Event{Type: events.PlanCreated, RunID: ctl.RunID(), Plan: &plan, Message: plan.Analysis, Time: time.Now()})

	var state *models.AgentState
	if mode == models.ModePlan {
		state = h.loop.Run(ctx, ctl, goal, plan)
	} else {
		state = h.loop.RunTaskByTask(ctx, ctl, goal, plan)
	}
	l.Info().Str("outcome", string(state.Outcome)).Int(logger.IterationField, state.Iteration).Msg("run finished")
	return state, &plan
}

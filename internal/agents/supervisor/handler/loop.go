package handler

import (
	"context"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	decisionHandler "go-autoagent/internal/agents/decision/handler"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"slices"
	"strings"
	"time"
)

type Decider interface {
	Decide(ctx context.Context, state *models.AgentState, plan models.ExecutionPlan) (models.Action, error)
	DecideForTask(ctx context.Context, state *models.AgentState, task models.Task) (models.Action, error)
}

type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any) models.ToolResult
}

type Options struct {
	MaxIterations       int
	TaskStepSlack       int
	MaxFinishRejections int
}

func DefaultOptions() Options {
	return Options{MaxIterations: 15, TaskStepSlack: 5, MaxFinishRejections: 2}
}

var errCancelled = errors.New("run cancelled")

// Loop drives Think -> Act -> Observe for one goal. It never runs more than one
// tool call per decision and never returns an error: every run ends in one of
// the outcomes recorded on the returned state.
type Loop struct {
	decider  Decider
	executor Executor
	sink     events.Sink
	opts     Options
}

func NewLoop(decider Decider, executor Executor, sink events.Sink, opts Options) *Loop {
	if sink == nil {
		sink = events.Discard
	}
	if opts.MaxIterations < 1 {
		opts.MaxIterations = DefaultOptions().MaxIterations
	}
	if opts.TaskStepSlack < 0 {
		opts.TaskStepSlack = 0
	}
	return &Loop{decider: decider, executor: executor, sink: sink, opts: opts}
}

func (l *Loop) Options() Options {
	return l.opts
}

// Run works the whole plan at once. A finish counts as accomplished only when every
// task passes the completion heuristic; after MaxFinishRejections refusals the run
// ends unconfirmed.
func (l *Loop) Run(ctx context.Context, ctl *Control, goal string, plan models.ExecutionPlan) *models.AgentState {
	log := l.logger(ctl)
	state := models.NewAgentState(goal)
	rejections := 0

	for state.Iteration < l.opts.MaxIterations {
		if l.cancelled(ctx, ctl) {
			return l.cancel(ctl, state)
		}
		l.emit(ctl, events.Event{Type: events.ThinkStarted, Iteration: state.Iteration})
		action, err := l.decide(ctx, func(ctx context.Context) (models.Action, error) {
			return l.decider.Decide(ctx, state, plan)
		})
		if err != nil {
			log.Error().Err(err).Int(logger.IterationField, state.Iteration).Msg("decision failed")
			l.observe(ctl, state, models.ErrorObservation(models.Think{Reasoning: "decision failed"}, models.KindExecution, err))
			continue
		}

		switch a := action.(type) {
		case models.Finish:
			progress := decisionHandler.PlanStatus(plan, state.Observations)
			if !a.Fallback && progress.Done() {
				return l.complete(ctl, state, "Goal accomplished: "+a.Reasoning)
			}
			if !a.Fallback && rejections < l.opts.MaxFinishRejections {
				rejections++
				log.Warn().Ints("incomplete", progress.Incomplete()).Int("rejections", rejections).Msg("finish rejected, plan not complete")
				err := fmt.Errorf("finish rejected: tasks %v are not complete yet (%d/%d done)", progress.Incomplete(), progress.Completed, progress.Total)
				l.observe(ctl, state, models.ErrorObservation(models.Think{Reasoning: a.Reasoning}, models.KindProtocol, err))
				continue
			}
			return l.unconfirmed(ctl, state, fmt.Sprintf("Finished without confirmation: %s; %d/%d tasks complete.",
				a.Reasoning, progress.Completed, progress.Total))
		case models.Think:
			l.observe(ctl, state, models.Observation{Action: a, Status: models.StatusSuccess, Summary: a.Reasoning, Time: time.Now()})
		case models.ToolCall:
			l.observe(ctl, state, l.act(ctx, ctl, state, a, 0))
		}
	}

	progress := decisionHandler.PlanStatus(plan, state.Observations)
	return l.exhaust(ctl, state, fmt.Sprintf("Stopped due to iteration limit (%d) before the goal was accomplished; %d/%d tasks complete.",
		l.opts.MaxIterations, progress.Completed, progress.Total))
}

// RunTaskByTask walks the tasks in execution order. Each task gets
// estimated_steps + TaskStepSlack decisions; running out moves on to the next task.
func (l *Loop) RunTaskByTask(ctx context.Context, ctl *Control, goal string, plan models.ExecutionPlan) *models.AgentState {
	log := l.logger(ctl)
	state := models.NewAgentState(goal)
	exhausted := make([]int, 0)
	unconfirmed := make([]int, 0)
	finished := make([]string, 0)

	for _, task := range plan.Ordered() {
		tl := log.With().Int(logger.TaskField, task.ID).Logger()
		l.emit(ctl, events.Event{Type: events.TaskStarted, Iteration: state.Iteration, TaskID: task.ID, Message: task.Description})

		bound := task.EstimatedSteps
		if bound < 1 {
			bound = 1
		}
		bound += l.opts.TaskStepSlack

		done := false
		for step := 0; step < bound && !done; step++ {
			if l.cancelled(ctx, ctl) {
				return l.cancel(ctl, state)
			}
			if state.Iteration >= l.opts.MaxIterations {
				return l.exhaust(ctl, state, fmt.Sprintf("Stopped due to iteration limit (%d) while working on task %d.", l.opts.MaxIterations, task.ID))
			}
			l.emit(ctl, events.Event{Type: events.ThinkStarted, Iteration: state.Iteration, TaskID: task.ID})
			action, err := l.decide(ctx, func(ctx context.Context) (models.Action, error) {
				return l.decider.DecideForTask(ctx, state, task)
			})
			if err != nil {
				tl.Error().Err(err).Msg("decision failed")
				o := models.ErrorObservation(models.Think{Reasoning: "decision failed"}, models.KindExecution, err)
				o.TaskID = task.ID
				l.observe(ctl, state, o)
				continue
			}

			switch a := action.(type) {
			case models.Finish:
				done = true
				if a.Fallback {
					tl.Warn().Str("reason", a.Reasoning).Msg("task ended on a reply that could not be understood")
					unconfirmed = append(unconfirmed, task.ID)
					break
				}
				if !decisionHandler.TaskComplete(task, state.ObservationsForTask(task.ID)) {
					tl.Warn().Str("progress", decisionHandler.Progress(task, state.ObservationsForTask(task.ID)).String()).
						Msg("model marked the task complete before the heuristic agrees")
				}
				finished = append(finished, fmt.Sprintf("task %d: %s", task.ID, a.Reasoning))
			case models.Think:
				l.observe(ctl, state, models.Observation{Action: a, Status: models.StatusSuccess, Summary: a.Reasoning, TaskID: task.ID, Time: time.Now()})
			case models.ToolCall:
				l.observe(ctl, state, l.act(ctx, ctl, state, a, task.ID))
			}
		}

		msg := "task complete"
		if slices.Contains(unconfirmed, task.ID) {
			msg = "ended without confirmation"
		}
		if !done {
			tl.Warn().Int("bound", bound).Msg("task step budget exhausted, moving on")
			exhausted = append(exhausted, task.ID)
			msg = fmt.Sprintf("step budget of %d exhausted", bound)
		}
		l.emit(ctl, events.Event{Type: events.TaskFinished, Iteration: state.Iteration, TaskID: task.ID, Message: msg})
	}

	if len(exhausted) > 0 {
		return l.exhaust(ctl, state, fmt.Sprintf("Stopped due to iteration limit: tasks %v ran out of steps before they were complete.", exhausted))
	}
	if len(unconfirmed) > 0 {
		return l.unconfirmed(ctl, state, fmt.Sprintf("Finished without confirmation: tasks %v ended on model replies that could not be understood.", unconfirmed))
	}
	answer := "Goal accomplished."
	if len(finished) > 0 {
		answer = "Goal accomplished: " + strings.Join(finished, "; ")
	}
	return l.complete(ctl, state, answer)
}

// decide runs one decision, turning a panic into an error.
func (l *Loop) decide(ctx context.Context, fn func(context.Context) (models.Action, error)) (action models.Action, err error) {
	defer func() {
		if r := recover(); r != nil {
			action, err = nil, fmt.Errorf("decision panicked: %v", r)
		}
	}()
	action, err = fn(ctx)
	if err == nil && action == nil {
		err = errors.New("decision returned no action")
	}
	return action, err
}

func (l *Loop) act(ctx context.Context, ctl *Control, state *models.AgentState, call models.ToolCall, taskID int) (o models.Observation) {
	l.emit(ctl, events.Event{Type: events.ActStarted, Iteration: state.Iteration, TaskID: taskID, Action: call, Message: call.UserUpdate})
	defer func() {
		if r := recover(); r != nil {
			o = models.ErrorObservation(call, models.KindExecution, fmt.Errorf("tool %s panicked: %v", call.Tool, r))
		}
		o.TaskID = taskID
	}()
	return models.ObservationFromResult(call, l.executor.Execute(ctx, call.Tool, call.Parameters))
}

func (l *Loop) observe(ctl *Control, state *models.AgentState, o models.Observation) {
	o = state.AddObservation(o)
	l.emit(ctl, events.Event{Type: events.Observed, Iteration: o.Iteration, TaskID: o.TaskID, Action: o.Action, Observation: &o})
}

func (l *Loop) cancelled(ctx context.Context, ctl *Control) bool {
	return (ctl != nil && ctl.Stopped()) || ctx.Err() != nil
}

func (l *Loop) complete(ctl *Control, state *models.AgentState, answer string) *models.AgentState {
	state.Complete(models.OutcomeCompleted, answer)
	l.emit(ctl, events.Event{Type: events.RunCompleted, Iteration: state.Iteration, Message: answer, Outcome: state.Outcome})
	return state
}

func (l *Loop) exhaust(ctl *Control, state *models.AgentState, answer string) *models.AgentState {
	log := l.logger(ctl)
	log.Warn().Int(logger.IterationField, state.Iteration).Msg("run stopped by iteration budget")
	state.Complete(models.OutcomeBudgetExhausted, answer)
	l.emit(ctl, events.Event{Type: events.RunCompleted, Iteration: state.Iteration, Message: answer, Outcome: state.Outcome})
	return state
}

func (l *Loop) unconfirmed(ctl *Control, state *models.AgentState, answer string) *models.AgentState {
	log := l.logger(ctl)
	log.Warn().Int(logger.IterationField, state.Iteration).Msg("run finished without confirmation")
	state.Complete(models.OutcomeUnconfirmed, answer)
	l.emit(ctl, events.Event{Type: events.RunCompleted, Iteration: state.Iteration, Message: answer, Outcome: state.Outcome})
	return state
}

func (l *Loop) cancel(ctl *Control, state *models.AgentState) *models.AgentState {
	answer := "Stopped: " + errCancelled.Error() + "."
	state.Complete(models.OutcomeCancelled, answer)
	l.emit(ctl, events.Event{Type: events.RunFailed, Iteration: state.Iteration, Message: answer, Outcome: state.Outcome})
	return state
}

func (l *Loop) emit(ctl *Control, e events.Event) {
	if ctl != nil {
		e.RunID = ctl.RunID()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	l.sink.Publish(e)
}

func (l *Loop) logger(ctl *Control) zerolog.Logger {
	fields := map[string]interface{}{}
	if ctl != nil {
		fields[logger.RunIDField] = ctl.RunID()
	}
	return logger.Agent("supervisor", fields)
}

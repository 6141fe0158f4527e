package handler

import (
	"context"
	"fmt"
	"github.com/rs/zerolog"
	"go-autoagent/pkg/data"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/memory/buffer"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/prompts"
	"go-autoagent/pkg/template"
)

type Catalogue interface {
	Catalogue() string
}

type Options struct {
	MaxIterations int
	TaskStepSlack int
	HistoryWindow int
}

func DefaultOptions() Options {
	return Options{MaxIterations: 15, TaskStepSlack: 5, HistoryWindow: 10}
}

type Handler struct {
	model     llm.Model
	tools     Catalogue
	workspace string
	memory    *buffer.Memories
	opts      Options
	log       zerolog.Logger
}

func New(model llm.Model, tools Catalogue, workspace string, memory *buffer.Memories, opts Options) *Handler {
	if memory == nil {
		memory = buffer.New()
	}
	return &Handler{
		model:     model,
		tools:     tools,
		workspace: workspace,
		memory:    memory,
		opts:      opts,
		log:       logger.Agent("decision", nil),
	}
}

type planInput struct {
	Goal          string
	Workspace     string
	Tools         string
	Plan          string
	Completed     int
	Total         int
	Collected     string
	History       string
	Iteration     int
	MaxIterations int
	Note          string
}

type taskInput struct {
	Goal      string
	Workspace string
	Tools     string
	Task      models.Task
	Progress  string
	Step      int
	MaxSteps  int
	Collected string
	History   string
}

// Decide picks the next action for the whole plan. A reply that cannot be
// understood becomes a Finish; only a failed model call is returned as an error.
func (h *Handler) Decide(ctx context.Context, state *models.AgentState, plan models.ExecutionPlan) (models.Action, error) {
	progress := PlanStatus(plan, state.Observations)
	in := planInput{
		Goal:          state.Goal,
		Workspace:     h.workspace,
		Tools:         h.tools.Catalogue(),
		Plan:          progress.Lines(),
		Completed:     progress.Completed,
		Total:         progress.Total,
		Collected:     state.CollectedData(),
		History:       state.HistorySummary(h.opts.HistoryWindow),
		Iteration:     state.Iteration + 1,
		MaxIterations: h.opts.MaxIterations,
	}
	if n := len(state.Observations); n > 0 {
		if last := state.Observations[n-1]; last.Action.Type() == models.ActionThink && !last.OK() {
			in.Note = last.Summary
		}
	}

	hRes := h.ask(ctx, "decision", prompts.PlanDecisionTemplate, in)
	if hRes.Error != nil {
		return nil, hRes.Error
	}
	match, err := data.SanitizeAnswer(hRes.Answer)
	if err != nil {
		return h.toAction(invalidReply{Reason: err.Error()}), nil
	}
	return h.toAction(decodePlanReply(match)), nil
}

// DecideForTask picks the next action for a single task, looking only at the
// observations recorded for it.
func (h *Handler) DecideForTask(ctx context.Context, state *models.AgentState, task models.Task) (models.Action, error) {
	observations := state.ObservationsForTask(task.ID)
	scoped := &models.AgentState{Goal: state.Goal, Observations: observations, Iteration: len(observations)}
	in := taskInput{
		Goal:      state.Goal,
		Workspace: h.workspace,
		Tools:     h.tools.Catalogue(),
		Task:      task,
		Progress:  Progress(task, observations).String(),
		Step:      len(observations) + 1,
		MaxSteps:  task.EstimatedSteps + h.opts.TaskStepSlack,
		Collected: state.CollectedData(),
		History:   scoped.HistorySummary(h.opts.HistoryWindow),
	}

	hRes := h.ask(ctx, "task_decision", prompts.TaskDecisionTemplate, in)
	if hRes.Error != nil {
		return nil, hRes.Error
	}
	match, err := data.SanitizeAnswer(hRes.Answer)
	if err != nil {
		return h.toAction(invalidReply{Reason: err.Error()}), nil
	}
	return h.toAction(decodeTaskReply(match)), nil
}

func (h *Handler) ask(ctx context.Context, kind, tmpl string, in any) models.HandlerResult {
	question, err := template.Parse(tmpl, in)
	if err != nil {
		return models.HandlerResult{Error: fmt.Errorf("execute: %w", err)}
	}
	answer, err := h.model.Complete(ctx, question)
	if err != nil {
		return models.HandlerResult{Question: question, Error: fmt.Errorf("call: %w", err)}
	}
	h.memory.Add(buffer.Memory{Kind: kind, Question: question, Answer: answer})
	return models.HandlerResult{Question: question, Answer: answer}
}

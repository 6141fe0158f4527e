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

// Catalogue describes the tools the plan may use.
type Catalogue interface {
	Catalogue() string
	Names() []string
}

type Handler struct {
	model     llm.Model
	tools     Catalogue
	workspace string
	memory    *buffer.Memories
	log       zerolog.Logger
}

func New(model llm.Model, tools Catalogue, workspace string, memory *buffer.Memories) *Handler {
	if memory == nil {
		memory = buffer.New()
	}
	return &Handler{
		model:     model,
		tools:     tools,
		workspace: workspace,
		memory:    memory,
		log:       logger.Agent("planner", nil),
	}
}

type input struct {
	Goal      string
	Workspace string
	Tools     string
}

func (h *Handler) Plan(ctx context.Context, goal string) models.HandlerResult {
	question, err := template.Parse(prompts.PlanTemplate, input{
		Goal:      goal,
		Workspace: h.workspace,
		Tools:     h.tools.Catalogue(),
	})
	if err != nil {
		return models.HandlerResult{Error: fmt.Errorf("execute: %w", err)}
	}

	answer, err := h.model.Complete(ctx, question)
	if err != nil {
		return models.HandlerResult{Question: question, Error: fmt.Errorf("call: %w", err)}
	}

	return models.HandlerResult{Question: question, Answer: answer}
}

// CreatePlan asks the model for a plan. An unusable reply degrades to the
// single task fallback plan; only a failed model call is returned as an error.
func (h *Handler) CreatePlan(ctx context.Context, goal string) (models.ExecutionPlan, error) {
	h.log.Info().Msg("planning...")
	hRes := h.Plan(ctx, goal)
	if hRes.Error != nil {
		return models.ExecutionPlan{}, fmt.Errorf("plan: %w", hRes.Error)
	}
	h.memory.Add(buffer.Memory{Kind: "plan", Question: hRes.Question, Answer: hRes.Answer})

	match, err := data.SanitizeAnswer(hRes.Answer)
	if err != nil {
		h.log.Warn().Err(err).Msg("planner reply has no structured block, using fallback plan")
		return models.FallbackPlan(goal, err.Error()), nil
	}

	plan, err := parseAnswer(goal, match, h.tools.Names(), h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("unable to parse plan, using fallback plan")
		return models.FallbackPlan(goal, err.Error()), nil
	}

	h.log.Info().Int("tasks", len(plan.Tasks)).Ints("order", plan.ExecutionOrder).Msg("plan created")
	return plan, nil
}

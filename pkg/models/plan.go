package models

import (
	"strings"
)

type TaskKind string

const (
	KindRead     TaskKind = "read"
	KindWrite    TaskKind = "write"
	KindEdit     TaskKind = "edit"
	KindSearch   TaskKind = "search"
	KindAnalyze  TaskKind = "analyze"
	KindOrganize TaskKind = "organize"
)

// ParseTaskKind maps a model supplied kind onto a known one; anything unknown is analyze.
func ParseTaskKind(s string) TaskKind {
	switch k := TaskKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindRead, KindWrite, KindEdit, KindSearch, KindAnalyze, KindOrganize:
		return k
	}
	return KindAnalyze
}

type Task struct {
	ID             int      `json:"id"`
	Kind           TaskKind `json:"type"`
	Description    string   `json:"description"`
	RequiredTools  []string `json:"required_tools"`
	Dependencies   []int    `json:"dependencies"`
	EstimatedSteps int      `json:"estimated_steps"`
}

func (t Task) Requires(tool string) bool {
	for _, name := range t.RequiredTools {
		if name == tool {
			return true
		}
	}
	return false
}

type ExecutionPlan struct {
	Goal                string `json:"goal"`
	Analysis            string `json:"analysis,omitempty"`
	Reasoning           string `json:"reasoning,omitempty"`
	Tasks               []Task `json:"tasks"`
	TotalEstimatedSteps int    `json:"total_estimated_steps"`
	ExecutionOrder      []int  `json:"execution_order"`
	Fallback            bool   `json:"fallback,omitempty"`
	FallbackReason      string `json:"fallback_reason,omitempty"`
}

func (p ExecutionPlan) Task(id int) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Ordered returns the tasks in execution order.
func (p ExecutionPlan) Ordered() []Task {
	res := make([]Task, 0, len(p.ExecutionOrder))
	for _, id := range p.ExecutionOrder {
		if t, ok := p.Task(id); ok {
			res = append(res, t)
		}
	}
	return res
}

const fallbackSteps = 3

// FallbackPlan covers the whole goal with a single analyze task.
func FallbackPlan(goal, reason string) ExecutionPlan {
	return ExecutionPlan{
		Goal:     goal,
		Analysis: "fallback plan: " + reason,
		Tasks: []Task{{
			ID:             1,
			Kind:           KindAnalyze,
			Description:    goal,
			RequiredTools:  []string{},
			Dependencies:   []int{},
			EstimatedSteps: fallbackSteps,
		}},
		TotalEstimatedSteps: fallbackSteps,
		ExecutionOrder:      []int{1},
		Fallback:            true,
		FallbackReason:      reason,
	}
}

// SingleTaskPlan is the plan used when a goal is run without the planner.
func SingleTaskPlan(goal string, steps int) ExecutionPlan {
	if steps < 1 {
		steps = 1
	}
	return ExecutionPlan{
		Goal: goal,
		Tasks: []Task{{
			ID:             1,
			Kind:           KindAnalyze,
			Description:    goal,
			RequiredTools:  []string{},
			Dependencies:   []int{},
			EstimatedSteps: steps,
		}},
		TotalEstimatedSteps: steps,
		ExecutionOrder:      []int{1},
	}
}

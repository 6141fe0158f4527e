package handler

import (
	"fmt"
	"go-autoagent/pkg/models"
	"sort"
	"strings"
)

// Tools whose estimated steps count distinct targets rather than calls.
var perItemTools = map[string]bool{
	"read_file":  true,
	"write_file": true,
}

type TaskProgress struct {
	Task       models.Task    `json:"task"`
	Complete   bool           `json:"complete"`
	Successful map[string]int `json:"successful"`
	Distinct   map[string]int `json:"distinct"`
	Calls      int            `json:"calls"`
}

// Progress checks the observations against what the task said it needs:
// every required tool must have succeeded, successful calls of those tools must
// reach estimated_steps, and per-item tools must have touched enough distinct
// paths. A task without required tools needs any successful tool call.
func Progress(task models.Task, observations []models.Observation) TaskProgress {
	p := TaskProgress{Task: task, Successful: map[string]int{}, Distinct: map[string]int{}}
	paths := map[string]map[string]struct{}{}
	for _, o := range observations {
		tc, ok := o.ToolCall()
		if !ok || !o.OK() {
			continue
		}
		p.Calls++
		p.Successful[tc.Tool]++
		if path, ok := tc.Parameters["path"].(string); ok && path != "" {
			if paths[tc.Tool] == nil {
				paths[tc.Tool] = map[string]struct{}{}
			}
			paths[tc.Tool][strings.TrimPrefix(path, "./")] = struct{}{}
		}
	}
	for tool, set := range paths {
		p.Distinct[tool] = len(set)
	}
	p.Complete = complete(task, p)
	return p
}

func complete(task models.Task, p TaskProgress) bool {
	if len(task.RequiredTools) == 0 {
		return p.Calls > 0
	}
	total := 0
	for _, tool := range task.RequiredTools {
		if p.Successful[tool] == 0 {
			return false
		}
		total += p.Successful[tool]
	}
	if total < task.EstimatedSteps {
		return false
	}
	need := task.EstimatedSteps - (len(task.RequiredTools) - 1)
	if need < 1 {
		need = 1
	}
	for tool := range perItemTools {
		if task.Requires(tool) && p.Distinct[tool] < need {
			return false
		}
	}
	return true
}

// TaskComplete is the completion heuristic used before the loop accepts a finish.
func TaskComplete(task models.Task, observations []models.Observation) bool {
	return Progress(task, observations).Complete
}

func (p TaskProgress) String() string {
	if len(p.Task.RequiredTools) == 0 {
		return fmt.Sprintf("%d successful tool calls", p.Calls)
	}
	parts := make([]string, 0, len(p.Task.RequiredTools))
	for _, tool := range p.Task.RequiredTools {
		if perItemTools[tool] {
			parts = append(parts, fmt.Sprintf("%s %d/%d distinct", tool, p.Distinct[tool], p.Task.EstimatedSteps))
		} else {
			parts = append(parts, fmt.Sprintf("%s %d ok", tool, p.Successful[tool]))
		}
	}
	return strings.Join(parts, ", ")
}

type PlanProgress struct {
	Tasks     []TaskProgress `json:"tasks"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
}

func PlanStatus(plan models.ExecutionPlan, observations []models.Observation) PlanProgress {
	res := PlanProgress{Total: len(plan.Tasks), Tasks: make([]TaskProgress, 0, len(plan.Tasks))}
	for _, task := range plan.Ordered() {
		p := Progress(task, observations)
		if p.Complete {
			res.Completed++
		}
		res.Tasks = append(res.Tasks, p)
	}
	return res
}

func (p PlanProgress) Done() bool {
	return p.Completed == p.Total
}

func (p PlanProgress) Incomplete() []int {
	ids := make([]int, 0)
	for _, t := range p.Tasks {
		if !t.Complete {
			ids = append(ids, t.Task.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

// Lines renders the plan with a completion mark per task.
func (p PlanProgress) Lines() string {
	var b strings.Builder
	for _, t := range p.Tasks {
		mark := "○"
		if t.Complete {
			mark = "✓"
		}
		tools := "none"
		if len(t.Task.RequiredTools) > 0 {
			tools = strings.Join(t.Task.RequiredTools, ", ")
		}
		deps := ""
		if len(t.Task.Dependencies) > 0 {
			deps = fmt.Sprintf("; after %v", t.Task.Dependencies)
		}
		fmt.Fprintf(&b, "%s %d. [%s] %s (tools: %s; steps: %d%s; progress: %s)\n",
			mark, t.Task.ID, t.Task.Kind, t.Task.Description, tools, t.Task.EstimatedSteps, deps, t.String())
	}
	return strings.TrimRight(b.String(), "\n")
}

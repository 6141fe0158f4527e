package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"go-autoagent/pkg/models"
	"sort"
	"strconv"
	"strings"
)

// intish accepts 3 as well as "3".
type intish int

func (i *intish) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*i = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*i = intish(f)
	return nil
}

type taskReply struct {
	ID             intish   `json:"id"`
	Type           string   `json:"type"`
	Description    string   `json:"description"`
	RequiredTools  []string `json:"required_tools"`
	Dependencies   []intish `json:"dependencies"`
	EstimatedSteps intish   `json:"estimated_steps"`
}

type planReply struct {
	Analysis       string      `json:"analysis"`
	Tasks          []taskReply `json:"tasks"`
	ExecutionOrder []intish    `json:"execution_order"`
	Reasoning      string      `json:"reasoning"`
}

func parseAnswer(goal, answer string, known []string, l zerolog.Logger) (models.ExecutionPlan, error) {
	var reply planReply
	if err := json.Unmarshal([]byte(answer), &reply); err != nil {
		return models.ExecutionPlan{}, fmt.Errorf("unmarshal: %w", err)
	}
	if len(reply.Tasks) == 0 {
		return models.ExecutionPlan{}, errors.New("plan has no tasks")
	}

	knownTools := make(map[string]struct{}, len(known))
	for _, name := range known {
		knownTools[name] = struct{}{}
	}

	plan := models.ExecutionPlan{
		Goal:      goal,
		Analysis:  reply.Analysis,
		Reasoning: reply.Reasoning,
		Tasks:     make([]models.Task, 0, len(reply.Tasks)),
	}
	ids := make(map[int]struct{}, len(reply.Tasks))
	for i, tr := range reply.Tasks {
		id := int(tr.ID)
		if id <= 0 {
			id = i + 1
		}
		if _, dup := ids[id]; dup {
			return models.ExecutionPlan{}, fmt.Errorf("duplicate task id %d", id)
		}
		ids[id] = struct{}{}

		task := models.Task{
			ID:             id,
			Kind:           models.ParseTaskKind(tr.Type),
			Description:    strings.TrimSpace(tr.Description),
			RequiredTools:  make([]string, 0, len(tr.RequiredTools)),
			EstimatedSteps: int(tr.EstimatedSteps),
		}
		if task.Description == "" {
			task.Description = fmt.Sprintf("task %d of: %s", id, goal)
		}
		if task.EstimatedSteps < 1 {
			task.EstimatedSteps = 1
		}
		for _, name := range tr.RequiredTools {
			name = strings.TrimSpace(name)
			if _, ok := knownTools[name]; !ok {
				l.Warn().Int("task", id).Str("tool", name).Msg("plan references an unknown tool, dropping it")
				continue
			}
			task.RequiredTools = appendUnique(task.RequiredTools, name)
		}
		plan.Tasks = append(plan.Tasks, task)
	}

	for i := range plan.Tasks {
		deps := make([]int, 0, len(reply.Tasks[i].Dependencies))
		for _, d := range reply.Tasks[i].Dependencies {
			dep := int(d)
			if _, ok := ids[dep]; !ok || dep == plan.Tasks[i].ID {
				l.Warn().Int("task", plan.Tasks[i].ID).Int("dependency", dep).Msg("dropping invalid dependency")
				continue
			}
			if !containsInt(deps, dep) {
				deps = append(deps, dep)
			}
		}
		plan.Tasks[i].Dependencies = deps
		plan.TotalEstimatedSteps += plan.Tasks[i].EstimatedSteps
	}

	order, err := topologicalOrder(plan.Tasks, reply.ExecutionOrder)
	if err != nil {
		return models.ExecutionPlan{}, err
	}
	plan.ExecutionOrder = order
	return plan, nil
}

// topologicalOrder runs Kahn's algorithm. Among ready tasks the one the model
// listed earliest goes first; tasks it did not list follow in plan order.
func topologicalOrder(tasks []models.Task, preferred []intish) ([]int, error) {
	rank := make(map[int]int, len(tasks))
	for i, id := range preferred {
		if _, seen := rank[int(id)]; !seen {
			rank[int(id)] = i
		}
	}
	for i, t := range tasks {
		if _, ok := rank[t.ID]; !ok {
			rank[t.ID] = len(preferred) + i
		}
	}

	indegree := make(map[int]int, len(tasks))
	dependents := make(map[int][]int, len(tasks))
	for _, t := range tasks {
		indegree[t.ID] += 0
		for _, d := range t.Dependencies {
			indegree[t.ID]++
			dependents[d] = append(dependents[d], t.ID)
		}
	}

	ready := make([]int, 0)
	for _, t := range tasks {
		if indegree[t.ID] == 0 {
			ready = append(ready, t.ID)
		}
	}

	order := make([]int, 0, len(tasks))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return rank[ready[i]] < rank[ready[j]] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)
		for _, next := range dependents[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(tasks) {
		return nil, errors.New("task dependencies contain a cycle")
	}
	return order, nil
}

func appendUnique(items []string, s string) []string {
	for _, item := range items {
		if item == s {
			return items
		}
	}
	return append(items, s)
}

func containsInt(items []int, v int) bool {
	for _, item := range items {
		if item == v {
			return true
		}
	}
	return false
}

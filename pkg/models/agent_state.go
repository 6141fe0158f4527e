package models

import (
	"fmt"
	"strings"
)

// AgentState belongs to exactly one run. It only grows: observations are appended and
// the iteration counter moves forward by one for each of them.
type AgentState struct {
	Goal         string        `json:"goal"`
	Observations []Observation `json:"observations"`
	Iteration    int           `json:"iteration"`
	IsComplete   bool          `json:"is_complete"`
	FinalAnswer  string        `json:"final_answer,omitempty"`
	Outcome      Outcome       `json:"outcome,omitempty"`
}

func NewAgentState(goal string) *AgentState {
	return &AgentState{Goal: goal, Observations: make([]Observation, 0)}
}

func (s *AgentState) AddObservation(o Observation) Observation {
	s.Iteration++
	o.Iteration = s.Iteration
	s.Observations = append(s.Observations, o)
	return o
}

func (s *AgentState) Complete(outcome Outcome, answer string) {
	s.IsComplete = outcome == OutcomeCompleted
	s.Outcome = outcome
	s.FinalAnswer = answer
}

// ObservationsForTask returns the observations recorded while the given task was active.
func (s *AgentState) ObservationsForTask(id int) []Observation {
	res := make([]Observation, 0)
	for _, o := range s.Observations {
		if o.TaskID == id {
			res = append(res, o)
		}
	}
	return res
}

// HistorySummary renders the last n observations as prompt lines.
func (s *AgentState) HistorySummary(n int) string {
	if len(s.Observations) == 0 {
		return "No actions taken yet."
	}
	start := 0
	if n > 0 && len(s.Observations) > n {
		start = len(s.Observations) - n
	}
	var b strings.Builder
	for _, o := range s.Observations[start:] {
		mark := "✓"
		if !o.OK() {
			mark = "✗"
		}
		label := string(o.Action.Type())
		if tc, ok := o.ToolCall(); ok {
			label = tc.Tool
		}
		fmt.Fprintf(&b, "%d. %s %s: %s\n", o.Iteration, mark, label, o.Summary)
	}
	return strings.TrimRight(b.String(), "\n")
}

// CollectedData lists the paths already listed and read, so the model does not repeat work.
func (s *AgentState) CollectedData() string {
	listed := make([]string, 0)
	read := make([]string, 0)
	written := make([]string, 0)
	for _, o := range s.Observations {
		tc, ok := o.ToolCall()
		if !ok || !o.OK() {
			continue
		}
		path, _ := tc.Parameters["path"].(string)
		switch tc.Tool {
		case "list_directory":
			if path == "" {
				path = "."
			}
			listed = append(listed, path)
		case "read_file":
			read = append(read, path)
		case "write_file", "edit_file":
			written = append(written, path)
		}
	}
	var b strings.Builder
	if len(listed) > 0 {
		fmt.Fprintf(&b, "Directories listed: %s\n", strings.Join(listed, ", "))
	}
	if len(read) > 0 {
		fmt.Fprintf(&b, "Files read: %s\n", strings.Join(read, ", "))
	}
	if len(written) > 0 {
		fmt.Fprintf(&b, "Files written: %s\n", strings.Join(written, ", "))
	}
	if b.Len() == 0 {
		return "Nothing collected yet."
	}
	return strings.TrimRight(b.String(), "\n")
}

package models

import (
	"time"
)

type Error struct {
	ErrMessage string      `json:"error,omitempty"`
	Message    interface{} `json:"message,omitempty"`
	Time       *time.Time  `json:"time,omitempty"`
}

type Run struct {
	ID          string         `json:"id"`
	Goal        string         `json:"goal"`
	Mode        Mode           `json:"mode"`
	State       State          `json:"state"`
	Iteration   int            `json:"iteration"`
	Plan        *ExecutionPlan `json:"plan,omitempty"`
	CurrentTask int            `json:"current_task,omitempty"`
	LastSummary string         `json:"last_summary,omitempty"`
	UserUpdate  string         `json:"user_update,omitempty"`
	Outcome     Outcome        `json:"outcome,omitempty"`
	FinalAnswer string         `json:"final_answer,omitempty"`
	Errs        *Error         `json:"errors,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  *time.Time     `json:"finished_at,omitempty"`
}

type Status struct {
	SessionID string `json:"session_id"`
	Workspace string `json:"workspace"`
	State     State  `json:"state"`
	Active    *Run   `json:"active,omitempty"`
	History   []Run  `json:"history"`
}

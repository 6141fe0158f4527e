package models

import (
	"time"
)

type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// ErrorKind separates security blocks from ordinary tool failures.
type ErrorKind string

const (
	KindNone       ErrorKind = ""
	KindSecurity   ErrorKind = "security"
	KindValidation ErrorKind = "validation"
	KindExecution  ErrorKind = "execution"
	KindTimeout    ErrorKind = "timeout"
	KindProtocol   ErrorKind = "protocol"
)

type ToolResult struct {
	Tool          string        `json:"tool"`
	Status        ResultStatus  `json:"status"`
	Result        any           `json:"result,omitempty"`
	Error         string        `json:"error,omitempty"`
	Kind          ErrorKind     `json:"kind,omitempty"`
	ExecutionTime time.Duration `json:"execution_time"`
	Summary       string        `json:"summary,omitempty"`
	Schema        any           `json:"schema,omitempty"`
	Available     []string      `json:"available,omitempty"`
}

func (r ToolResult) OK() bool {
	return r.Status == StatusSuccess
}

type Observation struct {
	Action    Action       `json:"action"`
	Status    ResultStatus `json:"status"`
	Result    any          `json:"result,omitempty"`
	Summary   string       `json:"summary"`
	Error     string       `json:"error,omitempty"`
	Kind      ErrorKind    `json:"kind,omitempty"`
	Iteration int          `json:"iteration"`
	TaskID    int          `json:"task_id,omitempty"`
	Time      time.Time    `json:"time"`
}

func (o Observation) OK() bool {
	return o.Status == StatusSuccess
}

// ToolCall returns the tool call behind the observation, if any.
func (o Observation) ToolCall() (ToolCall, bool) {
	tc, ok := o.Action.(ToolCall)
	return tc, ok
}

// ObservationFromResult records the outcome of a tool call.
func ObservationFromResult(call ToolCall, res ToolResult) Observation {
	o := Observation{
		Action:  call,
		Status:  res.Status,
		Result:  res.Result,
		Summary: res.Summary,
		Error:   res.Error,
		Kind:    res.Kind,
		Time:    time.Now(),
	}
	if o.Summary == "" {
		if res.OK() {
			o.Summary = call.Tool + " succeeded"
		} else {
			o.Summary = call.Tool + " failed: " + res.Error
		}
	}
	return o
}

// ErrorObservation records a failure that happened outside any tool.
func ErrorObservation(action Action, kind ErrorKind, err error) Observation {
	return Observation{
		Action:  action,
		Status:  StatusError,
		Summary: err.Error(),
		Error:   err.Error(),
		Kind:    kind,
		Time:    time.Now(),
	}
}

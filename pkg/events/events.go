package events

import (
	"github.com/rs/zerolog"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"sync"
	"time"
)

type Type string

const (
	ThinkStarted Type = "think_started"
	ActStarted   Type = "act_started"
	Observed     Type = "observed"
	RunCompleted Type = "run_completed"
	RunFailed    Type = "run_failed"
	PlanCreated  Type = "plan_created"
	TaskStarted  Type = "task_started"
	TaskFinished Type = "task_finished"
)

type Event struct {
	Type        Type                  `json:"type"`
	RunID       string                `json:"run_id"`
	Iteration   int                   `json:"iteration"`
	TaskID      int                   `json:"task_id,omitempty"`
	Action      models.Action         `json:"action,omitempty"`
	Observation *models.Observation   `json:"observation,omitempty"`
	Plan        *models.ExecutionPlan `json:"plan,omitempty"`
	Message     string                `json:"message,omitempty"`
	Outcome     models.Outcome        `json:"outcome,omitempty"`
	Time        time.Time             `json:"time"`
}

// Sink receives lifecycle events. Publish must not block the loop for long.
type Sink interface {
	Publish(Event)
}

type Func func(Event)

func (f Func) Publish(e Event) { f(e) }

type discard struct{}

func (discard) Publish(Event) {}

var Discard Sink = discard{}

type multi []Sink

func (m multi) Publish(e Event) {
	for _, s := range m {
		s.Publish(e)
	}
}

// Multi fans an event out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	res := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			res = append(res, s)
		}
	}
	return res
}

// Chan delivers events on a buffered channel. When the buffer is full the
// event is dropped rather than stalling the run.
type Chan struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func NewChan(size int) *Chan {
	return &Chan{ch: make(chan Event, size)}
}

func (c *Chan) Events() <-chan Event {
	return c.ch
}

func (c *Chan) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.ch <- e:
	default:
	}
}

func (c *Chan) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}

type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) *LogSink {
	return &LogSink{log: l}
}

func (s *LogSink) Publish(e Event) {
	ev := s.log.Debug()
	switch e.Type {
	case RunCompleted, PlanCreated, TaskStarted, TaskFinished:
		ev = s.log.Info()
	case RunFailed:
		ev = s.log.Error()
	}
	ev = ev.Str("event", string(e.Type)).Str(logger.RunIDField, e.RunID).Int(logger.IterationField, e.Iteration)
	if e.TaskID != 0 {
		ev = ev.Int(logger.TaskField, e.TaskID)
	}
	if tc, ok := e.Action.(models.ToolCall); ok {
		ev = ev.Str(logger.ToolField, tc.Tool)
	}
	if e.Observation != nil {
		ev = ev.Str("status", string(e.Observation.Status)).Str("summary", e.Observation.Summary)
	}
	if e.Outcome != "" {
		ev = ev.Str("outcome", string(e.Outcome))
	}
	ev.Msg(e.Message)
}

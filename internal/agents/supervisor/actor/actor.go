package actor

import (
	"context"
	"fmt"
	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	decisionHandler "go-autoagent/internal/agents/decision/handler"
	plannerHandler "go-autoagent/internal/agents/planner/handler"
	"go-autoagent/internal/agents/supervisor/handler"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/llm"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/memory/buffer"
	"go-autoagent/pkg/messages"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/tools"
	"time"
)

type Config struct {
	Model       llm.Model
	Executor    *tools.Executor
	Sink        events.Sink
	Loop        handler.Options
	Decision    decisionHandler.Options
	StopTimeout time.Duration
}

type run struct {
	ctl    *handler.Control
	status models.Run
	memory *buffer.Memories
}

// Session owns one workspace and at most one active run. Runs execute on their
// own goroutine and report back through the mailbox.
type Session struct {
	id      uuid.UUID
	cfg     Config
	state   models.State
	active  *run
	history []models.Run
}

func New(id uuid.UUID, cfg Config) actor.Producer {
	if cfg.Sink == nil {
		cfg.Sink = events.Discard
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return func() actor.Actor {
		return &Session{
			id:      id,
			cfg:     cfg,
			state:   models.Init,
			history: make([]models.Run, 0),
		}
	}
}

func (agent *Session) Receive(ac actor.Context) {
	l := log.With().Fields(map[string]interface{}{
		logger.ActorIDField:   ac.Self().GetId(),
		logger.AgentNameField: "session",
		logger.SessionIDField: agent.id.String(),
	}).Logger()
	switch msg := ac.Message().(type) {
	case *actor.Started:
		l.Debug().Msg("starting actor")
		agent.state = models.Idle
	case *actor.Stopping:
		l.Debug().Msg("stopping actor")
		if agent.running() {
			agent.active.ctl.Stop()
		}
	case *actor.Stopped:
		l.Debug().Msg("stopped actor")
	case *actor.Restarting:
		l.Debug().Msg("restarting actor")
	case messages.StartGoal:
		l.Debug().Str(logger.RunIDField, msg.RunID.String()).Msg("StartGoal received")
		id, err := agent.start(ac, msg)
		if err != nil {
			l.Error().Err(err).Msg("unable to start run")
			agent.respond(ac, err)
			return
		}
		agent.respond(ac, messages.GoalStarted{RunID: id})
	case messages.CancelRun:
		if !agent.running() {
			agent.respond(ac, messages.RunCancelled{})
			return
		}
		id := agent.active.status.ID
		l.Info().Str(logger.RunIDField, id).Msg("cancelling run")
		agent.active.ctl.Stop()
		agent.respond(ac, messages.RunCancelled{RunID: uuid.MustParse(id), Active: true})
	case messages.GetStatus:
		agent.respond(ac, agent.status())
	case messages.RunEvent:
		agent.apply(msg)
	case messages.RunFinished:
		agent.finish(l, msg)
	default:
		l.Warn().Msgf("unknown message: %v", msg)
	}
}

func (agent *Session) respond(ac actor.Context, msg interface{}) {
	if ac.Sender() != nil {
		ac.Respond(msg)
	}
}

func (agent *Session) running() bool {
	if agent.active == nil {
		return false
	}
	select {
	case <-agent.active.ctl.Done():
		return false
	default:
		return true
	}
}

// start stops any active run, waiting up to StopTimeout, then launches the new goal.
func (agent *Session) start(ac actor.Context, msg messages.StartGoal) (uuid.UUID, error) {
	if msg.Goal == "" {
		return uuid.Nil, fmt.Errorf("goal is empty")
	}
	if agent.active != nil {
		prev := agent.active
		prev.ctl.Stop()
		if !prev.ctl.Wait(agent.cfg.StopTimeout) {
			return uuid.Nil, fmt.Errorf("run %s did not stop within %s", prev.status.ID, agent.cfg.StopTimeout)
		}
		// The run's RunFinished is still queued; it updates the history entry later.
		prev.status.State = models.Finished
		agent.history = append(agent.history, prev.status)
		agent.active = nil
	}

	mode := msg.Mode
	if mode == "" {
		mode = models.ModeTask
	}
	if msg.RunID == uuid.Nil {
		msg.RunID = uuid.New()
	}
	id := msg.RunID.String()
	r := &run{
		ctl:    handler.NewControl(id),
		memory: buffer.New(),
		status: models.Run{ID: id, Goal: msg.Goal, Mode: mode, State: models.Planning, StartedAt: time.Now()},
	}
	agent.active = r
	agent.state = models.Planning

	root := ac.ActorSystem().Root
	self := ac.Self()
	sink := events.Multi(agent.cfg.Sink, events.Func(func(e events.Event) {
		root.Send(self, messages.RunEvent{RunID: msg.RunID, Event: e})
	}))
	h := agent.process(r.memory, sink)

	go func() {
		res := messages.RunFinished{RunID: msg.RunID}
		defer func() {
			if rec := recover(); rec != nil {
				res.Err = fmt.Errorf("run panicked: %v", rec)
			}
			root.Send(self, res)
		}()
		res.State, res.Plan = h.Process(context.Background(), r.ctl, msg.Goal, mode)
	}()
	return msg.RunID, nil
}

func (agent *Session) process(memory *buffer.Memories, sink events.Sink) *handler.Handler {
	executor := agent.cfg.Executor
	registry := executor.Registry()
	workspace := executor.Workspace().Describe()
	planner := plannerHandler.New(agent.cfg.Model, registry, workspace, memory)
	decider := decisionHandler.New(agent.cfg.Model, registry, workspace, memory, agent.cfg.Decision)
	return handler.New(planner, handler.NewLoop(decider, executor, sink, agent.cfg.Loop), sink)
}

func (agent *Session) apply(msg messages.RunEvent) {
	if agent.active == nil || agent.active.status.ID != msg.RunID.String() {
		return
	}
	r := &agent.active.status
	e := msg.Event
	switch e.Type {
	case events.PlanCreated:
		r.Plan = e.Plan
		r.State = models.Thinking
	case events.TaskStarted:
		r.CurrentTask = e.TaskID
	case events.ThinkStarted:
		r.State = models.Thinking
	case events.ActStarted:
		r.State = models.Acting
		if e.Message != "" {
			r.UserUpdate = e.Message
		}
	case events.Observed:
		r.Iteration = e.Iteration
		if e.Observation != nil {
			r.LastSummary = e.Observation.Summary
		}
	case events.RunCompleted, events.RunFailed:
		r.Outcome = e.Outcome
		r.FinalAnswer = e.Message
	}
	agent.state = r.State
}

func (agent *Session) finish(l zerolog.Logger, msg messages.RunFinished) {
	var r *models.Run
	if agent.active != nil && agent.active.status.ID == msg.RunID.String() {
		r = &agent.active.status
	} else {
		for i := range agent.history {
			if agent.history[i].ID == msg.RunID.String() {
				r = &agent.history[i]
			}
		}
	}
	if r == nil {
		l.Warn().Str(logger.RunIDField, msg.RunID.String()).Msg("RunFinished for unknown run")
		return
	}

	now := time.Now()
	r.FinishedAt = &now
	r.State = models.Finished
	if msg.Plan != nil {
		r.Plan = msg.Plan
	}
	if msg.State != nil {
		r.Outcome = msg.State.Outcome
		r.FinalAnswer = msg.State.FinalAnswer
		r.Iteration = msg.State.Iteration
		if r.Outcome == models.OutcomePlanningFailed {
			r.State = models.Failed
			r.Errs = &models.Error{ErrMessage: r.FinalAnswer, Time: &now}
		}
	}
	if msg.Err != nil {
		r.State = models.Failed
		r.Errs = &models.Error{ErrMessage: msg.Err.Error(), Time: &now}
	}
	l.Info().Str(logger.RunIDField, r.ID).Str("outcome", string(r.Outcome)).Msg("run finished")

	if agent.active != nil && r == &agent.active.status {
		if r.Outcome != models.OutcomeCompleted {
			agent.logLastExchange(l, r.ID, agent.active.memory)
		}
		agent.history = append(agent.history, *r)
		agent.active = nil
		agent.state = models.Idle
	}
}

// logLastExchange records the final model exchange of a run that did not succeed.
func (agent *Session) logLastExchange(l zerolog.Logger, runID string, memory *buffer.Memories) {
	last := memory.Last(1)
	if len(last) == 0 {
		return
	}
	l.Warn().Str(logger.RunIDField, runID).Int("exchanges", memory.Len()).Str("kind", last[0].Kind).
		Str("answer", last[0].Answer).Msg("last model exchange")
}

func (agent *Session) status() models.Status {
	s := models.Status{
		SessionID: agent.id.String(),
		Workspace: agent.cfg.Executor.Workspace().Sandbox.Root(),
		State:     agent.state,
		History:   make([]models.Run, len(agent.history)),
	}
	copy(s.History, agent.history)
	if agent.active != nil {
		active := agent.active.status
		s.Active = &active
	}
	return s
}

package messages

import (
	"github.com/google/uuid"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/models"
)

// StartGoal asks a session to run a goal. Any active run is stopped first.
type StartGoal struct {
	RunID uuid.UUID
	Goal  string
	Mode  models.Mode
}

type GoalStarted struct {
	RunID uuid.UUID
}

type CancelRun struct{}

type RunCancelled struct {
	RunID  uuid.UUID
	Active bool
}

type GetStatus struct{}

// RunEvent carries a lifecycle event from the run goroutine into the session mailbox.
type RunEvent struct {
	RunID uuid.UUID
	Event events.Event
}

type RunFinished struct {
	RunID uuid.UUID
	State *models.AgentState
	Plan  *models.ExecutionPlan
	Err   error
}

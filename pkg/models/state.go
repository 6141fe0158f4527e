package models

type State string

const (
	Init     State = "init"
	Planning State = "planning"
	Thinking State = "thinking"
	Acting   State = "acting"
	Idle     State = "idle"
	Failed   State = "failed" // dead state
	Finished State = "finished"
)

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomeCompleted       Outcome = "completed"
	OutcomeBudgetExhausted Outcome = "budget_exhausted"
	OutcomePlanningFailed  Outcome = "planning_failed"
	OutcomeCancelled       Outcome = "cancelled"
	// OutcomeUnconfirmed is a finish the completion check could not back up.
	OutcomeUnconfirmed Outcome = "unconfirmed"
)

// Mode selects how a goal is driven through the loop.
type Mode string

const (
	ModePlan   Mode = "plan"
	ModeTask   Mode = "task"
	ModeSimple Mode = "simple"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModePlan, ModeTask, ModeSimple:
		return Mode(s), true
	case "":
		return ModeTask, true
	}
	return "", false
}

type HandlerResult struct {
	Question string
	Answer   string
	Error    error
}

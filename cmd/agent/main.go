package main

import (
	"context"
	"fmt"
	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	zLog "github.com/rs/zerolog/log"
	decisionHandler "go-autoagent/internal/agents/decision/handler"
	plannerHandler "go-autoagent/internal/agents/planner/handler"
	supervisor "go-autoagent/internal/agents/supervisor/handler"
	"go-autoagent/internal/app"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/events"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/memory/buffer"
	"go-autoagent/pkg/models"
	"go-autoagent/pkg/security"
	"go-autoagent/pkg/tools"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var cli struct {
	Goal      string `arg:"" help:"Goal to accomplish."`
	Workspace string `short:"w" help:"Workspace directory (defaults to workspace.root)."`
	Mode      string `short:"m" help:"Run mode: plan, task or simple."`
	Config    string `short:"c" type:"path" help:"TOML config file."`
	Verbose   bool   `short:"v" help:"Print every step."`
}

// Runs a single goal in the foreground and exits with 0 only when it was accomplished.
func main() {
	kong.Parse(&cli, kong.Description("Run one goal against a local workspace."))

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := logger.NewGlobal(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	mode := cfg.DefaultMode()
	if cli.Mode != "" {
		var ok bool
		if mode, ok = models.ParseMode(cli.Mode); !ok {
			log.Fatalf("unknown mode %q", cli.Mode)
		}
	}
	root := cli.Workspace
	if root == "" {
		root = cfg.Workspace.Root
	}

	sandbox, err := security.NewSandbox(root)
	if err != nil {
		zLog.Fatal().Err(err).Msg("failed to open workspace")
	}
	registry, err := app.Registry(cfg)
	if err != nil {
		zLog.Fatal().Err(err).Msg("failed to build tool registry")
	}
	model, err := app.Model(cfg)
	if err != nil {
		zLog.Fatal().Err(err).Msg("failed to create model client")
	}
	progress := events.NewChan(64)
	sink, closeSink, err := app.Sink(cfg, progress)
	if err != nil {
		zLog.Fatal().Err(err).Msg("failed to create event sink")
	}

	ws := tools.NewWorkspace(sandbox, cfg.CommandFilter(), cfg.Limits())
	executor := registry.Bind(ws)
	memory := buffer.New()
	planner := plannerHandler.New(model, registry, ws.Describe(), memory)
	decider := decisionHandler.New(model, registry, ws.Describe(), memory, cfg.DecisionOptions())
	h := supervisor.New(planner, supervisor.NewLoop(decider, executor, sink, cfg.LoopOptions()), sink)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range progress.Events() {
			report(e)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	state, _ := h.Process(ctx, supervisor.NewControl(uuid.NewString()), cli.Goal, mode)
	stop()
	progress.Close()
	wg.Wait()
	closeSink()

	fmt.Println(state.FinalAnswer)
	if state.Outcome != models.OutcomeCompleted {
		os.Exit(1)
	}
}

func report(e events.Event) {
	switch e.Type {
	case events.PlanCreated:
		if e.Plan == nil {
			return
		}
		fmt.Printf("plan: %d tasks\n", len(e.Plan.Tasks))
		for _, t := range e.Plan.Tasks {
			fmt.Printf("  %d. [%s] %s\n", t.ID, t.Kind, t.Description)
		}
	case events.TaskStarted, events.TaskFinished:
		fmt.Printf("%s %d: %s\n", e.Type, e.TaskID, e.Message)
	case events.ActStarted:
		if tc, ok := e.Action.(models.ToolCall); ok {
			fmt.Printf("[%d] %s: %s\n", e.Iteration, tc.Tool, e.Message)
		}
	case events.Observed:
		if cli.Verbose && e.Observation != nil {
			fmt.Printf("[%d] %s\n", e.Iteration, e.Observation.Summary)
		}
	}
}

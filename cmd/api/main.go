package main

import (
	"context"
	"errors"
	"github.com/alecthomas/kong"
	"github.com/asynkron/protoactor-go/actor"
	zLog "github.com/rs/zerolog/log"
	"go-autoagent/internal/api"
	"go-autoagent/internal/app"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/logger"
	"golang.org/x/sync/errgroup"
	"log"
	"os/signal"
	"syscall"
)

var cli struct {
	Config   string `short:"c" type:"path" help:"TOML config file."`
	Port     int    `help:"Override server.port."`
	LogLevel string `help:"Override log.level."`
}

// only OPENAI_API_KEY is required in the environment (or .env)
func main() {
	log.Println("starting server")
	kong.Parse(&cli, kong.Description("Serve agent sessions over HTTP."))

	cfg, err := config.Load(cli.Config)
	if err != nil {
		log.Panicf("failed to load config: %v", err)
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}
	if err := logger.NewGlobal(cfg.Log.Level, cfg.Log.Pretty); err != nil {
		log.Panicf("failed to initialize logger: %v", err)
	}

	registry, err := app.Registry(cfg)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to build tool registry")
	}
	model, err := app.Model(cfg)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to create model client")
	}
	sink, closeSink, err := app.Sink(cfg)
	if err != nil {
		zLog.Panic().Err(err).Msg("failed to create event sink")
	}
	defer closeSink()

	system := actor.NewActorSystem().Root
	server := api.New(system, api.Deps{Config: cfg, Registry: registry, Model: model, Sink: sink})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gCtx.Done()
		zLog.Info().Msg("shutting down gracefully")
		shutdown, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return server.Stop(shutdown)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zLog.Error().Err(err).Msg("server exited with error")
	}
	zLog.Info().Msg("server exiting")
}

package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sitedesk/foreman/internal/agent"
	v1 "github.com/sitedesk/foreman/internal/api/v1"
	"github.com/sitedesk/foreman/internal/config"
	"github.com/sitedesk/foreman/internal/llm"
	"github.com/sitedesk/foreman/internal/notify"
	"github.com/sitedesk/foreman/internal/server"
	"github.com/sitedesk/foreman/internal/store/postgres"
	redisstore "github.com/sitedesk/foreman/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("FOREMAN_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("FOREMAN_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL and bring the schema and demo data up.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Bootstrap(ctx); err != nil {
		return err
	}
	if err := store.SeedDemo(ctx, agent.Catalog); err != nil {
		return err
	}
	log.Info().Msg("demo data seeded")

	// Connect to Redis when configured; event fanout is optional.
	var pubsub *redisstore.PubSub
	if cfg.Redis.Addr != "" {
		pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer pubsub.Close()
	} else {
		log.Info().Msg("Redis not configured; session streams poll the registry")
	}

	// Model gateway and structured-response acquirer.
	client := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.Timeout)
	skills := agent.NewSkillsStore(cfg.Skills.Dir)
	acquirer := llm.NewAcquirer(client, skills)

	registry := agent.NewRegistry()

	var escalator agent.Escalator
	if cfg.Slack.BotToken != "" {
		escalator = notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.Channel)
		log.Info().Str("channel", cfg.Slack.Channel).Msg("Slack escalation enabled")
	}

	var publisher agent.EventPublisher
	if pubsub != nil {
		publisher = pubsub
	}

	runtime := agent.NewRuntime(agent.RuntimeConfig{
		Registry: registry,
		Acquirer: acquirer,
		Skills:   skills,
		Stores: agent.Stores{
			Invoices:       store.Invoices(),
			Projects:       store.Projects(),
			AR:             store.AR(),
			Collections:    store.Collections(),
			Review:         store.Review(),
			Communications: store.Communications(),
			Tasks:          store.Tasks(),
			AgentStatus:    store.AgentStatus(),
			Activity:       store.Activity(),
		},
		Publisher:     publisher,
		Escalator:     escalator,
		MultiplierFor: cfg.Cost.MultiplierFor,
		Paced:         true,
	})

	deps := v1.Deps{
		Store:    store,
		Registry: registry,
		Runtime:  runtime,
		Skills:   skills,
		Chat:     client,
		Seeder:   store,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Create HTTP server with all routes wired.
	srv := server.New(ctx, cfg, deps, pubsub)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

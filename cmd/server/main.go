package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spacebio/knowledge-engine/backend/internal/config"
	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/internal/queue"
	"github.com/spacebio/knowledge-engine/backend/internal/server"
	mid "github.com/spacebio/knowledge-engine/backend/internal/server/middleware"
	"github.com/spacebio/knowledge-engine/backend/internal/setup"
	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger/console"

	"github.com/MicahParks/keyfunc/v3"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := setup.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", "err", err)
	}
	defer svc.Close(context.Background())

	app := &mid.App{
		Graph:        svc.Graph,
		Query:        svc.Query,
		Runner:       ingest.NewRunner(svc.Graph, svc.Locker),
		MasterAPIKey: cfg.Auth.MasterAPIKey,
		ManifestPath: cfg.Ingest.Manifest,
	}

	if cfg.Auth.JWKSURL != "" {
		k, err := keyfunc.NewDefault([]string{cfg.Auth.JWKSURL})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		app.Key = k
	} else if cfg.Auth.MasterAPIKey == "" {
		logger.Warn("No AUTH_URL or MASTER_API_KEY configured, admin routes are unreachable")
	}

	if cfg.Queue.Enabled {
		conn, err := queue.Init(cfg.Queue)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", "err", err)
		}
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			logger.Fatal("Failed to open channel", "err", err)
		}
		defer ch.Close()
		if err := queue.SetupQueues(ch, []string{queue.IngestQueue}); err != nil {
			logger.Fatal("Failed to declare queues", "err", err)
		}
		app.Queue = ch
	}

	e := server.New(server.Params{
		App:          app,
		Registry:     svc.Registry,
		BodyLimit:    cfg.Server.BodyLimit,
		AllowOrigins: cfg.Server.AllowOrigins,
	})
	if err := server.Run(ctx, e, cfg.Server.Port); err != nil {
		logger.Error("Server stopped", "err", err)
	}
}

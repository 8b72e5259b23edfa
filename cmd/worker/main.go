package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spacebio/knowledge-engine/backend/internal/config"
	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/internal/queue"
	"github.com/spacebio/knowledge-engine/backend/internal/setup"
	"github.com/spacebio/knowledge-engine/backend/internal/util"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger/console"
)

func main() {
	util.LoadEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// logger
	debug := util.GetEnvBool("DEBUG", false)
	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", "err", err)
	}

	svc, err := setup.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", "err", err)
	}
	defer svc.Close(context.Background())
	runner := ingest.NewRunner(svc.Graph, svc.Locker)

	// Init rabbitmq
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

	// One job at a time; rebuilds are serialized by the lease anyway.
	if err := ch.Qos(1, 0, false); err != nil {
		logger.Fatal("Failed to set QoS", "err", err)
	}

	msgs, err := ch.Consume(
		queue.IngestQueue,
		"ingest_consumer",
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		logger.Fatal("Failed to start consuming", "queue", queue.IngestQueue, "err", err)
	}

	logger.Info("Listening for messages", "queue", queue.IngestQueue)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received, exiting...")
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Info("Message channel closed", "queue", queue.IngestQueue)
				return
			}

			startTime := time.Now()
			logger.Info("Received message", "queue", queue.IngestQueue)

			processingErr := queue.ProcessIngestMessage(ctx, runner, msg.Body)
			if processingErr != nil {
				logger.Error("Error processing message", "queue", queue.IngestQueue, "err", processingErr)
				if ctx.Err() != nil {
					// interrupted, let the broker redeliver
					_ = msg.Nack(false, true)
					return
				}
				queue.HandleFailure(context.WithoutCancel(ctx), ch, msg, queue.IngestQueue, cfg.Queue.MaxRetries, processingErr)
			} else {
				if err := msg.Ack(false); err != nil {
					logger.Error("Failed to ack message", "err", err)
				}
				logger.Info("Message processed successfully", "queue", queue.IngestQueue)
			}

			if svc.AI != nil {
				metrics := svc.AI.GetMetrics()
				logger.Info(
					"AI Metrics",
					"input_tokens", metrics.InputTokens,
					"output_tokens", metrics.OutputTokens,
					"total_tokens", metrics.TotalTokens,
					"duration", clock(time.Duration(metrics.DurationMs)*time.Millisecond),
				)
				svc.AI.ResetMetrics()
			}
			logger.Info("Processing time", "duration", clock(time.Since(startTime)))
			logger.Info("Waiting for next message")
		}
	}
}

// clock formats d as hh:mm:ss.
func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

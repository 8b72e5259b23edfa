package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

const retriesHeader = "x-retries"

// ErrMalformedMessage marks a message that can never succeed; it goes to
// the dead-letter queue without retries.
var ErrMalformedMessage = errors.New("malformed queue message")

// ProcessIngestMessage decodes an ingest job and runs it.
func ProcessIngestMessage(ctx context.Context, runner *ingest.Runner, body []byte) error {
	var job ingest.Job
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if job.ManifestPath == "" {
		return fmt.Errorf("%w: manifest_path is required", ErrMalformedMessage)
	}
	_, err := runner.Run(ctx, job)
	return err
}

func retries(headers amqp091.Table) int {
	switch v := headers[retriesHeader].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

// HandleFailure moves a failed delivery to the retry queue, or to the
// dead-letter queue once maxRetries is reached. The original delivery is
// acked after the copy is published and requeued if publishing fails.
func HandleFailure(ctx context.Context, ch Channel, msg amqp091.Delivery, queueName string, maxRetries int, cause error) {
	n := retries(msg.Headers)

	target := queueName + "_retry"
	if n >= maxRetries || errors.Is(cause, ErrMalformedMessage) {
		target = queueName + "_dlq"
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(n + 1)
	if cause != nil {
		headers["x-last-error"] = cause.Error()
	}

	if err := publish(ctx, ch, target, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to republish message", "queue", target, "err", err)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error("[Queue] Failed to nack message", "err", nackErr)
		}
		return
	}

	logger.Info("[Queue] Moved failed message", "queue", target, "retries", n+1)
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}

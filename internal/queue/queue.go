package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spacebio/knowledge-engine/backend/internal/config"
	"github.com/spacebio/knowledge-engine/backend/internal/ingest"
	"github.com/spacebio/knowledge-engine/backend/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

const IngestQueue = "ingest_queue"

// retryDelay is how long a failed message waits in the retry queue before
// it is dead-lettered back onto its work queue.
const retryDelay = 10 * time.Second

// Channel is the subset of *amqp091.Channel used to declare queues and
// publish messages.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

func Init(cfg config.QueueConfig) (*amqp091.Connection, error) {
	conn, err := amqp091.Dial(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return conn, nil
}

// SetupQueues declares every work queue with its dead-letter queue and a
// retry queue that feeds expired messages back into the work queue.
func SetupQueues(ch Channel, queueNames []string) error {
	for _, name := range queueNames {
		if _, err := ch.QueueDeclare(
			name,
			true,  // durable
			false, // autoDelete
			false, // exclusive
			false, // noWait
			nil,   // args
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}

		dlqName := name + "_dlq"
		if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", dlqName, err)
		}

		retryName := name + "_retry"
		if _, err := ch.QueueDeclare(
			retryName,
			true,
			false,
			false,
			false,
			amqp091.Table{
				"x-message-ttl":             int32(retryDelay / time.Millisecond),
				"x-dead-letter-exchange":    "",
				"x-dead-letter-routing-key": name,
			},
		); err != nil {
			return fmt.Errorf("declare queue %s: %w", retryName, err)
		}
	}

	return nil
}

// PublishFIFO publishes a persistent message on the default exchange.
func PublishFIFO(ctx context.Context, ch Channel, queueName string, data []byte) error {
	return publish(ctx, ch, queueName, data, nil)
}

func publish(ctx context.Context, ch Channel, queueName string, data []byte, headers amqp091.Table) error {
	publishing := amqp091.Publishing{
		ContentType:  "application/json",
		Body:         data,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
	}
	return ch.PublishWithContext(ctx, "", queueName, false, false, publishing)
}

// EnqueueIngest publishes an ingest job and returns it with its generated
// ID.
func EnqueueIngest(ctx context.Context, ch Channel, manifestPath string, reset bool) (ingest.Job, error) {
	id, err := gonanoid.New()
	if err != nil {
		return ingest.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := ingest.Job{ID: id, ManifestPath: manifestPath, Reset: reset}

	body, err := json.Marshal(job)
	if err != nil {
		return ingest.Job{}, err
	}
	if err := PublishFIFO(ctx, ch, IngestQueue, body); err != nil {
		return ingest.Job{}, fmt.Errorf("publish ingest job: %w", err)
	}
	logger.Info("[Queue] Enqueued ingest job", "job_id", id, "manifest", manifestPath, "reset", reset)
	return job, nil
}

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"chat-service/config"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueName holds pending delivery-retry jobs.
const QueueName = "message-delivery"

const (
	attemptHeader = "x-attempt"
	jobIDHeader   = "x-job-id"
)

// Job is one redelivery request. JobID is derived from
// conversation+message+target+enqueue time so duplicate enqueues stay
// distinguishable in logs; the queue layer does not deduplicate them.
type Job struct {
	JobID          string `json:"job_id"`
	ConversationID uint   `json:"conversation_id"`
	MessageID      uint   `json:"message_id"`
	TargetUserID   uint   `json:"target_user_id"`
	Attempt        int    `json:"attempt"`
	// NotBefore delays the next attempt. The republished copy sits durably
	// on the broker; the consumer holds it until this instant passes.
	NotBefore time.Time `json:"not_before"`
}

func newJobID(conversationID, messageID, targetUserID uint, enqueuedAt time.Time) string {
	return fmt.Sprintf("%d:%d:%d:%d", conversationID, messageID, targetUserID, enqueuedAt.UnixMicro())
}

// Queue wraps the RabbitMQ connection and channel used by both the enqueue
// side and the worker pool.
type Queue struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// Connect dials RabbitMQ, declares the durable delivery queue and bounds
// consumer prefetch.
func Connect(prefetch int) (*Queue, error) {
	connection, err := amqp.Dial(fmt.Sprintf(
		"amqp://%s:%s@%s:%s/",
		config.Config("RABBITMQ_USER"),
		config.Config("RABBITMQ_PASSWORD"),
		config.Config("RABBITMQ_HOST"),
		config.Config("RABBITMQ_PORT"),
	))
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	log.Printf("connection opened to RabbitMQ server")

	channel, err := connection.Channel()
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("open RabbitMQ channel: %w", err)
	}

	if err := channel.Qos(prefetch, 0, false); err != nil {
		connection.Close()
		return nil, fmt.Errorf("set RabbitMQ prefetch: %w", err)
	}

	_, err = channel.QueueDeclare(
		QueueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		connection.Close()
		return nil, fmt.Errorf("declare RabbitMQ queue: %w", err)
	}
	log.Printf("declared RabbitMQ queue: %s", QueueName)

	return &Queue{connection: connection, channel: channel}, nil
}

// EnqueueRetry publishes a fresh job for the given target.
func (q *Queue) EnqueueRetry(ctx context.Context, conversationID, messageID, targetUserID uint, attempt int) error {
	return q.Publish(ctx, Job{
		JobID:          newJobID(conversationID, messageID, targetUserID, time.Now()),
		ConversationID: conversationID,
		MessageID:      messageID,
		TargetUserID:   targetUserID,
		Attempt:        attempt,
	})
}

// Publish writes the job durably to the delivery queue.
func (q *Queue) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode delivery job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = q.channel.PublishWithContext(
		ctx,
		"",        // exchange
		QueueName, // routing key
		false,     // mandatory
		false,     // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Headers: amqp.Table{
				jobIDHeader:   job.JobID,
				attemptHeader: int32(job.Attempt),
			},
			Body: body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish delivery job: %w", err)
	}
	return nil
}

// Consume registers a consumer on the delivery queue. Messages are manually
// acked by the worker once a terminal outcome is reached.
func (q *Queue) Consume() (<-chan amqp.Delivery, error) {
	deliveries, err := q.channel.Consume(
		QueueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, fmt.Errorf("register delivery consumer: %w", err)
	}
	return deliveries, nil
}

func (q *Queue) Close() {
	q.channel.Close()
	q.connection.Close()
}

package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"chat-service/model"
	"chat-service/store"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"
)

// Publisher republishes a job for a later attempt.
type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// PresenceChecker reports whether the target can currently receive an emit.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID uint) (bool, error)
}

// Emitter pushes an event to a single user's sockets across all processes.
type Emitter interface {
	EmitToUser(userID uint, event string, payload any) error
}

// MessageLoader resolves the message payload for a job.
type MessageLoader interface {
	GetByID(ctx context.Context, messageID uint) (*model.Message, error)
}

// ReceiptWriter records a successful redelivery.
type ReceiptWriter interface {
	MarkDelivered(ctx context.Context, messageID, userID uint) error
}

// DeadLetterStore persists the terminal record of an exhausted job.
type DeadLetterStore interface {
	Record(ctx context.Context, job Job, reason string) error
}

// GormDeadLetters writes dead letters to the delivery_dead_letters table.
type GormDeadLetters struct {
	DB *gorm.DB
}

func (g *GormDeadLetters) Record(ctx context.Context, job Job, reason string) error {
	return g.DB.WithContext(ctx).Create(&model.DeliveryDeadLetter{
		JobID:          job.JobID,
		ConversationID: job.ConversationID,
		MessageID:      job.MessageID,
		TargetUserID:   job.TargetUserID,
		Attempts:       job.Attempt,
		Reason:         reason,
	}).Error
}

// List returns recent dead letters for operator inspection.
func (g *GormDeadLetters) List(ctx context.Context, limit int) ([]model.DeliveryDeadLetter, error) {
	var letters []model.DeliveryDeadLetter
	err := g.DB.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&letters).Error
	return letters, err
}

// WorkerPool drains the delivery queue with bounded concurrency. Each failed
// attempt is republished after exponential backoff with attempt+1; at the
// attempt budget the job becomes a dead-letter row and is never retried again.
type WorkerPool struct {
	Queue       *Queue
	Publisher   Publisher
	Presence    PresenceChecker
	Emitter     Emitter
	Messages    MessageLoader
	Receipts    ReceiptWriter
	DeadLetters DeadLetterStore

	Concurrency int
	MaxAttempts int
	BaseBackoff time.Duration

	// wait defaults to a context-aware sleep; tests replace it to run inline.
	wait func(ctx context.Context, d time.Duration)
}

const maxBackoff = time.Minute

// Run consumes until ctx is cancelled or the delivery channel closes.
func (p *WorkerPool) Run(ctx context.Context) error {
	deliveries, err := p.Queue.Consume()
	if err != nil {
		return err
	}
	log.Printf("delivery worker pool started: workers=%d maxAttempts=%d", p.Concurrency, p.MaxAttempts)

	for i := 0; i < p.Concurrency; i++ {
		go func() {
			for delivery := range deliveries {
				p.handle(ctx, delivery)
			}
		}()
	}

	<-ctx.Done()
	return ctx.Err()
}

func (p *WorkerPool) handle(ctx context.Context, delivery amqp.Delivery) {
	var job Job
	if err := json.Unmarshal(delivery.Body, &job); err != nil {
		log.Printf("dropping malformed delivery job: %v", err)
		delivery.Ack(false)
		return
	}

	// Backoff rides in the job itself: the republished copy is durable on
	// the broker the whole time and the consumer holds it until due.
	if remaining := time.Until(job.NotBefore); remaining > 0 {
		p.waiter()(ctx, remaining)
	}

	if err := p.process(ctx, job); err != nil {
		if err := p.dispose(ctx, job, err); err != nil {
			// The job's next state could not be written anywhere durable.
			// Hand it back to the broker rather than dropping it.
			log.Printf("dispose failed, requeueing: job=%s: %v", job.JobID, err)
			delivery.Nack(false, true)
			return
		}
	}
	// Acked only once the job reached a durable terminal outcome:
	// delivered, republished for a later attempt, or dead-lettered.
	delivery.Ack(false)
}

// process performs one delivery attempt.
func (p *WorkerPool) process(ctx context.Context, job Job) error {
	online, err := p.Presence.IsOnline(ctx, job.TargetUserID)
	if err != nil {
		return fmt.Errorf("presence check: %w", err)
	}
	if !online {
		return errors.New("target user offline")
	}

	message, err := p.Messages.GetByID(ctx, job.MessageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}

	if err := p.Emitter.EmitToUser(job.TargetUserID, "message.new", message); err != nil {
		return fmt.Errorf("emit: %w", err)
	}

	if err := p.Receipts.MarkDelivered(ctx, job.MessageID, job.TargetUserID); err != nil {
		log.Printf("delivered but receipt upsert failed: job=%s: %v", job.JobID, err)
	}
	log.Printf("delivery job succeeded: job=%s attempt=%d target=%d", job.JobID, job.Attempt, job.TargetUserID)
	return nil
}

// dispose routes a failed attempt: republish with backoff while budget
// remains, otherwise move the job to the dead-letter store. Either write
// happens synchronously; a returned error means the job has no durable next
// state yet and must stay on the broker.
func (p *WorkerPool) dispose(ctx context.Context, job Job, cause error) error {
	if job.Attempt >= p.MaxAttempts {
		reason := fmt.Sprintf("%v: %v", store.ErrExhausted, cause)
		if err := p.DeadLetters.Record(ctx, job, reason); err != nil {
			return fmt.Errorf("dead-letter write: %w", err)
		}
		log.Printf("delivery job dead-lettered: job=%s attempts=%d reason=%v", job.JobID, job.Attempt, cause)
		return nil
	}

	delay := p.backoff(job.Attempt)
	next := job
	next.Attempt++
	next.NotBefore = time.Now().Add(delay)
	log.Printf("delivery job failed: job=%s attempt=%d retrying in %s: %v", job.JobID, job.Attempt, delay, cause)

	if err := p.Publisher.Publish(ctx, next); err != nil {
		return fmt.Errorf("republish: %w", err)
	}
	return nil
}

// backoff doubles per attempt from BaseBackoff, capped at one minute.
func (p *WorkerPool) backoff(attempt int) time.Duration {
	delay := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

func (p *WorkerPool) waiter() func(context.Context, time.Duration) {
	if p.wait != nil {
		return p.wait
	}
	return func(ctx context.Context, d time.Duration) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

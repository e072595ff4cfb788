package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// consumerDrainTimeout is the time Close() waits for in-flight deliveries to
// complete before closing the AMQP connection.
const consumerDrainTimeout = 100 * time.Millisecond

// AMQPQueue is a durable queue backend for the four logical queues: jobs are
// published as persistent JSON messages onto one AMQP queue per QueueName and
// survive a process restart, unlike the in-process channel queues the
// dispatcher uses by default. Each delivery is ACKed once the handler returns
// nil and NACKed back onto the queue on error, so a crashed worker's job is
// redelivered to a peer.
type AMQPQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan struct{}
	tag     string
}

// queueNameFor maps a logical queue to its AMQP queue name.
func queueNameFor(q QueueName) string {
	return "htng." + string(q)
}

// DialAMQP connects to the broker at urlAMQP and declares one durable queue
// per entry in profiles.
func DialAMQP(urlAMQP string, profiles map[QueueName]QueueProfile) (*AMQPQueue, error) {
	conn, err := amqp.Dial(urlAMQP)
	if err != nil {
		return nil, fmt.Errorf("scheduler: dial %q: %w", urlAMQP, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("scheduler: open channel: %w", err)
	}

	for name := range profiles {
		if _, err := ch.QueueDeclare(
			queueNameFor(name), // name
			true,               // durable
			false,              // auto-delete
			false,              // exclusive
			false,              // no-wait
			nil,                // args
		); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("scheduler: declare queue %q: %w", name, err)
		}
	}

	return &AMQPQueue{
		conn:    conn,
		channel: ch,
		done:    make(chan struct{}),
		tag:     "htng-scheduler",
	}, nil
}

// Publish enqueues job onto its logical queue as a persistent message,
// assigning a job id first if the caller left it empty so the broker-side
// MessageId and the message log never carry a blank identifier.
func (q *AMQPQueue) Publish(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("scheduler: marshal job %s: %w", job.ID, err)
	}
	err = q.channel.PublishWithContext(ctx,
		"",                     // exchange
		queueNameFor(job.Queue), // routing key
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("scheduler: publish to %q: %w", job.Queue, err)
	}
	return nil
}

// JobHandler processes one durable job; a nil return ACKs the delivery, an
// error NACKs it back onto the queue for redelivery.
type JobHandler func(ctx context.Context, job Job) error

// Consume begins draining the AMQP queue for name in a background goroutine,
// applying prefetch equal to the queue's concurrency so the broker never hands
// this consumer more unacked jobs than it has worker slots.
func (q *AMQPQueue) Consume(ctx context.Context, name QueueName, profile QueueProfile, handle JobHandler) error {
	if err := q.channel.Qos(profile.Concurrency, 0, false); err != nil {
		return fmt.Errorf("scheduler: set qos for %q: %w", name, err)
	}

	deliveries, err := q.channel.Consume(
		queueNameFor(name), // queue name
		q.tag,              // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return fmt.Errorf("scheduler: consume %q: %w", name, err)
	}

	go q.drain(ctx, name, deliveries, handle)
	log.Printf("scheduler: consuming durable queue %q", queueNameFor(name))
	return nil
}

func (q *AMQPQueue) drain(ctx context.Context, name QueueName, deliveries <-chan amqp.Delivery, handle JobHandler) {
	for {
		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Printf("scheduler: delivery channel closed for %q", name)
				return
			}
			q.handleDelivery(ctx, name, d, handle)
		}
	}
}

func (q *AMQPQueue) handleDelivery(ctx context.Context, name QueueName, d amqp.Delivery, handle JobHandler) {
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("scheduler: malformed job on %q: %v — dropping", name, err)
		_ = d.Nack(false, false) // do not requeue a job that can never parse
		return
	}
	if err := handle(ctx, job); err != nil {
		log.Printf("scheduler: handler error for job %s on %q: %v — NAcking", job.ID, name, err)
		_ = d.Nack(false, true) // requeue on failure
		return
	}
	_ = d.Ack(false)
}

// Close cancels the consumer and closes the channel and connection.
func (q *AMQPQueue) Close() {
	if q.done != nil {
		close(q.done)
		q.done = nil
	}
	if q.channel != nil {
		if err := q.channel.Cancel(q.tag, false); err != nil {
			log.Printf("scheduler: cancel consumer: %v", err)
		}
		q.channel.Close()
		q.channel = nil
	}
	if q.conn != nil {
		time.Sleep(consumerDrainTimeout)
		q.conn.Close()
		q.conn = nil
	}
}

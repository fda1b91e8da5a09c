// Package broker implements the Broker/Queue (C4): a durable FIFO work
// queue with at-least-once delivery, separate queues for processing and
// cleanup (§4.2).
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ProcessingQueue = "tasks.processing"
	CleanupQueue    = "tasks.cleanup"
)

// Envelope is the wire message body. It intentionally carries only the
// task-id: the durable truth is always the Task Registry, never the
// broker (§4.2's explicit requirement).
type Envelope struct {
	TaskID string `json:"task_id"`
}

type Broker struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func Dial(url string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening broker channel: %w", err)
	}
	b := &Broker{conn: conn, ch: ch}
	for _, q := range []string{ProcessingQueue, CleanupQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			b.Close()
			return nil, fmt.Errorf("declaring queue %s: %w", q, err)
		}
	}
	// A fixed prefetch of 10 unacked messages; the consumer's worker count
	// (config.WorkerConcurrency) is the real concurrency bound, this just
	// keeps the channel from buffering unboundedly ahead of it.
	if err := ch.Qos(10, 0, false); err != nil {
		b.Close()
		return nil, fmt.Errorf("setting channel QoS: %w", err)
	}
	return b, nil
}

func (b *Broker) Close() error {
	if b.ch != nil {
		b.ch.Close()
	}
	return b.conn.Close()
}

// Ping reports whether the underlying connection is usable, for
// /health/deps (§4.1 [ADDED]).
func (b *Broker) Ping(ctx context.Context) error {
	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("broker connection is closed")
	}
	return nil
}

func (b *Broker) Enqueue(ctx context.Context, queue, taskID string) error {
	body, err := json.Marshal(Envelope{TaskID: taskID})
	if err != nil {
		return fmt.Errorf("marshaling task envelope: %w", err)
	}
	return b.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// QueueDepth backs the submission backpressure check in the Intake API's
// enqueue path (§5).
func (b *Broker) QueueDepth(queue string) (int, error) {
	q, err := b.ch.QueueInspect(queue)
	if err != nil {
		return 0, fmt.Errorf("inspecting queue %s: %w", queue, err)
	}
	return q.Messages, nil
}

// Delivery wraps an amqp.Delivery with the decoded envelope, so a worker
// acks only after the registry write for that stage transition is durably
// committed, per §4.2's at-least-once / idempotent-handler contract.
type Delivery struct {
	Envelope Envelope
	raw      amqp.Delivery
}

func (d *Delivery) Ack() error  { return d.raw.Ack(false) }
func (d *Delivery) Nack() error { return d.raw.Nack(false, true) }

func (b *Broker) Consume(queue, consumerTag string) (<-chan Delivery, error) {
	deliveries, err := b.ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consuming queue %s: %w", queue, err)
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range deliveries {
			var env Envelope
			if err := json.Unmarshal(d.Body, &env); err != nil {
				d.Nack(false, false)
				continue
			}
			out <- Delivery{Envelope: env, raw: d}
		}
	}()
	return out, nil
}

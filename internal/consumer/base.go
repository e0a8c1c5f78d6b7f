package consumer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sentinel-synth/synthcore/internal/domain"
)

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Consumer is the abstract Message Consumer (C5). It owns one AMQP queue,
// reconnecting with jittered exponential backoff on connection loss, and
// reports an observable domain.ConsumerStatus.
type Consumer struct {
	url      string
	queue    string
	prefetch int
	handle   HandleFunc
	logger   *zap.Logger
	name     string

	mu          sync.Mutex
	conn        *amqplib.Connection
	channel     *amqplib.Channel
	consumerTag string
	closed      bool
	closeCh     chan struct{}
	inFlight    sync.WaitGroup

	connected atomic.Bool
	consuming atomic.Bool
	processed atomic.Int64
	errored   atomic.Int64
}

// New creates a Consumer bound to queue, not yet connected.
func New(name, url, queue string, prefetch int, handle HandleFunc, logger *zap.Logger) *Consumer {
	return &Consumer{
		name:     name,
		url:      url,
		queue:    queue,
		prefetch: prefetch,
		handle:   handle,
		logger:   logger.With(zap.String("consumer", name)),
		closeCh:  make(chan struct{}),
	}
}

// Connect dials the broker, opens a channel, sets prefetch, and declares
// the queue (durable, idempotent declare — matching the teacher's
// QueueDeclare call).
func (c *Consumer) Connect(ctx context.Context) error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("consumer %s: dial: %w", c.name, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("consumer %s: channel: %w", c.name, err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("consumer %s: qos: %w", c.name, err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("consumer %s: queue declare: %w", c.name, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()
	c.connected.Store(true)

	return nil
}

// StartConsuming blocks dispatching deliveries until ctx is cancelled or
// Close is called, automatically reconnecting on connection loss.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	c.mu.Lock()
	connected := c.channel != nil
	c.mu.Unlock()
	if !connected {
		return fmt.Errorf("consumer %s: %w", c.name, domain.ErrNotConnected)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectBaseDelay
	b.MaxInterval = reconnectMaxDelay
	b.MaxElapsedTime = 0
	b.Multiplier = 2

	for {
		err := c.dispatchLoop(ctx)
		if err == nil {
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.connected.Store(false)
		c.consuming.Store(false)
		delay := b.NextBackOff()
		c.logger.Warn("consumer lost connection, reconnecting", zap.Error(err), zap.Duration("delay", delay))

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		if err := c.Connect(ctx); err != nil {
			c.logger.Error("reconnect failed", zap.Error(err))
			continue
		}
		b.Reset()
		c.logger.Info("reconnected")
	}
}

func (c *Consumer) dispatchLoop(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return fmt.Errorf("consumer %s: %w", c.name, domain.ErrNotConnected)
	}

	tag := c.name + "-" + uuid.NewString()
	deliveries, err := ch.Consume(c.queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consumer %s: consume: %w", c.name, err)
	}

	c.mu.Lock()
	c.consumerTag = tag
	c.mu.Unlock()

	c.consuming.Store(true)
	c.logger.Info("consumer started", zap.String("queue", c.queue), zap.Int("prefetch", c.prefetch))

	for {
		select {
		case <-ctx.Done():
			c.consuming.Store(false)
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				c.consuming.Store(false)
				return fmt.Errorf("consumer %s: delivery channel closed", c.name)
			}
			c.inFlight.Add(1)
			c.dispatch(ctx, ch, delivery)
			c.inFlight.Done()
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, ch *amqplib.Channel, delivery amqplib.Delivery) {
	decision := c.handle(ctx, delivery.Body)

	switch decision {
	case domain.Ack:
		if err := ch.Ack(delivery.DeliveryTag, false); err != nil {
			c.logger.Error("ack failed", zap.Error(err))
		}
		c.processed.Add(1)
	case domain.NackDrop:
		if err := ch.Nack(delivery.DeliveryTag, false, false); err != nil {
			c.logger.Error("nack(drop) failed", zap.Error(err))
		}
		c.errored.Add(1)
	case domain.NackRequeue:
		if err := ch.Nack(delivery.DeliveryTag, false, true); err != nil {
			c.logger.Error("nack(requeue) failed", zap.Error(err))
		}
		c.errored.Add(1)
	default:
		c.logger.Error("unknown ack decision, dropping", zap.Int("decision", int(decision)))
		_ = ch.Nack(delivery.DeliveryTag, false, false)
		c.errored.Add(1)
	}
}

// StopConsuming cancels the AMQP consumer tag so the broker stops
// delivering new messages to this channel (spec.md:113); any delivery
// already in flight is left to dispatch() to finish.
func (c *Consumer) StopConsuming() {
	c.mu.Lock()
	ch := c.channel
	tag := c.consumerTag
	c.mu.Unlock()

	if ch != nil && tag != "" {
		if err := ch.Cancel(tag, false); err != nil {
			c.logger.Warn("consumer cancel failed", zap.Error(err))
		}
	}
	c.consuming.Store(false)
}

// Close waits for any in-flight dispatch() call to finish, then tears
// down the channel and connection (spec.md:113's "wait for in-flight
// handlers to complete" before closing).
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.mu.Unlock()

	c.connected.Store(false)
	c.consuming.Store(false)

	c.inFlight.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports the observable consumer state (spec §3).
func (c *Consumer) Status() domain.ConsumerStatus {
	return domain.ConsumerStatus{
		Connected:         c.connected.Load(),
		Consuming:         c.consuming.Load(),
		MessagesProcessed: c.processed.Load(),
		MessagesErrored:   c.errored.Load(),
	}
}

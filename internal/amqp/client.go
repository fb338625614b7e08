// Package amqp carries settlement events over RabbitMQ: inbound session
// edits and outbound recompute notifications.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"travelai/internal/core"
	"travelai/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	prefetchCount  = 10
)

type Client struct {
	url          string
	exchangeName string
	queueName    string
	bindingKey   string
	logger       *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials the broker and declares the exchange and the queue bound
// under bindingKey.
func NewClient(url, exchangeName, queueName, bindingKey string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		bindingKey:   bindingKey,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) log() *log.Logger {
	if c.logger == nil {
		return log.Discard()
	}
	return c.logger
}

// connect must be called with c.mu held.
func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName, c.bindingKey); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.conn = conn
	c.channel = channel
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue, bindingKey string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(queue, bindingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// ensureChannel returns a live channel, reconnecting if the previous one
// was closed.
func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil && !c.channel.IsClosed() {
		return c.channel, nil
	}
	c.resetLocked()
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c.channel, nil
}

func (c *Client) resetLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	since := time.Since(c.lastFailure)
	c.mu.Unlock()
	if since > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// Publish sends the event under its routing key with persistent delivery.
func (c *Client) Publish(ctx context.Context, evt *SettlementEvent) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", evt.Type)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := evt.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := c.ensureChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(
		ctx,
		c.exchangeName,   // exchange
		evt.RoutingKey(), // routing key
		false,            // mandatory
		false,            // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    evt.ID,
			Type:         evt.Type,
			Timestamp:    evt.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.resetLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	c.log().DebugContext(ctx, "Published settlement event",
		log.FieldEventType, evt.Type,
		log.FieldSessionID, evt.SessionID,
		"exchange", c.exchangeName)
	return nil
}

// Handler processes one decoded event.
type Handler func(ctx context.Context, evt *SettlementEvent) error

// Consume delivers events to handler until ctx is done, reconnecting with
// exponential backoff when the broker goes away.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		ch, err := c.ensureChannel()
		if err == nil {
			attempt = 0
			err = c.consumeChannel(ctx, ch, handler)
			if ctx.Err() != nil {
				c.log().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return nil
			}
		}

		wait := exponentialBackoff(attempt)
		c.log().WarnContext(ctx, "AMQP consumer interrupted, reconnecting",
			log.FieldError, err,
			"retry_in", wait.String())
		attempt++

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (c *Client) consumeChannel(ctx context.Context, ch *amqp091.Channel, handler Handler) error {
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.log().InfoContext(ctx, "Started consuming settlement events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.handleDelivery(ctx, delivery, handler)
		}
	}
}

type outcome int

const (
	acked outcome = iota
	requeued
	dropped
)

// handleDelivery acks on success, drops messages that can never succeed
// and requeues the rest.
func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) outcome {
	msg, err := EventFromJSON(d.Body)
	if err != nil {
		c.log().ErrorContext(ctx, "Failed to decode event", log.FieldError, err)
		d.Nack(false, false)
		return dropped
	}

	if err := handler(ctx, msg); err != nil {
		if core.IsValidation(err) || errors.Is(err, ErrUnknownEventType) {
			c.log().WarnContext(ctx, "Rejected invalid event",
				log.FieldEventType, msg.Type,
				log.FieldSessionID, msg.SessionID,
				log.FieldError, err)
			d.Nack(false, false)
			return dropped
		}
		c.log().ErrorContext(ctx, "Failed to handle event",
			log.FieldEventType, msg.Type,
			log.FieldSessionID, msg.SessionID,
			log.FieldError, err)
		d.Nack(false, true)
		return requeued
	}

	d.Ack(false)
	c.log().DebugContext(ctx, "Processed event",
		log.FieldEventType, msg.Type,
		log.FieldSessionID, msg.SessionID)
	return acked
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	return err
}

// exponentialBackoff is 1s doubling per attempt, capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

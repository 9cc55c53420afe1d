package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cashbook/internal/log"

	"github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// topology names the broker objects a Client declares. Messages rejected
// without requeue on the main queue are routed to the dead-letter queue.
type topology struct {
	exchange     string
	queue        string
	deadExchange string
	deadQueue    string
}

func newTopology(exchange, queue string) topology {
	return topology{
		exchange:     exchange,
		queue:        queue,
		deadExchange: exchange + ".dead",
		deadQueue:    queue + ".dead",
	}
}

func (t topology) declare(ch *amqp091.Channel) error {
	for _, ex := range []string{t.exchange, t.deadExchange} {
		if err := ch.ExchangeDeclare(ex, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	queues := []struct {
		name, exchange string
		args           amqp091.Table
	}{
		{name: t.deadQueue, exchange: t.deadExchange},
		{name: t.queue, exchange: t.exchange, args: amqp091.Table{
			"x-dead-letter-exchange":    t.deadExchange,
			"x-dead-letter-routing-key": t.deadQueue,
		}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
		// Routing key equals the queue name on both direct exchanges.
		if err := ch.QueueBind(q.name, q.name, q.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q.name, err)
		}
	}

	// One unacknowledged export at a time per consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// Client publishes and consumes settlement messages over a single channel.
type Client struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	topo    topology
	logger  *log.Logger
}

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.Discard()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	c := &Client{
		conn:    conn,
		channel: channel,
		topo:    newTopology(exchangeName, queueName),
		logger:  logger.WithComponent(log.ComponentAMQP),
	}
	if err := c.topo.declare(channel); err != nil {
		c.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}
	return c, nil
}

// PublishSettlementCreated publishes msg persistently, using the settlement
// id as message id.
func (c *Client) PublishSettlementCreated(ctx context.Context, msg *SettlementCreatedMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pub := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.SettlementID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	}
	if err := c.channel.PublishWithContext(ctx, c.topo.exchange, c.topo.queue, false, false, pub); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published settlement message",
		log.FieldSettlementID, pub.MessageId,
		log.FieldDebtCount, len(msg.DebtIDs),
		"queue", c.topo.queue)
	return nil
}

// SettlementHandler processes one settlement message.
type SettlementHandler func(context.Context, *SettlementCreatedMessage) error

// ConsumeSettlementCreated delivers settlement messages to handler until
// ctx is done or the channel closes.
func (c *Client) ConsumeSettlementCreated(ctx context.Context, handler SettlementHandler) error {
	msgs, err := c.channel.Consume(c.topo.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.logger.InfoContext(ctx, "Started consuming settlement messages",
		"queue", c.topo.queue, "dead_letter_queue", c.topo.deadQueue)
	return consume(ctx, msgs, handler, c.logger)
}

func consume(ctx context.Context, msgs <-chan amqp091.Delivery, handler SettlementHandler, logger *log.Logger) error {
	for {
		select {
		case <-ctx.Done():
			logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, handler, logger)
		}
	}
}

// handleDelivery acks a handled message. A message that cannot be decoded,
// or whose handler fails on redelivery, is rejected to the dead-letter queue;
// a first failure is requeued.
func handleDelivery(ctx context.Context, delivery amqp091.Delivery, handler SettlementHandler, logger *log.Logger) {
	msg, err := SettlementCreatedMessageFromJSON(delivery.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Dropping undecodable message", log.FieldError, err)
		delivery.Nack(false, false)
		return
	}

	id := msg.SettlementID.String()
	if err := handler(ctx, msg); err != nil {
		requeue := !delivery.Redelivered
		logger.ErrorContext(ctx, "Failed to handle message",
			log.FieldError, err,
			log.FieldSettlementID, id,
			"requeue", requeue)
		delivery.Nack(false, requeue)
		return
	}

	delivery.Ack(false)
	logger.InfoContext(ctx, "Processed settlement message", log.FieldSettlementID, id)
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

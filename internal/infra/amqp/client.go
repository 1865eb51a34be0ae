package amqp

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Client owns one connection and channel to RabbitMQ.
type Client struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// Dial connects to url and declares the durable queue events are published to.
func Dial(url, queue string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}
	return &Client{conn: conn, channel: channel}, nil
}

// Channel returns the channel used for publishing.
func (c *Client) Channel() *amqp.Channel {
	return c.channel
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

package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler processes one message received on topic.
type MessageHandler func(topic string, message mqtt.Message) error

// IConsumer subscribes and dispatches messages until the context ends.
type IConsumer interface {
	ConsumeMessage(ctx context.Context) error
	SetHandler(handler MessageHandler)
}

// Consumer holds the client and topic for one subscription.
type Consumer struct {
	client  mqtt.Client
	handler MessageHandler
	topic   string
	qos     byte
	logger  *slog.Logger
}

// NewConsumer creates a Consumer on the shared client.
func NewConsumer(client mqtt.Client, topic string, qos byte, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		client: client,
		topic:  topic,
		qos:    qos,
		logger: logger,
	}
}

func (c *Consumer) SetHandler(handler MessageHandler) {
	c.handler = handler
}

// ConsumeMessage subscribes to the topic and blocks until ctx is cancelled.
// It returns an error only if the subscription itself fails.
func (c *Consumer) ConsumeMessage(ctx context.Context) error {
	token := c.client.Subscribe(c.topic, c.qos, func(_ mqtt.Client, message mqtt.Message) {
		if c.handler == nil {
			c.logger.Warn("no handler set", "topic", c.topic)
			return
		}
		if err := c.handler(c.topic, message); err != nil {
			c.logger.Warn("error handling message", "topic", c.topic, "error", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe to %s: %w", c.topic, token.Error())
	}
	c.logger.Info("subscribed", "topic", c.topic)

	<-ctx.Done()

	c.client.Unsubscribe(c.topic).Wait()
	return nil
}

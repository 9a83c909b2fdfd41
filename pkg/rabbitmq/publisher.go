package rabbitmq

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher publishes payloads to one topic.
type IPublisher interface {
	PublishMessage(payload []byte) error
	Close()
}

// Publisher is bound to a single topic on a shared client.
type Publisher struct {
	client   mqtt.Client
	topic    string
	qos      byte
	retained bool
}

// NewPublisher creates a Publisher on the shared client.
func NewPublisher(client mqtt.Client, topic string, qos byte, retained bool) *Publisher {
	return &Publisher{
		client:   client,
		topic:    topic,
		qos:      qos,
		retained: retained,
	}
}

// PublishMessage publishes payload and blocks until the broker acknowledged
// it (QoS >= 1) or the client handed it off (QoS 0).
func (p *Publisher) PublishMessage(payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, p.retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	return nil
}

// Close disconnects the underlying client. Publishers sharing a client
// should leave this to the owner of the connection.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/trackside_sim/pkg/dedup"
	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

// MQTT fires a Manual trigger for every message on a topic. QoS 1
// redeliveries (same message ID and payload) fire only once.
type MQTT struct {
	*Manual
	consumer rabbitmq.IConsumer
	deduper  *dedup.Deduper
	logger   *slog.Logger
}

// NewMQTT wires consumer to a new Manual trigger.
func NewMQTT(consumer rabbitmq.IConsumer, logger *slog.Logger) *MQTT {
	if logger == nil {
		logger = slog.Default()
	}
	t := &MQTT{
		Manual:   NewManual(DefaultQueueDepth),
		consumer: consumer,
		deduper:  dedup.New(30*time.Second, 10000),
		logger:   logger,
	}
	consumer.SetHandler(t.handleMessage)
	return t
}

// Listen subscribes and blocks until ctx is done. The trigger is closed
// when Listen returns.
func (t *MQTT) Listen(ctx context.Context) error {
	defer t.Close()
	return t.consumer.ConsumeMessage(ctx)
}

func (t *MQTT) handleMessage(topic string, msg mqtt.Message) error {
	if msg.Qos() > 0 {
		h := sha256.Sum256(msg.Payload())
		key := fmt.Sprintf("%d:%s", msg.MessageID(), hex.EncodeToString(h[:]))
		if !t.deduper.ShouldProcess(key) {
			return nil
		}
	}
	if !t.Fire() {
		t.logger.Warn("step trigger dropped, queue full", "topic", topic)
	}
	return nil
}

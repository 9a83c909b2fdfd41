package pinbank

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

// Payload codecs accepted by MQTTSink.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// DefaultTopicTemplate is expanded per pin; {target} and {pin} are replaced.
const DefaultTopicTemplate = "trackside/{target}/pin/{pin}"

// PublisherFactory returns a publisher bound to topic.
type PublisherFactory func(topic string) rabbitmq.IPublisher

// MQTTSink publishes a PinStateChanged message for every write and returns
// only once the broker acknowledged it.
type MQTTSink struct {
	target    string
	sessionID string
	template  string
	codec     string
	factory   PublisherFactory
	now       func() time.Time

	mu         sync.Mutex
	seq        uint64
	publishers map[int]rabbitmq.IPublisher
}

// NewMQTTSink creates an MQTT sink for target. An empty template selects
// DefaultTopicTemplate and an empty codec selects JSON.
func NewMQTTSink(target, template, codec string, factory PublisherFactory) (*MQTTSink, error) {
	if template == "" {
		template = DefaultTopicTemplate
	}
	switch codec {
	case "":
		codec = CodecJSON
	case CodecJSON, CodecMsgpack:
	default:
		return nil, fmt.Errorf("unknown payload codec %q", codec)
	}
	return &MQTTSink{
		target:     target,
		template:   template,
		codec:      codec,
		factory:    factory,
		now:        time.Now,
		publishers: make(map[int]rabbitmq.IPublisher),
	}, nil
}

// SetSessionID stamps subsequent messages with the playback session.
func (s *MQTTSink) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// Topic returns the topic used for pin.
func (s *MQTTSink) Topic(pin int) string {
	r := strings.NewReplacer("{target}", s.target, "{pin}", fmt.Sprint(pin))
	return r.Replace(s.template)
}

func (s *MQTTSink) Write(pin int, state model.PinState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	msg := model.PinStateChanged{
		Target:    s.target,
		SessionID: s.sessionID,
		Pin:       pin,
		State:     state,
		Seq:       s.seq,
		Timestamp: s.now().UTC(),
	}
	payload, err := s.encode(msg)
	if err != nil {
		return err
	}

	pub, ok := s.publishers[pin]
	if !ok {
		pub = s.factory(s.Topic(pin))
		s.publishers[pin] = pub
	}
	return pub.PublishMessage(payload)
}

func (s *MQTTSink) encode(msg model.PinStateChanged) ([]byte, error) {
	if s.codec == CodecMsgpack {
		return msgpack.Marshal(&msg)
	}
	return json.Marshal(msg)
}

// DecodePinStateChanged decodes a payload produced by MQTTSink.
func DecodePinStateChanged(codec string, payload []byte) (model.PinStateChanged, error) {
	var msg model.PinStateChanged
	var err error
	if codec == CodecMsgpack {
		err = msgpack.Unmarshal(payload, &msg)
	} else {
		err = json.Unmarshal(payload, &msg)
	}
	return msg, err
}

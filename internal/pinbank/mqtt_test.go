package pinbank

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/trackside_sim/internal/model"
	"github.com/LeonardoBeccarini/trackside_sim/pkg/rabbitmq"
)

type fakePublisher struct {
	topic    string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) PublishMessage(payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

func (p *fakePublisher) Close() {}

func TestMQTTSinkPublishesPerPinTopic(t *testing.T) {
	for _, codec := range []string{CodecJSON, CodecMsgpack} {
		t.Run(codec, func(t *testing.T) {
			pubs := map[string]*fakePublisher{}
			factory := func(topic string) rabbitmq.IPublisher {
				p := &fakePublisher{topic: topic}
				pubs[topic] = p
				return p
			}
			s, err := NewMQTTSink("chip1", "", codec, factory)
			require.NoError(t, err)
			s.SetSessionID("sess")

			require.NoError(t, s.Write(9, model.PinUp))
			require.NoError(t, s.Write(8, model.PinUp))
			require.NoError(t, s.Write(9, model.PinDown))

			require.Len(t, pubs, 2)
			p9 := pubs["trackside/chip1/pin/9"]
			require.NotNil(t, p9)
			require.Len(t, p9.payloads, 2)

			msg, err := DecodePinStateChanged(codec, p9.payloads[1])
			require.NoError(t, err)
			assert.Equal(t, 9, msg.Pin)
			assert.Equal(t, model.PinDown, msg.State)
			assert.Equal(t, uint64(3), msg.Seq)
			assert.Equal(t, "chip1", msg.Target)
			assert.Equal(t, "sess", msg.SessionID)
		})
	}
}

func TestMQTTSinkPropagatesPublishFailure(t *testing.T) {
	boom := errors.New("broker gone")
	s, err := NewMQTTSink("t", "sim/{pin}", CodecJSON, func(string) rabbitmq.IPublisher {
		return &fakePublisher{err: boom}
	})
	require.NoError(t, err)
	assert.Equal(t, "sim/4", s.Topic(4))
	assert.ErrorIs(t, s.Write(4, model.PinUp), boom)
}

func TestMQTTSinkRejectsUnknownCodec(t *testing.T) {
	_, err := NewMQTTSink("t", "", "xml", nil)
	assert.Error(t, err)
}

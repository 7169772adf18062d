package bridge

import (
	"context"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/vx-labs/logbuffer/stream"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(topic string, payload []byte) error
}

type mqttPublisher struct {
	client  MQTT.Client
	timeout time.Duration
}

func (m *mqttPublisher) Publish(topic string, payload []byte) error {
	token := m.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return errors.Errorf("timed out publishing on %s", topic)
	}
	return token.Error()
}

func (m *mqttPublisher) Close() {
	m.client.Disconnect(500)
}

// MQTTPublisher connects to broker and returns a Publisher using this connection.
func MQTTPublisher(broker, clientID, username, password string) (Publisher, func(), error) {
	opts, err := clientOptions(broker, clientID, username, password)
	if err != nil {
		return nil, nil, err
	}
	c := MQTT.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, nil, token.Error()
	}
	p := &mqttPublisher{client: c, timeout: 5 * time.Second}
	return p, p.Close, nil
}

// Forwarder returns a processor publishing every consumed record to
// publisher, under topicPrefix.
func Forwarder(publisher Publisher, topicPrefix string, logger *zap.Logger) stream.Processor {
	return func(ctx context.Context, batch stream.Batch) error {
		for idx, payload := range batch.Records {
			record, err := UnmarshalRecord(payload)
			if err != nil {
				logger.Warn("skipping invalid record", zap.Int("batch_first_offset", batch.FirstOffset), zap.Int("record_index", idx), zap.Error(err))
				continue
			}
			if err := publisher.Publish(topicPrefix+record.Topic, record.Payload); err != nil {
				return errors.Wrap(err, "failed to publish record")
			}
		}
		return nil
	}
}

// LogForwarder returns a processor logging every consumed record.
func LogForwarder(logger *zap.Logger) stream.Processor {
	return func(ctx context.Context, batch stream.Batch) error {
		for _, payload := range batch.Records {
			record, err := UnmarshalRecord(payload)
			if err != nil {
				logger.Info("record consumed", zap.Binary("record_payload", payload))
				continue
			}
			logger.Info("record consumed", zap.String("mqtt_topic", record.Topic), zap.ByteString("mqtt_payload", record.Payload))
		}
		return nil
	}
}
